package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mattjoyce/relayd/internal/events"
	"github.com/mattjoyce/relayd/internal/log"
)

// Forwarder relays hub events to a Publisher under a fixed topic.
type Forwarder struct {
	hub    *events.Hub
	pub    Publisher
	topic  string
	prefix string
	logger *slog.Logger
}

// NewForwarder forwards every hub event whose type starts with prefix
// ("" forwards all).
func NewForwarder(hub *events.Hub, pub Publisher, topic, prefix string) *Forwarder {
	return &Forwarder{
		hub:    hub,
		pub:    pub,
		topic:  topic,
		prefix: prefix,
		logger: log.WithComponent("notify"),
	}
}

// Run blocks until ctx is done or the hub closes.
func (f *Forwarder) Run(ctx context.Context) error {
	ch, cancel := f.hub.Subscribe()
	defer cancel()

	f.logger.Info("event forwarding started", "topic", f.topic, "prefix", f.prefix)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(ev.Type, f.prefix) {
				continue
			}
			data := ev.Decode()
			data["event_id"] = ev.ID
			if err := f.pub.Publish(ev.Type, data, f.topic); err != nil {
				f.logger.Warn("failed to forward event", "type", ev.Type, "error", err)
			}
		}
	}
}
