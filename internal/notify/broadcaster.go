// Package notify pushes notification envelopes on the ZeroMQ PUB socket.
//
// Delivery is at-most-once. A message sent while no subscriber is attached
// is dropped by the socket with no buffering or retry. Receivers filter by
// the "<topic>:" prefix; the broadcaster does no filtering itself.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/mattjoyce/relayd/internal/log"
	"github.com/mattjoyce/relayd/internal/protocol"
)

// Socket is the part of a zmq4 PUB socket the broadcaster uses.
type Socket interface {
	Send(msg zmq4.Msg) error
	Close() error
}

// Publisher is anything that can push a typed notification.
type Publisher interface {
	Publish(notifType string, data map[string]any, topic string) error
}

// Broadcaster serializes notifications onto a PUB socket. It is safe for
// concurrent use; sends are serialized.
type Broadcaster struct {
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	sock Socket

	sent   atomic.Int64
	failed atomic.Int64
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithClock overrides time.Now for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

func NewBroadcaster(sock Socket, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		sock:   sock,
		now:    time.Now,
		logger: log.WithComponent("notify"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Listen binds a PUB socket on endpoint, e.g. "tcp://0.0.0.0:5556".
func Listen(ctx context.Context, endpoint string) (zmq4.Socket, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("listen on %s: %w", endpoint, err)
	}
	return sock, nil
}

// Publish sends {type, data, timestamp=now}, prefixed by "<topic>:" when
// topic is non-empty. It returns an error only for an invalid topic, an
// unencodable payload or a failed send; having no subscribers is not an error.
func (b *Broadcaster) Publish(notifType string, data map[string]any, topic string) error {
	if notifType == "" {
		return fmt.Errorf("notification type is required")
	}
	payload, err := protocol.EncodeNotification(&protocol.Notification{
		Type:      notifType,
		Data:      data,
		Timestamp: b.now().Unix(),
	}, topic)
	if err != nil {
		b.failed.Add(1)
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sock == nil {
		b.failed.Add(1)
		return fmt.Errorf("broadcaster closed")
	}
	if err := b.sock.Send(zmq4.NewMsg(payload)); err != nil {
		b.failed.Add(1)
		return fmt.Errorf("publish %s: %w", notifType, err)
	}
	b.sent.Add(1)
	b.logger.Debug("published notification", "type", notifType, "topic", topic)
	return nil
}

// Sent returns the number of notifications handed to the socket.
func (b *Broadcaster) Sent() int64 {
	return b.sent.Load()
}

// Failed returns the number of notifications that could not be sent.
func (b *Broadcaster) Failed() int64 {
	return b.failed.Load()
}

// Close closes the socket. Later publishes fail.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sock == nil {
		return nil
	}
	err := b.sock.Close()
	b.sock = nil
	return err
}
