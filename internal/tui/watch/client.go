package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/mattjoyce/relayd/internal/protocol"
)

// Item is one received notification.
type Item struct {
	Topic        string
	Notification protocol.Notification
	Received     time.Time
}

// Subscribe dials a notification endpoint and sends decoded items to out
// until ctx is done. Frames that fail to decode are reported to onBad, if
// set, and skipped. out is closed on return.
func Subscribe(ctx context.Context, endpoint, topic string, out chan<- Item, onBad func(error)) error {
	defer close(out)

	sub := zmq4.NewSub(ctx)
	defer sub.Close()

	if err := sub.Dial(endpoint); err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, topic); err != nil {
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}

	for {
		msg, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		gotTopic, n, err := protocol.DecodeNotification(bytes.Join(msg.Frames, nil))
		if err != nil {
			if onBad != nil {
				onBad(err)
			}
			continue
		}

		select {
		case out <- Item{Topic: gotTopic, Notification: *n, Received: time.Now()}:
		case <-ctx.Done():
			return nil
		}
	}
}
