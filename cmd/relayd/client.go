package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/mattjoyce/relayd/internal/protocol"
	"github.com/mattjoyce/relayd/internal/tui/watch"
)

const (
	defaultReqEndpoint = "tcp://127.0.0.1:5555"
	defaultPubEndpoint = "tcp://127.0.0.1:5556"
)

func runCall(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	endpoint := fs.String("endpoint", defaultReqEndpoint, "Request endpoint")
	action := fs.String("action", "test.ping", "Action name")
	params := fs.String("params", "{}", "Params as a JSON object")
	msgID := fs.String("msg-id", "", "Message id (default: random)")
	timeout := fs.Duration("timeout", 5*time.Second, "Time to wait for the reply")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	resp, err := call(context.Background(), *endpoint, *action, *params, *msgID, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call failed: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Fprintln(w, string(out))
	if !resp.OK() {
		return 2
	}
	return 0
}

// call performs one request/reply exchange on a fresh REQ socket.
func call(ctx context.Context, endpoint, action, params, msgID string, timeout time.Duration) (*protocol.Response, error) {
	var p map[string]any
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}

	body, err := json.Marshal(map[string]any{"action": action, "params": p, "msg_id": msgID})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := zmq4.NewReq(ctx)
	defer req.Close()
	if err := req.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if err := req.Send(zmq4.NewMsg(body)); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	msg, err := req.Recv()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("no reply within %s", timeout)
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	return protocol.DecodeResponse(bytes.Join(msg.Frames, nil))
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	endpoint := fs.String("endpoint", defaultPubEndpoint, "Notification endpoint")
	topic := fs.String("topic", "", "Topic prefix filter (empty receives everything)")
	tui := fs.Bool("tui", false, "Full-screen dashboard instead of log lines")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	items := make(chan watch.Item, 64)
	errCh := make(chan error, 1)
	onBad := func(err error) { fmt.Fprintf(os.Stderr, "skipping frame: %v\n", err) }
	if *tui {
		onBad = nil
	}
	go func() { errCh <- watch.Subscribe(ctx, *endpoint, *topic, items, onBad) }()

	if *tui {
		p := tea.NewProgram(watch.NewModel(*endpoint, items), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
			return 1
		}
		stop()
		return 0
	}

	return printItems(os.Stdout, items, errCh)
}

func printItems(w io.Writer, items <-chan watch.Item, errCh <-chan error) int {
	theme := watch.NewDefaultTheme()
	for it := range items {
		fmt.Fprintln(w, theme.FormatLine(it))
	}
	if err := <-errCh; err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		return 1
	}
	return 0
}

// splitNoun returns the first non-flag argument and the rest.
func splitNoun(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", args
	}
	return args[0], args[1:]
}
