package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/mattjoyce/relayd/internal/log"
	"github.com/mattjoyce/relayd/internal/protocol"
	"github.com/mattjoyce/relayd/internal/registry"
)

// Socket is the part of a zmq4 REP socket the engine uses.
type Socket interface {
	Recv() (zmq4.Msg, error)
	Send(msg zmq4.Msg) error
	Close() error
}

// Stats are running counters for the loop.
type Stats struct {
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
}

// Engine dispatches decoded requests to registry handlers.
type Engine struct {
	reg    *registry.Registry
	now    func() time.Time
	logger *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	sock    Socket

	requests atomic.Int64
	errs     atomic.Int64

	recvRetry  time.Duration
	maxRecvErr int
}

const (
	defaultRecvRetry  = 10 * time.Millisecond
	defaultMaxRecvErr = 100
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine resolving actions from reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:        reg,
		now:        time.Now,
		logger:     log.WithComponent("dispatch"),
		recvRetry:  defaultRecvRetry,
		maxRecvErr: defaultMaxRecvErr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Listen binds a REP socket on endpoint, e.g. "tcp://0.0.0.0:5555".
func Listen(ctx context.Context, endpoint string) (zmq4.Socket, error) {
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("listen on %s: %w", endpoint, err)
	}
	return sock, nil
}

// WithRecvRetry sets the pause after a failed receive and how many consecutive
// failures Serve tolerates before giving up on the socket.
func WithRecvRetry(pause time.Duration, maxConsecutive int) Option {
	return func(e *Engine) {
		e.recvRetry = pause
		if maxConsecutive > 0 {
			e.maxRecvErr = maxConsecutive
		}
	}
}

// Serve runs the loop on sock until ctx is cancelled or Stop is called.
// A bad frame from one peer is logged and skipped. Serve returns an error
// only after maxRecvErr consecutive receive failures.
func (e *Engine) Serve(ctx context.Context, sock Socket) error {
	e.mu.Lock()
	if e.sock != nil {
		e.mu.Unlock()
		return errors.New("engine already serving")
	}
	e.sock = sock
	e.running.Store(true)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.sock = nil
		e.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, e.Stop)
	defer stop()

	e.logger.Info("dispatch loop started", "actions", e.reg.Len())
	defer e.logger.Info("dispatch loop stopped", "requests", e.requests.Load())

	failures := 0
	for e.running.Load() {
		msg, err := sock.Recv()
		if err != nil {
			if !e.running.Load() {
				return nil
			}
			e.errs.Add(1)
			failures++
			if failures >= e.maxRecvErr {
				e.Stop()
				return fmt.Errorf("receive: %d consecutive failures: %w", failures, err)
			}
			e.logger.Warn("dropped unreadable message", "error", err)
			if e.recvRetry > 0 {
				time.Sleep(e.recvRetry)
			}
			continue
		}
		failures = 0

		reply := e.Handle(ctx, bytes.Join(msg.Frames, nil))
		if err := sock.Send(zmq4.NewMsg(reply)); err != nil {
			if !e.running.Load() {
				return nil
			}
			e.logger.Error("failed to send reply", "error", err)
		}
	}
	return nil
}

// Stop clears the running flag and closes the socket. Safe to call repeatedly.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	e.mu.Lock()
	sock := e.sock
	e.mu.Unlock()
	if sock != nil {
		if err := sock.Close(); err != nil {
			e.logger.Debug("socket close", "error", err)
		}
	}
}

// Running reports whether Serve is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stats returns a snapshot of the loop counters.
func (e *Engine) Stats() Stats {
	return Stats{Requests: e.requests.Load(), Errors: e.errs.Load()}
}

// Handle turns one raw request into one raw reply. It never fails and
// never returns an empty reply.
func (e *Engine) Handle(ctx context.Context, raw []byte) (reply []byte) {
	now := e.now()
	e.requests.Add(1)

	defer func() {
		if r := recover(); r != nil {
			e.errs.Add(1)
			e.logger.Error("engine failure", "panic", r)
			reply = protocol.Fallback(now)
		}
	}()

	resp := e.dispatch(ctx, raw, now)
	if !resp.OK() {
		e.errs.Add(1)
	}

	b, err := protocol.EncodeResponse(resp)
	if err != nil {
		if resp.OK() {
			e.errs.Add(1)
		}
		e.logger.Error("failed to encode response", "error", err)
		return protocol.Fallback(now)
	}
	return b
}

func (e *Engine) dispatch(ctx context.Context, raw []byte, now time.Time) *protocol.Response {
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		e.logger.Warn("malformed request", "error", err, "size", len(raw))
		return protocol.Failure(nil, protocol.CodeBadRequest, err.Error(), now)
	}

	h, ok := e.reg.Resolve(req.Action)
	if !ok {
		e.logger.Warn("unknown action", "action", req.Action)
		return protocol.Failure(req.MsgID, protocol.CodeNotFound, unknownActionMessage(req.Action), now)
	}

	logger := log.WithAction(req.Action)
	start := time.Now()
	data, err := invoke(ctx, h, registry.Params(req.Params))
	if err != nil {
		code, message := classify(err)
		logger.Warn("handler failed", "code", code, "error", err, "duration", time.Since(start))
		return protocol.Failure(req.MsgID, code, message, now)
	}
	logger.Debug("handled", "duration", time.Since(start))
	return protocol.Success(req.MsgID, data, now)
}

func invoke(ctx context.Context, h registry.Handler, params registry.Params) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = registry.Internal(protocol.InternalMessage, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, params)
}

// classify maps a handler error to an envelope code and client message.
func classify(err error) (int, string) {
	var he *registry.Error
	if errors.As(err, &he) {
		code := he.Code
		if code == 0 {
			code = protocol.CodeInternal
		}
		msg := he.Message
		if msg == "" {
			msg = protocol.InternalMessage
		}
		return code, msg
	}
	return protocol.CodeInternal, err.Error()
}

func unknownActionMessage(action string) string {
	if action == "" {
		return `Unknown action: ""`
	}
	return "Unknown action: " + action
}
