package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Params is the decoded params object of a request.
type Params map[string]any

// String returns the string value at key, or "" if absent or not a string.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the integer value at key. It accepts json.Number and float64
// with no fractional part.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// Handler executes one action.
type Handler interface {
	Handle(ctx context.Context, params Params) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params Params) (map[string]any, error)

// Handle calls f(ctx, params).
func (f HandlerFunc) Handle(ctx context.Context, params Params) (map[string]any, error) {
	return f(ctx, params)
}

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain wraps h so that mws[0] runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ErrUnknownAction is returned by Require and reported as 404 by the engine.
var ErrUnknownAction = errors.New("unknown action")

// Error is a handler failure carrying an envelope code and a client-safe message.
type Error struct {
	Code    int
	Message string
	// Err is the underlying cause. It is logged, never sent to the client.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail returns an Error with the given code and message.
func Fail(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Internal hides err behind message on a 500.
func Internal(message string, err error) *Error {
	return &Error{Code: 500, Message: message, Err: err}
}

// Wrap exposes err's text under the given code.
func Wrap(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}
