package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/relayd/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func constHandler(v string) Handler {
	return HandlerFunc(func(ctx context.Context, params Params) (map[string]any, error) {
		return map[string]any{"v": v}, nil
	})
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("test.ping", constHandler("a")))

	h, ok := r.Resolve("test.ping")
	require.True(t, ok)
	out, err := h.Handle(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", out["v"])

	_, ok = r.Resolve("missing")
	assert.False(t, ok)
}

func TestRegisterOverwrites(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("x", constHandler("first")))
	require.NoError(t, r.Register("x", constHandler("second")))

	h, _ := r.Resolve("x")
	out, _ := h.Handle(context.Background(), nil)
	assert.Equal(t, "second", out["v"])
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := New()
	assert.Error(t, r.Register("", constHandler("a")))
	assert.Error(t, r.Register("  ", constHandler("a")))
	assert.Error(t, r.Register("x", nil))
	assert.Equal(t, 0, r.Len())
}

func TestRegisterFunc(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFunc("echo", func(ctx context.Context, p Params) (map[string]any, error) {
		return map[string]any{"echo": p.String("msg")}, nil
	}))
	h, ok := r.Resolve("echo")
	require.True(t, ok)
	out, err := h.Handle(context.Background(), Params{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
}

func TestActionsSorted(t *testing.T) {
	r := New()
	for _, a := range []string{"task.list", "auth.login", "test.ping"} {
		require.NoError(t, r.Register(a, constHandler(a)))
	}
	assert.Equal(t, []string{"auth.login", "task.list", "test.ping"}, r.Actions())
}

func TestRequire(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a", constHandler("a")))

	assert.NoError(t, r.Require("a"))

	err := r.Require("a", "b", "c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAction))
	assert.Contains(t, err.Error(), "b, c")
}

func TestConcurrentRegisterResolve(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("a.%d", i%5), constHandler("x"))
		}()
		go func() {
			defer wg.Done()
			r.Resolve("a.1")
			r.Actions()
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, r.Len())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, p Params) (map[string]any, error) {
				order = append(order, name)
				return next.Handle(ctx, p)
			})
		}
	}

	h := Chain(HandlerFunc(func(ctx context.Context, p Params) (map[string]any, error) {
		order = append(order, "handler")
		return nil, nil
	}), mw("outer"), mw("inner"))

	_, _ = h.Handle(context.Background(), nil)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("disk full")

	internal := Internal("failed to create task", cause)
	assert.Equal(t, 500, internal.Code)
	assert.Equal(t, "failed to create task", internal.Message)
	assert.ErrorIs(t, internal, cause)
	assert.Contains(t, internal.Error(), "disk full")

	wrapped := Wrap(403, cause)
	assert.Equal(t, "disk full", wrapped.Message)
	assert.Equal(t, 403, wrapped.Code)

	plain := Fail(418, "teapot")
	assert.Equal(t, "teapot", plain.Error())
	assert.Nil(t, plain.Unwrap())

	var target *Error
	assert.True(t, errors.As(fmt.Errorf("ctx: %w", plain), &target))
	assert.Equal(t, 418, target.Code)
}

func TestParamsString(t *testing.T) {
	p := Params{"s": "v", "n": 1.0}
	assert.Equal(t, "v", p.String("s"))
	assert.Equal(t, "", p.String("n"))
	assert.Equal(t, "", p.String("absent"))
	assert.Equal(t, "", Params(nil).String("s"))
}

func TestParamsInt(t *testing.T) {
	p := Params{"num": json.Number("25"), "f": 3.0, "frac": 2.5, "big": json.Number("1e3"), "s": "7"}

	n, ok := p.Int("num")
	assert.True(t, ok)
	assert.Equal(t, 25, n)

	n, ok = p.Int("f")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	for _, key := range []string{"frac", "big", "s", "absent"} {
		_, ok := p.Int(key)
		assert.False(t, ok, key)
	}
}
