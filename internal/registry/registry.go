package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/relayd/internal/log"
)

// Registry holds handlers indexed by action name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   log.WithComponent("registry"),
	}
}

// Register binds action to h. A second Register for the same action replaces
// the earlier binding.
func (r *Registry) Register(action string, h Handler) error {
	if strings.TrimSpace(action) == "" {
		return fmt.Errorf("action name is empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q is nil", action)
	}

	r.mu.Lock()
	_, replaced := r.handlers[action]
	r.handlers[action] = h
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("handler replaced", "action", action)
	} else {
		r.logger.Info("registered handler", "action", action)
	}
	return nil
}

// RegisterFunc is Register for a plain function.
func (r *Registry) RegisterFunc(action string, fn func(ctx context.Context, params Params) (map[string]any, error)) error {
	return r.Register(action, HandlerFunc(fn))
}

// Resolve returns the handler bound to action.
func (r *Registry) Resolve(action string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[action]
	return h, ok
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Require checks that every advertised action has a binding.
func (r *Registry) Require(actions ...string) error {
	r.mu.RLock()
	var missing []string
	for _, a := range actions {
		if _, ok := r.handlers[a]; !ok {
			missing = append(missing, a)
		}
	}
	r.mu.RUnlock()

	if len(missing) > 0 {
		return fmt.Errorf("%w: no handler bound for %s", ErrUnknownAction, strings.Join(missing, ", "))
	}
	return nil
}
