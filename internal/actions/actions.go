// Package actions binds the relayd action names to their handlers.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/log"
	"github.com/mattjoyce/relayd/internal/registry"
	"github.com/mattjoyce/relayd/internal/tasks"
)

// Action names.
const (
	Ping       = "test.ping"
	TaskCreate = "task.create"
	TaskList   = "task.list"
	AuthLogin  = "auth.login"
	AuthLogout = "auth.logout"
	AuthVerify = "auth.verify"
)

// Advertised lists every action a client may call. Register fails unless
// each one ends up bound.
var Advertised = []string{Ping, TaskCreate, TaskList, AuthLogin, AuthLogout, AuthVerify}

// TaskStore is the persistence used by the task actions.
type TaskStore interface {
	Create(ctx context.Context, name, createdBy string) (*tasks.Task, error)
	List(ctx context.Context, limit int) ([]tasks.Task, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Auth  *auth.Service
	Tasks TaskStore
	// RequireSession guards task.* behind a verified session_token.
	RequireSession bool
	Now            func() time.Time
}

// Register binds all advertised actions on reg and validates the result.
func Register(reg *registry.Registry, deps Deps) error {
	if deps.Auth == nil {
		return errors.New("actions: auth service is required")
	}
	if deps.Tasks == nil {
		return errors.New("actions: task store is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	createMW, listMW := []registry.Middleware(nil), []registry.Middleware(nil)
	if deps.RequireSession {
		createMW = append(createMW, RequireSession(deps.Auth, TaskCreate))
		listMW = append(listMW, RequireSession(deps.Auth, TaskList))
	}

	bindings := map[string]registry.Handler{
		Ping:       pingHandler(deps.Now),
		TaskCreate: registry.Chain(taskCreateHandler(deps.Tasks), createMW...),
		TaskList:   registry.Chain(taskListHandler(deps.Tasks), listMW...),
		AuthLogin:  loginHandler(deps.Auth),
		AuthLogout: logoutHandler(deps.Auth),
		AuthVerify: verifyHandler(deps.Auth),
	}
	for _, name := range Advertised {
		if err := reg.Register(name, bindings[name]); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return reg.Require(Advertised...)
}

func pingHandler(now func() time.Time) registry.HandlerFunc {
	return func(ctx context.Context, params registry.Params) (map[string]any, error) {
		log.WithAction(Ping).Info("handling ping request")
		echo := map[string]any(params)
		if echo == nil {
			echo = map[string]any{}
		}
		return map[string]any{
			"message":   "pong",
			"timestamp": now().Unix(),
			"echo":      echo,
		}, nil
	}
}

func taskCreateHandler(store TaskStore) registry.HandlerFunc {
	return func(ctx context.Context, params registry.Params) (map[string]any, error) {
		var createdBy string
		if sess, ok := SessionFromContext(ctx); ok {
			createdBy = sess.Username
		}

		task, err := store.Create(ctx, params.String("task_name"), createdBy)
		if err != nil {
			return nil, registry.Internal("failed to create task", err)
		}
		log.WithAction(TaskCreate).Info("task created", "task_id", task.ID, "task_name", task.Name)
		return task.Map(), nil
	}
}

func taskListHandler(store TaskStore) registry.HandlerFunc {
	return func(ctx context.Context, params registry.Params) (map[string]any, error) {
		limit, _ := params.Int("limit")

		list, err := store.List(ctx, limit)
		if err != nil {
			return nil, registry.Internal("failed to list tasks", err)
		}
		total, err := store.Count(ctx)
		if err != nil {
			return nil, registry.Internal("failed to list tasks", err)
		}

		out := make([]map[string]any, 0, len(list))
		for _, t := range list {
			out = append(out, t.Map())
		}
		return map[string]any{"tasks": out, "total": total}, nil
	}
}
