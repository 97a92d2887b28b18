package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-zeromq/zmq4"
	"github.com/redis/go-redis/v9"

	"github.com/mattjoyce/relayd/internal/actions"
	"github.com/mattjoyce/relayd/internal/api"
	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/config"
	"github.com/mattjoyce/relayd/internal/dispatch"
	"github.com/mattjoyce/relayd/internal/events"
	"github.com/mattjoyce/relayd/internal/lock"
	"github.com/mattjoyce/relayd/internal/log"
	"github.com/mattjoyce/relayd/internal/notify"
	"github.com/mattjoyce/relayd/internal/registry"
	"github.com/mattjoyce/relayd/internal/scheduler"
	"github.com/mattjoyce/relayd/internal/storage"
	"github.com/mattjoyce/relayd/internal/tasks"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("relayd starting", "version", version, "config", cfg.Path)

	pidLock, err := lock.AcquirePIDLock(lock.PathFor(cfg.State.Path))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("relayd stopped")
	return 0
}

// loadConfig loads path, or the discovered config, or built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		if discovered == "" {
			return config.Defaults(), nil
		}
		path = discovered
	}
	return config.Load(path)
}

// daemon is a fully wired relayd: sockets bound, stores open, actions bound.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *sql.DB
	rdb     *redis.Client
	hub     *events.Hub
	reg     *registry.Registry
	svc     *auth.Service
	engine  *dispatch.Engine
	repSock zmq4.Socket
	bcast   *notify.Broadcaster
	sched   *scheduler.Scheduler
	api     *api.Server

	closeOnce sync.Once
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger, hub: events.NewHub(events.DefaultCapacity)}
	if err := d.wire(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *daemon) wire(ctx context.Context) error {
	cfg, logger := d.cfg, d.logger

	creds, err := loadCredentials(cfg)
	if err != nil {
		return err
	}

	store, err := d.openSessionStore()
	if err != nil {
		return err
	}
	d.svc = auth.NewService(creds, store, cfg.SessionTTL(), auth.WithEvents(d.hub))

	d.db, err = storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	logger.Info("database opened", "path", cfg.State.Path)

	d.reg = registry.New()
	if err := actions.Register(d.reg, actions.Deps{
		Auth:           d.svc,
		Tasks:          tasks.NewStore(d.db),
		RequireSession: cfg.Actions.RequireSession,
	}); err != nil {
		return err
	}
	logger.Info("actions registered", "actions", d.reg.Actions())

	// Sockets are bound with a background context; ctx only drives Run.
	pubSock, err := notify.Listen(context.Background(), cfg.PubEndpoint())
	if err != nil {
		return err
	}
	d.bcast = notify.NewBroadcaster(pubSock)

	d.repSock, err = dispatch.Listen(context.Background(), cfg.ReqEndpoint())
	if err != nil {
		return err
	}
	d.engine = dispatch.New(d.reg)

	d.sched = scheduler.New(scheduler.Config{
		HeartbeatInterval: cfg.Notify.HeartbeatInterval,
		HeartbeatTopic:    cfg.Notify.HeartbeatTopic,
		SweepInterval:     cfg.Session.SweepInterval,
		SweepJitter:       cfg.Session.SweepJitter,
	}, d.bcast, d.svc, d.hub, log.Get())

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}
		d.api = api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokens,
		}, d.reg, d.svc, d.bcast, d.hub, log.WithComponent("api")).WithDispatch(d.engine)
	}

	return nil
}

func loadCredentials(cfg *config.Config) (*auth.CredentialStore, error) {
	if cfg.Credentials.File == "" {
		return auth.NewCredentialStore(auth.DefaultCredentials())
	}
	creds, err := auth.LoadCredentialsFile(cfg.Credentials.File)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}

func (d *daemon) openSessionStore() (auth.SessionStore, error) {
	switch d.cfg.Session.Backend {
	case "redis":
		rdb, err := auth.NewRedisClient(d.cfg.Session.Redis.URL)
		if err != nil {
			return nil, err
		}
		d.rdb = rdb
		d.logger.Info("session store ready", "backend", "redis", "prefix", d.cfg.Session.Redis.KeyPrefix)
		return auth.NewRedisStore(rdb, d.cfg.Session.Redis.KeyPrefix, d.cfg.SessionTTL()), nil
	default:
		d.logger.Info("session store ready", "backend", "memory")
		return auth.NewMemoryStore(), nil
	}
}

// Run serves until ctx is done or a component fails.
func (d *daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	if err := d.sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer d.sched.Stop()

	if d.cfg.Notify.ForwardEvents {
		fwd := notify.NewForwarder(d.hub, d.bcast, d.cfg.Notify.EventsTopic, "session.")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fwd.Run(ctx)
		}()
	}

	if d.api != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.api.Start(ctx); err != nil {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		d.logger.Info("API server enabled", "listen", d.cfg.API.Listen)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.engine.Serve(ctx, d.repSock); err != nil {
			errCh <- fmt.Errorf("dispatch: %w", err)
		}
	}()

	d.logger.Info("relayd running",
		"req", d.cfg.ReqEndpoint(),
		"pub", d.cfg.PubEndpoint(),
		"actions", d.reg.Len(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("shutdown requested")
	case runErr = <-errCh:
	}
	cancel()
	d.engine.Stop()
	wg.Wait()
	return runErr
}

// Close releases sockets and stores. Safe to call more than once.
func (d *daemon) Close() {
	d.closeOnce.Do(func() {
		var errs []error
		if d.sched != nil {
			d.sched.Stop()
		}
		if d.repSock != nil {
			// Serve may already have closed it.
			_ = d.repSock.Close()
		}
		if d.bcast != nil {
			errs = append(errs, d.bcast.Close())
		}
		d.hub.Close()
		if d.db != nil {
			errs = append(errs, d.db.Close())
		}
		if d.rdb != nil {
			errs = append(errs, d.rdb.Close())
		}
		if err := errors.Join(errs...); err != nil {
			d.logger.Warn("error during shutdown", "error", err)
		}
	})
}
