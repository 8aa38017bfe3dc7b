package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/careflow/internal/workflows"
	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	"github.com/randalmurphal/careflow/pkg/careflow/config"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/observability"
	"github.com/randalmurphal/careflow/pkg/careflow/registry"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

// app is a wired supervisor plus everything that must be closed with it.
type app struct {
	sup     *supervisor.Supervisor
	logger  *slog.Logger
	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.String("log.level", "info"))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch format := cfg.String("log.format", "text"); format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", format)
	}
}

// newApp wires a supervisor from cfg.
func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (_ *app, err error) {
	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	svc, err := llm.New(ctx, cfg.String("llm.provider", llm.ProviderClaudeCLI), cfg.String("llm.model", ""))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var rdb *redis.Client
	if url := cfg.String("redis.url", ""); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("redis.url: %w", err)
		}
		rdb = redis.NewClient(opts)
		a.closers = append(a.closers, rdb)
	}

	store, err := openCheckpoints(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	supSettings, err := supervisor.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := openSessions(cfg, rdb, supSettings)
	if err != nil {
		return nil, err
	}

	wfSettings, err := workflows.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	reg := registry.New[string, *careflow.Workflow]()
	if err := workflows.Register(reg, wfSettings); err != nil {
		return nil, err
	}

	a.sup, err = supervisor.New(reg, store, sessions,
		supervisor.WithSettings(supSettings),
		supervisor.WithLLM(svc),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(observability.NewMetricsRecorder()),
		supervisor.WithSpans(observability.NewSpanManager()),
	)
	if err != nil {
		return nil, err
	}
	logger.Debug("careflow ready",
		slog.String("checkpoint_backend", cfg.String("checkpoint.backend", "memory")),
		slog.String("llm_provider", cfg.String("llm.provider", llm.ProviderClaudeCLI)),
		slog.Any("workflows", reg.Keys()),
	)
	return a, nil
}

// openCheckpoints opens the store named by checkpoint.backend.
func openCheckpoints(ctx context.Context, cfg config.Config, rdb *redis.Client) (checkpoint.Store, error) {
	var opts []checkpoint.Option
	if ttl := cfg.Duration("checkpoint.ttl", 0); ttl > 0 {
		opts = append(opts, checkpoint.WithTTL(ttl))
	}
	dsn := cfg.String("checkpoint.dsn", "")

	switch backend := strings.ToLower(cfg.String("checkpoint.backend", "memory")); backend {
	case "memory":
		return checkpoint.NewMemoryStore(opts...), nil
	case "sqlite":
		if dsn == "" {
			dsn = "careflow.db"
		}
		return checkpoint.NewSQLiteStore(dsn, opts...)
	case "postgres":
		if dsn == "" {
			return nil, errors.New("checkpoint.dsn is required for postgres")
		}
		return checkpoint.NewPostgresStore(ctx, dsn, opts...)
	case "redis":
		if dsn != "" {
			return checkpoint.NewRedisStore(ctx, dsn, opts...)
		}
		if rdb == nil {
			return nil, errors.New("checkpoint.dsn or redis.url is required for redis")
		}
		// The shared client is closed by the app, so wrap it without
		// handing over ownership.
		return checkpoint.NewRedisStoreFromClient(redis.NewClient(rdb.Options()), opts...), nil
	default:
		return nil, fmt.Errorf("checkpoint.backend: unknown backend %q", backend)
	}
}

// openSessions opens the store named by session.backend. It defaults to
// redis when redis.url is set.
func openSessions(cfg config.Config, rdb *redis.Client, s supervisor.Settings) (supervisor.SessionStore, error) {
	def := "memory"
	if rdb != nil {
		def = "redis"
	}
	switch backend := strings.ToLower(cfg.String("session.backend", def)); backend {
	case "memory":
		return supervisor.NewMemorySessionStore(s.SessionTTL), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis.url is required for session.backend redis")
		}
		return supervisor.NewRedisSessionStore(rdb, s.SessionTTL), nil
	default:
		return nil, fmt.Errorf("session.backend: unknown backend %q", backend)
	}
}
