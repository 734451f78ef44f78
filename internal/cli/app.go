package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/config"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/adapters/amqp"
	"github.com/aretw0/flowchat/pkg/adapters/file"
	httpadapter "github.com/aretw0/flowchat/pkg/adapters/http"
	"github.com/aretw0/flowchat/pkg/adapters/minio"
	"github.com/aretw0/flowchat/pkg/adapters/redis"
	"github.com/aretw0/flowchat/pkg/adapters/sqlstore"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/leads"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/persistence/middleware"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewLogger builds the process logger from cfg. Logs go to Stderr.
func NewLogger(cfg *config.Config) *slog.Logger {
	if cfg.LogFormat == "json" {
		return logging.NewJSON(os.Stderr, cfg.Level())
	}
	return logging.New(cfg.Level())
}

// App holds the backends shared by the serve and mcp commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Loader   *file.Loader
	Manager  *session.Manager
	Registry *prometheus.Registry
	Checks   map[string]httpadapter.HealthCheck

	closers []func(context.Context) error
}

// NewApp connects every backend enabled in cfg. Backends left unconfigured
// fall back to in-process defaults: no snapshots, no lead storage.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	app = &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Checks:   make(map[string]httpadapter.HealthCheck),
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		return nil, err
	}

	app.Loader, err = file.NewLoader(cfg.FlowsDir)
	if err != nil {
		return nil, fmt.Errorf("flows: %w", err)
	}

	hooks := []domain.LifecycleHooks{metrics.Hooks()}
	switch {
	case cfg.OTLPEndpoint != "":
		tp, err := observability.NewOTLPTracerProvider(ctx, cfg.OTLPEndpoint, flowchat.Version)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		app.closers = append(app.closers, tp.Shutdown)
		hooks = append(hooks, observability.NewTracer(tp).Hooks())
	case cfg.Tracing:
		tp := observability.NewLogTracerProvider(logger)
		app.closers = append(app.closers, tp.Shutdown)
		hooks = append(hooks, observability.NewTracer(tp).Hooks())
	}

	engineOpts := []flowchat.Option{
		flowchat.WithLogger(logger),
		flowchat.WithLeadTimeout(cfg.LeadTimeout),
		flowchat.WithMaxInputSize(cfg.MaxInputSize),
		flowchat.WithLifecycleHooks(domain.CombineHooks(hooks...)),
	}

	tracker, err := app.leadTracker(ctx)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		engineOpts = append(engineOpts, flowchat.WithLeadTracker(tracker))
	}

	if cfg.Media.Endpoint != "" {
		resolver, err := minio.New(minio.Config{
			Endpoint:  cfg.Media.Endpoint,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
			Bucket:    cfg.Media.Bucket,
			Region:    cfg.Media.Region,
			UseSSL:    cfg.Media.UseSSL,
			Expiry:    cfg.Media.Expiry,
		})
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, flowchat.WithMediaResolver(resolver))
	}

	managerOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithEngineOptions(engineOpts...),
	}
	if cfg.Redis.Addr != "" {
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithTTL(cfg.Redis.SessionTTL))
		app.closers = append(app.closers, func(context.Context) error { return store.Close() })
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.Checks["redis"] = store.Ping
		snapshots, err := ProtectSnapshots(store, cfg.Snapshot)
		if err != nil {
			return nil, err
		}
		managerOpts = append(managerOpts,
			session.WithSnapshotStore(snapshots),
			session.WithLocker(redis.NewLocker(store.Client(), redis.DefaultPrefix)),
		)
	}

	app.Manager = session.NewManager(app.Loader, managerOpts...)
	logger.Info("flowchat ready",
		"flows_dir", cfg.FlowsDir,
		"redis", cfg.Redis.Addr != "",
		"lead_db", cfg.Database.DSN != "",
		"amqp", cfg.AMQP.URL != "",
		"media", cfg.Media.Endpoint != "",
	)
	return app, nil
}

// ProtectSnapshots masks then encrypts snapshots, as configured.
func ProtectSnapshots(store ports.SnapshotStore, cfg config.Snapshot) (ports.SnapshotStore, error) {
	mws, err := snapshotMiddlewares(cfg)
	if err != nil {
		return nil, err
	}
	return middleware.Chain(store, mws...), nil
}

func snapshotMiddlewares(cfg config.Snapshot) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.Mask) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.Mask)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.Key == "" {
		return mws, nil
	}
	active, err := middleware.ParseKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	encryption, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return append(mws, encryption), nil
}

// leadTracker combines the lead database and the event publisher. The
// database, when present, owns the lead id.
func (a *App) leadTracker(ctx context.Context) (ports.LeadTracker, error) {
	var trackers []ports.LeadTracker

	if a.Config.Database.DSN != "" {
		store, err := sqlstore.Open(ctx, a.Config.Dialect(), a.Config.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		a.Checks["database"] = store.Ping
		trackers = append(trackers, store)
	}

	if a.Config.AMQP.URL != "" {
		pub, err := amqp.Dial(a.Config.AMQP.URL, a.Config.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		trackers = append(trackers, pub)
	}

	switch len(trackers) {
	case 0:
		return nil, nil
	case 1:
		return leads.NewLogged(trackers[0], a.Logger), nil
	}
	return leads.NewLogged(leads.NewMulti(a.Logger, trackers[0], trackers[1:]...), a.Logger), nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
