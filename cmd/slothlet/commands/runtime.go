package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/slothlet/slothlet/pkg/config"
	"github.com/slothlet/slothlet/pkg/configstore"
	"github.com/slothlet/slothlet/pkg/engine"
	"github.com/slothlet/slothlet/pkg/resolver"
	"github.com/slothlet/slothlet/pkg/scanner"
	"github.com/slothlet/slothlet/pkg/telemetry"
)

// runtime bundles the wired-up collaborators every command needs:
// logger, telemetry, config store, resolver and engine.
type runtime struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	store    *configstore.Store
	persist  *configstore.Persistence
	resolver *resolver.Resolver
	engine   *engine.Engine
}

// newRuntime loads the bootstrap config (or defaults when none is
// given) and wires the full runtime.
func newRuntime(ctx context.Context, version string) (*runtime, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		parser, err := config.NewParser()
		if err != nil {
			return nil, err
		}
		parsed, err := parser.ParseFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = *parsed
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	tracer, err := telemetry.NewTracer(cfg.Tracing, "slothlet", version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	rt := &runtime{cfg: &cfg, logger: logger, metrics: metrics, tracer: tracer}

	storeOpts := []configstore.Option{
		configstore.WithMetrics(metrics),
		configstore.WithTracer(tracer),
	}
	if cfg.Store.Defaults != "" {
		storeOpts = append(storeOpts, configstore.WithSource(configstore.NewFileSource(cfg.Store.Defaults)))
	}
	if cfg.Store.Store != "" {
		persist, err := configstore.NewPersistence(cfg.Store.Store)
		if err != nil {
			return nil, err
		}
		if err := persist.Init(ctx); err != nil {
			return nil, err
		}
		rt.persist = persist
		storeOpts = append(storeOpts, configstore.WithPersistence(persist))
	}
	rt.store = configstore.New(logger, storeOpts...)
	if err := rt.store.Init(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}
	if cfg.Store.Watch && cfg.Store.Defaults != "" {
		go func() {
			if err := rt.store.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("defaults watcher stopped")
			}
		}()
	}

	rt.resolver = resolver.New(logger,
		resolver.WithTracer(tracer),
		resolver.WithConfigBinder(func(module string) resolver.ConfigAccessor {
			return rt.store.Bind(module)
		}),
	)

	rt.engine = engine.New(scanner.New(logger), rt.resolver,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer),
	)
	for _, m := range cfg.Mounts {
		if err := rt.engine.AddAPI(m.Key, m.Path); err != nil {
			rt.close(ctx)
			return nil, err
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	return rt, nil
}

// namespace builds the composed API from the configured root directory
// and mounts.
func (rt *runtime) namespace(ctx context.Context) (*engine.Namespace, error) {
	return rt.engine.Load(ctx, engine.Options{Lazy: rt.cfg.Lazy, Dir: rt.cfg.Dir})
}

// close releases everything the runtime holds open.
func (rt *runtime) close(ctx context.Context) {
	if rt.resolver != nil {
		if err := rt.resolver.Close(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("resolver close failed")
		}
	}
	if rt.persist != nil {
		if err := rt.persist.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("store close failed")
		}
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}
}
