package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/config"
	"github.com/gkeb/node4j/internal/graph"
	"github.com/gkeb/node4j/internal/manager"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/observability"
	"github.com/gkeb/node4j/internal/relation"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

// backend is a connected execution service.
type backend interface {
	session.Driver
	Health(ctx context.Context) types.HealthStatus
	Close(ctx context.Context) error
}

// backendOpener connects to the execution service described by cfg.
type backendOpener func(ctx context.Context, cfg config.Neo4jConfig, logger *slog.Logger) (backend, error)

// openNeo4j connects a graph.Client.
func openNeo4j(ctx context.Context, cfg config.Neo4jConfig, logger *slog.Logger) (backend, error) {
	client, err := graph.NewClient(cfg.GraphConfig(), graph.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// runtime is a manager wired to a traced backend.
type runtime struct {
	backend  backend
	manager  *manager.Manager
	shutdown []func(context.Context) error
}

// connect opens the backend and wires telemetry, the compiler cache and
// the relation policy from configuration.
func (c *cli) connect(ctx context.Context, reg *model.Registry) (*runtime, error) {
	rt := &runtime{}

	tp, err := observability.InitTracing(ctx, c.cfg.Tracing)
	if err != nil {
		return nil, err
	}
	rt.shutdown = append(rt.shutdown, func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})

	mp, err := observability.InitMetrics(ctx, c.cfg.Metrics)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.shutdown = append(rt.shutdown, func(ctx context.Context) error {
		return observability.ShutdownMetrics(ctx, mp)
	})

	be, err := c.open(ctx, c.cfg.Neo4j, c.logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.backend = be

	driver, err := observability.NewTracedDriver(be,
		observability.WithTracerProvider(tp),
		observability.WithMeterProvider(mp),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	coord := session.NewCoordinator(driver,
		session.WithDatabase(c.cfg.Neo4j.Database),
		session.WithLogger(c.logger),
	)

	comp, err := c.compiler()
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	mgr, err := manager.New(reg, coord,
		manager.WithCompiler(comp),
		manager.WithConnectPolicy(relation.ConnectPolicy(c.cfg.Relations.ConnectPolicy)),
		manager.WithLogger(c.logger),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.manager = mgr
	return rt, nil
}

// compiler builds a compiler with the configured statement cache.
func (c *cli) compiler() (*compiler.Compiler, error) {
	size := c.cfg.Compiler.StatementCacheSize
	if size <= 0 {
		return compiler.New(), nil
	}
	cache, err := compiler.NewCache(size)
	if err != nil {
		return nil, err
	}
	return compiler.New(compiler.WithCache(cache)), nil
}

// Close closes the backend and flushes telemetry.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.backend != nil {
		errs = append(errs, rt.backend.Close(ctx))
	}
	for i := len(rt.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, rt.shutdown[i](ctx))
	}
	return errors.Join(errs...)
}
