package main

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/amenagements/internal/app"
	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/processing"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// runtime is what a command runs against: the production adapters, the bus
// and the wired handlers.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	adapters   *app.Adapters
	bus        queue.Dispatcher
	local      *processing.LocalBus
	components *app.Components
}

// drain handles every message published so far when running inline.
func (rt *runtime) drain(ctx context.Context) error {
	if rt.local == nil {
		return nil
	}
	return rt.local.RunUntilIdle(ctx)
}

func withRuntime(ctx context.Context, fn func(context.Context, *runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)
	adapters, err := app.Open(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer adapters.Close()

	rt := &runtime{cfg: cfg, logger: logger, adapters: adapters}
	router := worker.NewRouter(logger, nil)
	if inline {
		rt.local = processing.New(router, logger, cfg.ProcessingPool)
		rt.bus = rt.local
	} else {
		client := asynq.NewClient(app.RedisOpt(cfg))
		defer client.Close()
		rt.bus = queue.NewBus(client)
	}
	rt.components = app.Register(router, rt.bus, adapters.Deps)
	if err := fn(ctx, rt); err != nil {
		return err
	}
	return rt.drain(ctx)
}
