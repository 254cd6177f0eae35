// Package app assembles every message handler on a worker.Router. The asynq
// worker and the CLI inline mode share it so both run the same graph.
package app

import (
	"log/slog"

	"github.com/dharsanguruparan/amenagements/internal/bilan"
	"github.com/dharsanguruparan/amenagements/internal/cacheinval"
	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/decision"
	"github.com/dharsanguruparan/amenagements/internal/mailer"
	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/recompute"
	"github.com/dharsanguruparan/amenagements/internal/reconcile"
	"github.com/dharsanguruparan/amenagements/internal/render"
	"github.com/dharsanguruparan/amenagements/internal/retry"
	"github.com/dharsanguruparan/amenagements/internal/worker"
	"github.com/dharsanguruparan/amenagements/internal/workflow"
)

// Store is the union of the gateways the handlers need. Both
// repository.Repository and storage.MemoryStore satisfy it.
type Store interface {
	workflow.Store
	decision.Store
	bilan.Store
	cacheinval.Store
	recompute.Store
	reconcile.Store
	retry.DeadLetterStore
}

// Deps are the adapters the handlers run against.
type Deps struct {
	Config  *config.Config
	Store   Store
	Files   bilan.FileStore
	Mail    mailer.Sender
	Tags    cacheinval.TagInvalidator
	Refs    cacheinval.RefInvalidator
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Components exposes the wired handlers to callers needing direct access,
// such as the CLI applying a transition.
type Components struct {
	Workflow  *workflow.Handlers
	Decision  *decision.Workflow
	Bilan     *bilan.Generator
	Cache     *cacheinval.Handlers
	Recompute *recompute.Handlers
	Sweeper   *reconcile.Sweeper
}

// Register builds every handler publishing on bus and subscribes it on r.
func Register(r *worker.Router, bus queue.Dispatcher, d Deps) *Components {
	retries := retry.NewScheduler(bus, d.Logger, d.Metrics)
	encoder := render.New()
	c := &Components{
		Workflow:  workflow.NewHandlers(d.Store, bus, d.Mail, workflow.SettingsFrom(d.Config), d.Logger, d.Metrics),
		Decision:  decision.New(d.Store, encoder, d.Mail, d.Files, bus, retries, decision.PolicyFrom(d.Config), d.Logger),
		Bilan:     bilan.New(d.Store, d.Files, encoder, bus, retries, bilan.PolicyFrom(d.Config), d.Logger),
		Cache:     cacheinval.NewHandlers(d.Store, d.Tags, d.Refs, d.Logger, d.Metrics),
		Recompute: recompute.NewHandlers(d.Store, bus, d.Logger),
		Sweeper:   reconcile.New(d.Store, d.Files, bus, d.Config.IntentStaleAfter, d.Logger),
	}
	c.Workflow.Register(r)
	c.Decision.Register(r)
	c.Bilan.Register(r)
	c.Cache.Register(r)
	c.Recompute.Register(r)
	c.Sweeper.Register(r)
	retry.NewDeadLetterHandler(d.Store, d.Logger).Register(r)
	return c
}
