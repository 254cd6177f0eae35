// Package reconcile repairs effects left half-done by a crashed handler.
// Handlers record an intent before calling an external system and complete
// it in the same write as their commit point; an intent still pending long
// after its last update therefore marks a run that never reached the commit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// Store is the persistence gateway used by the sweep.
type Store interface {
	StaleIntents(ctx context.Context, before time.Time) ([]model.EffectIntent, error)
	AbandonIntent(ctx context.Context, id, reason string) error
	Decision(ctx context.Context, id int64) (*model.Decision, error)
	Bilan(ctx context.Context, id int64) (*model.Bilan, error)
}

// FileRemover deletes orphaned objects.
type FileRemover interface {
	Remove(ctx context.Context, key string) error
}

// Report summarizes one sweep.
type Report struct {
	Examined     int
	Redispatched int
	Abandoned    int
	Removed      int
}

// Sweeper finds stale intents and repairs them.
type Sweeper struct {
	store      Store
	files      FileRemover
	bus        queue.Dispatcher
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a Sweeper considering intents stale after staleAfter.
func New(store Store, files FileRemover, bus queue.Dispatcher, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, files: files, bus: bus, staleAfter: staleAfter, logger: logger, now: time.Now}
}

// SetClock overrides the clock.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Register subscribes the sweep on r.
func (s *Sweeper) Register(r *worker.Router) {
	worker.Subscribe(r, "reconcile.sweep", 0, s.Handle)
}

// Handle runs one sweep.
func (s *Sweeper) Handle(ctx context.Context, _ queue.Reconciliation) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep abandons every stale pending intent and, when its effect never
// committed, publishes the work again. The redispatched message carries the
// attempts already spent so the bound on redeliveries still holds.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	intents, err := s.store.StaleIntents(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		return rep, fmt.Errorf("list stale intents: %w", err)
	}
	var errs []error
	for _, in := range intents {
		rep.Examined++
		if err := s.repair(ctx, in, &rep); err != nil {
			s.logger.ErrorContext(ctx, "repair intent failed", slog.String("intent", in.ID), logging.Err(err))
			errs = append(errs, err)
		}
	}
	s.logger.InfoContext(ctx, "reconciliation done",
		slog.Int("examined", rep.Examined),
		slog.Int("redispatched", rep.Redispatched),
		slog.Int("abandoned", rep.Abandoned),
		slog.Int("removed", rep.Removed))
	return rep, errors.Join(errs...)
}

func (s *Sweeper) repair(ctx context.Context, in model.EffectIntent, rep *Report) error {
	var (
		next      queue.Message
		committed bool
	)
	switch in.Kind {
	case model.IntentEditionDecision:
		d, err := s.store.Decision(ctx, in.Ref)
		switch {
		case errors.Is(err, model.ErrNotFound):
			committed = true
		case err != nil:
			return fmt.Errorf("load decision %d: %w", in.Ref, err)
		default:
			committed = d.Etat == model.EtatDecisionEditee
		}
		next = queue.EditionDecision{DecisionID: in.Ref, Attempt: in.Attempts}
	case model.IntentGenerationBilan:
		b, err := s.store.Bilan(ctx, in.Ref)
		switch {
		case errors.Is(err, model.ErrNotFound):
			committed = true
		case err != nil:
			return fmt.Errorf("load bilan %d: %w", in.Ref, err)
		default:
			committed = b.Genere()
		}
		if in.ObjectKey != "" {
			if err := s.files.Remove(ctx, in.ObjectKey); err != nil {
				return fmt.Errorf("remove orphaned object %s: %w", in.ObjectKey, err)
			}
			rep.Removed++
		}
		next = queue.GenerationBilan{BilanID: in.Ref, Attempt: in.Attempts}
	default:
		s.logger.WarnContext(ctx, "unknown intent kind", slog.String("intent", in.ID), slog.String("kind", string(in.Kind)))
		return nil
	}

	reason := "stale intent, effect redispatched"
	if committed {
		reason = "stale intent, effect already committed"
	}
	if err := s.store.AbandonIntent(ctx, in.ID, reason); err != nil {
		return fmt.Errorf("abandon intent %s: %w", in.ID, err)
	}
	rep.Abandoned++
	if committed {
		return nil
	}
	if err := s.bus.Dispatch(ctx, next); err != nil {
		return fmt.Errorf("redispatch %s: %w", next.TaskType(), err)
	}
	rep.Redispatched++
	s.logger.WarnContext(ctx, "stale effect redispatched",
		slog.String("intent", in.ID), slog.String("kind", string(in.Kind)), slog.Int64("ref", in.Ref))
	return nil
}
