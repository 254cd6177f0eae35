// Package bilan builds the anonymized activity report of beneficiaries over
// an interval and stores it as a CSV file.
package bilan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/render"
	"github.com/dharsanguruparan/amenagements/internal/retry"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// NomFichier is the name every generated report is stored under.
const NomFichier = "bilan_activite.csv"

// Store is the persistence gateway used by the generator.
type Store interface {
	Bilan(ctx context.Context, id int64) (*model.Bilan, error)
	BeneficiaireUIDs(ctx context.Context, q model.BeneficiaireQuery) ([]string, error)
	AssignNumeroAnonyme(ctx context.Context, uid string) (int64, error)
	Utilisateur(ctx context.Context, uid string) (*model.Utilisateur, error)
	DerniereInscription(ctx context.Context, uid string) (*model.Inscription, error)
	Beneficiaires(ctx context.Context, uid string) ([]model.Beneficiaire, error)
	Profil(ctx context.Context, id int64) (*model.Profil, error)
	Amenagements(ctx context.Context, uid string) ([]model.Amenagement, error)
	CountEntretiens(ctx context.Context, uid string, debut, fin time.Time) (int, error)
	BeginIntent(ctx context.Context, kind model.IntentKind, ref int64) (*model.EffectIntent, error)
	FailIntent(ctx context.Context, id, reason string) error
	SetIntentObjectKey(ctx context.Context, id, key string) error
	AbandonIntent(ctx context.Context, id, reason string) error
	CompleteBilan(ctx context.Context, id int64, f *model.Fichier, at time.Time, intentID string) (bool, error)
}

// FileStore stores generated reports.
type FileStore interface {
	Store(ctx context.Context, data []byte, filename, mimeType, description string) (*model.Fichier, error)
	Remove(ctx context.Context, key string) error
}

// Encoder renders document models.
type Encoder interface {
	Encode(m any, f render.Format) ([]byte, error)
}

// Generator handles GenerationBilan messages.
type Generator struct {
	store   Store
	files   FileStore
	encoder Encoder
	bus     queue.Dispatcher
	retries *retry.Scheduler
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// PolicyFrom returns the redelivery policy configured for reports.
func PolicyFrom(cfg *config.Config) retry.Policy {
	return retry.Policy{Delay: cfg.BilanRetryDelay, MaxAttempts: cfg.BilanMaxAttempts}
}

// New wires a Generator.
func New(store Store, files FileStore, encoder Encoder, bus queue.Dispatcher,
	retries *retry.Scheduler, policy retry.Policy, logger *slog.Logger) *Generator {
	return &Generator{
		store:   store,
		files:   files,
		encoder: encoder,
		bus:     bus,
		retries: retries,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the clock.
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// Register subscribes the generator on r.
func (g *Generator) Register(r *worker.Router) {
	worker.Subscribe(r, "bilan.generation", 0, g.Generate)
}

// Lignes computes the report rows of b.
func (g *Generator) Lignes(ctx context.Context, b *model.Bilan) ([]Ligne, error) {
	q, err := BuildQuery(b, g.logger)
	if err != nil {
		return nil, err
	}
	uids, err := g.store.BeneficiaireUIDs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query beneficiaries: %w", err)
	}
	lignes := make([]Ligne, 0, len(uids))
	for _, uid := range uids {
		l, err := g.ligne(ctx, b, uid)
		if err != nil {
			return nil, fmt.Errorf("row of %s: %w", uid, err)
		}
		lignes = append(lignes, l)
	}
	return lignes, nil
}

// Generate builds, stores and commits one report. Setting the generation
// date is the commit point: a report already generated is left alone, and a
// storage failure schedules the same message again after the policy delay.
func (g *Generator) Generate(ctx context.Context, msg queue.GenerationBilan) error {
	log := g.logger.With(slog.Int64("bilan", msg.BilanID), slog.Int("attempt", msg.Attempt))
	b, err := g.store.Bilan(ctx, msg.BilanID)
	if errors.Is(err, model.ErrNotFound) {
		log.WarnContext(ctx, "bilan not found, message ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bilan %d: %w", msg.BilanID, err)
	}
	if b.Genere() {
		log.InfoContext(ctx, "bilan already generated")
		return nil
	}
	lignes, err := g.Lignes(ctx, b)
	if err != nil {
		return fmt.Errorf("bilan %d: %w", b.ID, err)
	}
	data, err := g.encoder.Encode(Table(lignes), render.FormatCSV)
	if err != nil {
		return fmt.Errorf("bilan %d: %w", b.ID, err)
	}

	intent, err := g.store.BeginIntent(ctx, model.IntentGenerationBilan, b.ID)
	if err != nil {
		return fmt.Errorf("begin intent: %w", err)
	}
	if intent.ObjectKey != "" {
		log.InfoContext(ctx, "removing report left by an interrupted run", slog.String("key", intent.ObjectKey))
		if err := g.files.Remove(ctx, intent.ObjectKey); err != nil {
			return g.redeliver(ctx, log, msg, intent, err)
		}
	}
	f, err := g.files.Store(ctx, data, NomFichier, render.FormatCSV.MimeType(), b.Description)
	if err != nil {
		return g.redeliver(ctx, log, msg, intent, err)
	}
	if err := g.store.SetIntentObjectKey(ctx, intent.ID, f.ObjectKey); err != nil {
		return fmt.Errorf("record object key: %w", err)
	}
	committed, err := g.store.CompleteBilan(ctx, b.ID, f, g.now().UTC(), intent.ID)
	if err != nil {
		return fmt.Errorf("complete bilan %d: %w", b.ID, err)
	}
	if !committed {
		log.InfoContext(ctx, "bilan generated concurrently, removing duplicate", slog.String("key", f.ObjectKey))
		if err := g.files.Remove(ctx, f.ObjectKey); err != nil {
			log.ErrorContext(ctx, "remove duplicate report", logging.Err(err))
		}
		return g.store.AbandonIntent(ctx, intent.ID, "bilan already generated")
	}
	log.InfoContext(ctx, "bilan generated", slog.Int("lignes", len(lignes)), slog.String("key", f.ObjectKey))
	if err := g.bus.Dispatch(ctx, queue.RessourceModifiee{Ressource: "bilans", ID: strconv.FormatInt(b.ID, 10)}); err != nil {
		log.ErrorContext(ctx, "publish bilan change failed", logging.Err(err))
	}
	return nil
}

func (g *Generator) redeliver(ctx context.Context, log *slog.Logger, msg queue.GenerationBilan, intent *model.EffectIntent, cause error) error {
	if err := g.store.FailIntent(ctx, intent.ID, cause.Error()); err != nil {
		return fmt.Errorf("fail intent: %w", err)
	}
	outcome, err := g.retries.Redeliver(ctx, msg, g.policy, cause)
	if err != nil {
		return err
	}
	if outcome == retry.DeadLettered {
		if err := g.store.AbandonIntent(ctx, intent.ID, "dead-lettered: "+cause.Error()); err != nil {
			log.ErrorContext(ctx, "abandon intent", logging.Err(err))
		}
	}
	return nil
}
