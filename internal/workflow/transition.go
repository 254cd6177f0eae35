package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
)

// DemandeWriter is the part of the persistence gateway the Transitioner needs.
type DemandeWriter interface {
	Demande(ctx context.Context, id int64) (*model.Demande, error)
	UpdateDemandeEtat(ctx context.Context, id int64, etat model.EtatDemande, profilID *int64) error
	RestoreDemande(ctx context.Context, id int64, etat model.EtatDemande, profilID *int64) error
}

// Transition describes a requested state change.
type Transition struct {
	DemandeID   int64
	Etat        model.EtatDemande
	ProfilID    *int64
	Acteur      string
	Commentaire string
}

// Transitioner is the only writer of Demande.Etat. It stores the new state
// and publishes the state-changed message; the log row is appended by the
// journal handler when that message is consumed.
type Transitioner struct {
	store  DemandeWriter
	bus    queue.Dispatcher
	logger *slog.Logger
}

// NewTransitioner constructs a Transitioner.
func NewTransitioner(store DemandeWriter, bus queue.Dispatcher, logger *slog.Logger) *Transitioner {
	return &Transitioner{store: store, bus: bus, logger: logger}
}

// Apply performs t. A demande already in the target state is left untouched.
// When the message cannot be published the previous state is restored so no
// state change exists without its log row.
func (tr *Transitioner) Apply(ctx context.Context, t Transition) error {
	d, err := tr.store.Demande(ctx, t.DemandeID)
	if err != nil {
		return fmt.Errorf("load demande %d: %w", t.DemandeID, err)
	}
	if d.Etat == t.Etat {
		tr.logger.DebugContext(ctx, "demande already in state",
			slog.Int64("demande", d.ID), slog.String("etat", string(t.Etat)))
		return nil
	}
	if err := tr.store.UpdateDemandeEtat(ctx, d.ID, t.Etat, t.ProfilID); err != nil {
		return fmt.Errorf("update demande %d: %w", d.ID, err)
	}
	msg := queue.EtatDemandeModifie{
		MessageID:     uuid.NewString(),
		DemandeID:     d.ID,
		Etat:          t.Etat,
		EtatPrecedent: d.Etat,
		ProfilID:      t.ProfilID,
		Acteur:        t.Acteur,
		Commentaire:   t.Commentaire,
	}
	if err := tr.bus.Dispatch(ctx, msg); err != nil {
		if rerr := tr.store.RestoreDemande(ctx, d.ID, d.Etat, d.ProfilAttribue); rerr != nil {
			tr.logger.ErrorContext(ctx, "restore demande state failed",
				slog.Int64("demande", d.ID), logging.Err(rerr))
		}
		return fmt.Errorf("publish state change of demande %d: %w", d.ID, err)
	}
	tr.logger.InfoContext(ctx, "demande transitioned",
		slog.Int64("demande", d.ID),
		slog.String("from", string(d.Etat)),
		slog.String("to", string(t.Etat)),
		slog.String("acteur", t.Acteur))
	return nil
}
