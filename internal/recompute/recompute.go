// Package recompute keeps the denormalized fields of Utilisateur in sync with
// the rows they are derived from.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// EtatAvisEs derives the medical-opinion state from the opinions of a user.
func EtatAvisEs(avis []model.AvisEs, now time.Time) model.EtatAvisEs {
	if len(avis) == 0 {
		return model.AvisEsNonRenseigne
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, a := range avis {
		debut := time.Date(a.Debut.Year(), a.Debut.Month(), a.Debut.Day(), 0, 0, 0, 0, time.UTC)
		if debut.After(today) {
			continue
		}
		if a.Fin == nil {
			return model.AvisEsValide
		}
		fin := time.Date(a.Fin.Year(), a.Fin.Month(), a.Fin.Day(), 0, 0, 0, 0, time.UTC)
		if !fin.Before(today) {
			return model.AvisEsValide
		}
	}
	return model.AvisEsExpire
}

// AnneeUniversitaire returns the academic year containing now. Years start
// on the first of september.
func AnneeUniversitaire(now time.Time) int {
	if now.Month() >= time.September {
		return now.Year()
	}
	return now.Year() - 1
}

// EtatDecision derives the decision state of a user for annee.
func EtatDecision(decisions []model.Decision, annee int) model.EtatDecisionUtilisateur {
	etat := model.DecisionAucune
	for _, d := range decisions {
		if d.Annee != annee {
			continue
		}
		if d.Etat == model.EtatDecisionEditee {
			return model.DecisionEditee
		}
		etat = model.DecisionAttente
	}
	return etat
}

// Store is the persistence gateway used by the recompute handlers.
type Store interface {
	AvisEs(ctx context.Context, uid string) ([]model.AvisEs, error)
	Decisions(ctx context.Context, uid string) ([]model.Decision, error)
	UpdateEtatAvisEs(ctx context.Context, uid string, etat model.EtatAvisEs) error
	UpdateEtatDecision(ctx context.Context, uid string, etat model.EtatDecisionUtilisateur) error
}

// Handlers recompute derived user fields.
type Handlers struct {
	store  Store
	bus    queue.Dispatcher
	logger *slog.Logger
	now    func() time.Time
}

// NewHandlers wires the handlers.
func NewHandlers(store Store, bus queue.Dispatcher, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, bus: bus, logger: logger, now: time.Now}
}

// SetClock overrides the clock.
func (h *Handlers) SetClock(now func() time.Time) { h.now = now }

// Register subscribes the handlers on r.
func (h *Handlers) Register(r *worker.Router) {
	worker.Subscribe(r, "recompute.avis_es", 0, h.AvisEs)
	worker.Subscribe(r, "recompute.decision", 0, h.Decision)
	worker.Subscribe(r, "recompute.membre_commission", 0, h.MembreCommission)
}

// AvisEs recomputes Utilisateur.EtatAvisEs.
func (h *Handlers) AvisEs(ctx context.Context, msg queue.AvisEsModifie) error {
	avis, err := h.store.AvisEs(ctx, msg.UID)
	if err != nil {
		return fmt.Errorf("load avis of %s: %w", msg.UID, err)
	}
	etat := EtatAvisEs(avis, h.now())
	if err := h.store.UpdateEtatAvisEs(ctx, msg.UID, etat); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.logger.WarnContext(ctx, "utilisateur not found", slog.String("uid", msg.UID))
			return nil
		}
		return fmt.Errorf("update etat avis of %s: %w", msg.UID, err)
	}
	return h.userChanged(ctx, msg.UID)
}

// Decision recomputes Utilisateur.EtatDecision for the current year.
func (h *Handlers) Decision(ctx context.Context, msg queue.DecisionModifiee) error {
	decisions, err := h.store.Decisions(ctx, msg.UID)
	if err != nil {
		return fmt.Errorf("load decisions of %s: %w", msg.UID, err)
	}
	etat := EtatDecision(decisions, AnneeUniversitaire(h.now()))
	if err := h.store.UpdateEtatDecision(ctx, msg.UID, etat); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.logger.WarnContext(ctx, "utilisateur not found", slog.String("uid", msg.UID))
			return nil
		}
		return fmt.Errorf("update etat decision of %s: %w", msg.UID, err)
	}
	return h.userChanged(ctx, msg.UID)
}

// MembreCommission republishes a committee membership change as a user and a
// role change.
func (h *Handlers) MembreCommission(ctx context.Context, msg queue.MembreCommissionModifie) error {
	role := msg.Role
	if role == "" {
		role = model.RoleMembreCommission
	}
	if err := h.userChanged(ctx, msg.UID); err != nil {
		return err
	}
	if err := h.bus.Dispatch(ctx, queue.RoleModifie{Role: role}); err != nil {
		return fmt.Errorf("publish role change: %w", err)
	}
	return nil
}

func (h *Handlers) userChanged(ctx context.Context, uid string) error {
	if err := h.bus.Dispatch(ctx, queue.UtilisateurModifie{UID: uid}); err != nil {
		return fmt.Errorf("publish user change: %w", err)
	}
	return nil
}
