// Package workflow implements the Demande state machine: the journal of
// transitions, the follow-up fan-out and the per-state handlers that notify
// requesters and auto-advance demandes.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/mailer"
	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
)

// Store is the persistence gateway used by the state machine handlers.
type Store interface {
	DemandeWriter
	AppendModification(ctx context.Context, mod *model.ModificationEtatDemande) (bool, error)
	Campagne(ctx context.Context, id int64) (*model.Campagne, error)
	TypeDemande(ctx context.Context, id int64) (*model.TypeDemande, error)
	Profil(ctx context.Context, id int64) (*model.Profil, error)
	CreateChartesDemande(ctx context.Context, demandeID int64, chartes []model.Charte) error
	ChartesDemande(ctx context.Context, demandeID int64) ([]model.CharteDemandeur, error)
	CharteDemandeur(ctx context.Context, id int64) (*model.CharteDemandeur, error)
	Reponse(ctx context.Context, uid string, campagneID int64, question string) (*model.Reponse, error)
	SportifHautNiveau(ctx context.Context, numero string) (*model.SportifHautNiveau, error)
	Utilisateur(ctx context.Context, uid string) (*model.Utilisateur, error)
	CreateBeneficiaire(ctx context.Context, b *model.Beneficiaire) error
}

// Settings are the constants the handlers depend on.
type Settings struct {
	ProfilSportif   int64
	QuestionSportif string
	ActeurSysteme   string
}

// SettingsFrom extracts the workflow settings from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		ProfilSportif:   cfg.ProfilSportifHautNiveau,
		QuestionSportif: cfg.QuestionSportifHautNiveau,
		ActeurSysteme:   cfg.ActeurSysteme,
	}
}

// Handlers groups the message handlers of the state machine.
type Handlers struct {
	store    Store
	bus      queue.Dispatcher
	mail     mailer.Sender
	trans    *Transitioner
	settings Settings
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewHandlers wires the handlers.
func NewHandlers(store Store, bus queue.Dispatcher, mail mailer.Sender, settings Settings, logger *slog.Logger, m *metrics.Metrics) *Handlers {
	return &Handlers{
		store:    store,
		bus:      bus,
		mail:     mail,
		trans:    NewTransitioner(store, bus, logger),
		settings: settings,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Transitioner returns the transitioner shared by the handlers.
func (h *Handlers) Transitioner() *Transitioner { return h.trans }

// SetClock overrides the clock.
func (h *Handlers) SetClock(now func() time.Time) { h.now = now }

// loadDemande returns nil without error when the demande does not exist.
func (h *Handlers) loadDemande(ctx context.Context, id int64) (*model.Demande, error) {
	d, err := h.store.Demande(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		h.logger.WarnContext(ctx, "demande not found, message ignored", slog.Int64("demande", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load demande %d: %w", id, err)
	}
	return d, nil
}

// typeOf returns the campaign and the request type of d, or nils when one is
// missing.
func (h *Handlers) typeOf(ctx context.Context, d *model.Demande) (*model.Campagne, *model.TypeDemande, error) {
	c, err := h.store.Campagne(ctx, d.CampagneID)
	if errors.Is(err, model.ErrNotFound) {
		h.logger.WarnContext(ctx, "campagne not found", slog.Int64("demande", d.ID), slog.Int64("campagne", d.CampagneID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load campagne %d: %w", d.CampagneID, err)
	}
	t, err := h.store.TypeDemande(ctx, c.TypeDemandeID)
	if errors.Is(err, model.ErrNotFound) {
		h.logger.WarnContext(ctx, "type de demande not found", slog.Int64("demande", d.ID), slog.Int64("type", c.TypeDemandeID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load type de demande %d: %w", c.TypeDemandeID, err)
	}
	return c, t, nil
}

// acteur resolves the user a gate handler acts on behalf of. Failures are
// returned to the caller so the message is retried.
func (h *Handlers) acteur(ctx context.Context, ref string) (string, error) {
	if ref == "" || ref == h.settings.ActeurSysteme {
		return h.settings.ActeurSysteme, nil
	}
	u, err := h.store.Utilisateur(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("resolve acteur %s: %w", ref, err)
	}
	return u.UID, nil
}

// demandeur resolves the requester of d. A missing requester is reported as
// nil so notifications can be skipped.
func (h *Handlers) demandeur(ctx context.Context, d *model.Demande) (*model.Utilisateur, error) {
	u, err := h.store.Utilisateur(ctx, d.DemandeurUID)
	if errors.Is(err, model.ErrNotFound) {
		h.logger.WarnContext(ctx, "demandeur not found, notification skipped",
			slog.Int64("demande", d.ID), slog.String("uid", d.DemandeurUID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load demandeur %s: %w", d.DemandeurUID, err)
	}
	return u, nil
}

func (h *Handlers) notify(ctx context.Context, d *model.Demande, kind mailer.Kind, commentaire string) error {
	u, err := h.demandeur(ctx, d)
	if err != nil || u == nil {
		return err
	}
	data := map[string]string{
		"demande":     strconv.FormatInt(d.ID, 10),
		"prenom":      u.Prenom,
		"nom":         u.Nom,
		"commentaire": commentaire,
	}
	if err := h.mail.Send(ctx, kind, u.Email, data); err != nil {
		return fmt.Errorf("notify demande %d: %w", d.ID, err)
	}
	return nil
}

// EtatModifie journals a transition and fans it out. The log row is keyed by
// the message id so redeliveries append nothing; the publications are
// repeated since every consumer is idempotent.
func (h *Handlers) EtatModifie(ctx context.Context, msg queue.EtatDemandeModifie) error {
	d, err := h.loadDemande(ctx, msg.DemandeID)
	if err != nil || d == nil {
		return err
	}
	mod := &model.ModificationEtatDemande{
		MessageID:     msg.MessageID,
		DemandeID:     d.ID,
		EtatPrecedent: msg.EtatPrecedent,
		Etat:          msg.Etat,
		ProfilID:      msg.ProfilID,
		ActeurUID:     msg.Acteur,
		Commentaire:   msg.Commentaire,
		Date:          h.now().UTC(),
	}
	inserted, err := h.store.AppendModification(ctx, mod)
	if err != nil {
		return fmt.Errorf("append transition of demande %d: %w", d.ID, err)
	}
	if inserted {
		h.metrics.Transition(string(msg.Etat))
	} else {
		h.logger.InfoContext(ctx, "transition already journaled", slog.String("message", msg.MessageID))
	}
	if err := h.bus.Dispatch(ctx, queue.RessourceModifiee{Ressource: "demandes", ID: strconv.FormatInt(d.ID, 10)}); err != nil {
		return fmt.Errorf("publish resource change: %w", err)
	}
	suivi := queue.DemandeSuivi{DemandeID: d.ID, Acteur: msg.Acteur, Commentaire: msg.Commentaire}
	if next, ok := FollowUp(msg.Etat, suivi); ok {
		if err := h.bus.Dispatch(ctx, next); err != nil {
			return fmt.Errorf("publish %s: %w", next.TaskType(), err)
		}
	}
	return nil
}

// ControleConformite moves a received demande straight to CONFORME when its
// type requires no conformity review.
func (h *Handlers) ControleConformite(ctx context.Context, msg queue.EtatDemandeModifie) error {
	if msg.Etat != model.EtatReceptionnee {
		return nil
	}
	d, err := h.loadDemande(ctx, msg.DemandeID)
	if err != nil || d == nil || d.Etat != model.EtatReceptionnee {
		return err
	}
	_, t, err := h.typeOf(ctx, d)
	if err != nil || t == nil || t.ControleConformite {
		return err
	}
	// A verified athlete is granted its profile by Receptionnee from RECEPTIONNEE.
	sportif, err := h.sportifVerifie(ctx, d)
	if err != nil || sportif {
		return err
	}
	return h.trans.Apply(ctx, Transition{
		DemandeID: d.ID,
		Etat:      model.EtatConforme,
		Acteur:    h.settings.ActeurSysteme,
	})
}

// Receptionnee acknowledges the demande and grants the high-level athlete
// profile when the requester's registry number is verified.
func (h *Handlers) Receptionnee(ctx context.Context, msg queue.DemandeReceptionnee) error {
	d, err := h.loadDemande(ctx, msg.DemandeID)
	if err != nil || d == nil {
		return err
	}
	if err := h.notify(ctx, d, mailer.KindAccuseReception, msg.Commentaire); err != nil {
		return err
	}
	if d.Etat != model.EtatReceptionnee {
		return nil
	}
	sportif, err := h.sportifVerifie(ctx, d)
	if err != nil || !sportif {
		return err
	}
	profil := h.settings.ProfilSportif
	return h.trans.Apply(ctx, Transition{
		DemandeID:   d.ID,
		Etat:        model.EtatProfilValide,
		ProfilID:    &profil,
		Acteur:      h.settings.ActeurSysteme,
		Commentaire: "sportif de haut niveau",
	})
}

// sportifVerifie reports whether the requester answered the athlete question
// of the campaign with a number present in the registry.
func (h *Handlers) sportifVerifie(ctx context.Context, d *model.Demande) (bool, error) {
	if h.settings.QuestionSportif == "" {
		return false, nil
	}
	rep, err := h.store.Reponse(ctx, d.DemandeurUID, d.CampagneID, h.settings.QuestionSportif)
	if errors.Is(err, model.ErrNotFound) || (err == nil && rep.Valeur == "") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load athlete answer: %w", err)
	}
	if _, err := h.store.SportifHautNiveau(ctx, rep.Valeur); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.logger.InfoContext(ctx, "athlete number not in registry", slog.Int64("demande", d.ID))
			return false, nil
		}
		return false, fmt.Errorf("lookup athlete registry: %w", err)
	}
	return true, nil
}

// Conforme auto-validates the profile when exactly one is eligible and the
// campaign has no committee.
func (h *Handlers) Conforme(ctx context.Context, msg queue.DemandeConforme) error {
	d, err := h.loadDemande(ctx, msg.DemandeID)
	if err != nil || d == nil || d.Etat != model.EtatConforme {
		return err
	}
	c, t, err := h.typeOf(ctx, d)
	if err != nil || t == nil {
		return err
	}
	if len(t.ProfilsEligibles) != 1 || c.CommissionID != nil {
		return nil
	}
	acteur, err := h.acteur(ctx, msg.Acteur)
	if err != nil {
		return err
	}
	profil := t.ProfilsEligibles[0]
	return h.trans.Apply(ctx, Transition{
		DemandeID: d.ID,
		Etat:      model.EtatProfilValide,
		ProfilID:  &profil,
		Acteur:    acteur,
	})
}

// ProfilValide creates the charters of the granted profile, or skips straight
// to the accompaniment or validation step when there are none.
func (h *Handlers) ProfilValide(ctx context.Context, msg queue.DemandeProfilValide) error {
	d, err := h.loadDemande(ctx, msg.DemandeID)
	if err != nil || d == nil || d.Etat != model.EtatProfilValide {
		return err
	}
	if d.ProfilAttribue == nil {
		h.logger.WarnContext(ctx, "validated demande has no profile", slog.Int64("demande", d.ID))
		return nil
	}
	p, err := h.store.Profil(ctx, *d.ProfilAttribue)
	if errors.Is(err, model.ErrNotFound) {
		h.logger.WarnContext(ctx, "profile not found", slog.Int64("demande", d.ID), slog.Int64("profil", *d.ProfilAttribue))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profil %d: %w", *d.ProfilAttribue, err)
	}
	_, t, err := h.typeOf(ctx, d)
	if err != nil || t == nil {
		return err
	}
	acteur, err := h.acteur(ctx, msg.Acteur)
	if err != nil {
		return err
	}
	next := model.EtatValidee
	switch {
	case len(p.Chartes) > 0:
		if err := h.store.CreateChartesDemande(ctx, d.ID, p.Chartes); err != nil {
			return fmt.Errorf("create chartes of demande %d: %w", d.ID, err)
		}
		next = model.EtatAttenteCharte
	case t.AccompagnementRequis:
		next = model.EtatAttenteAccompagnement
	}
	return h.trans.Apply(ctx, Transition{DemandeID: d.ID, Etat: next, Acteur: acteur})
}

// CharteValidee advances the demande once every one of its charters is
// validated, whatever the order of validation.
func (h *Handlers) CharteValidee(ctx context.Context, msg queue.CharteValidee) error {
	cd, err := h.store.CharteDemandeur(ctx, msg.CharteDemandeurID)
	if errors.Is(err, model.ErrNotFound) {
		h.logger.WarnContext(ctx, "charte not found", slog.Int64("charte", msg.CharteDemandeurID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load charte %d: %w", msg.CharteDemandeurID, err)
	}
	d, err := h.loadDemande(ctx, cd.DemandeID)
	if err != nil || d == nil || d.Etat != model.EtatAttenteCharte {
		return err
	}
	chartes, err := h.store.ChartesDemande(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("load chartes of demande %d: %w", d.ID, err)
	}
	for _, c := range chartes {
		if !c.Validee() {
			return nil
		}
	}
	acteur, err := h.acteur(ctx, msg.Acteur)
	if err != nil {
		return err
	}
	return h.trans.Apply(ctx, Transition{DemandeID: d.ID, Etat: model.EtatAttenteAccompagnement, Acteur: acteur})
}

// NonConforme notifies the requester.
func (h *Handlers) NonConforme(ctx context.Context, msg queue.DemandeNonConforme) error {
	return h.notifyOnly(ctx, msg.DemandeSuivi, mailer.KindNonConforme)
}

// AttenteCharte asks the requester to validate the charters.
func (h *Handlers) AttenteCharte(ctx context.Context, msg queue.DemandeAttenteCharte) error {
	return h.notifyOnly(ctx, msg.DemandeSuivi, mailer.KindAttenteCharte)
}

// AttenteAccompagnement notifies the requester.
func (h *Handlers) AttenteAccompagnement(ctx context.Context, msg queue.DemandeAttenteAccompagnement) error {
	return h.notifyOnly(ctx, msg.DemandeSuivi, mailer.KindAttenteAccompagnement)
}

// Refusee notifies the requester of the refusal.
func (h *Handlers) Refusee(ctx context.Context, msg queue.DemandeRefusee) error {
	return h.notifyOnly(ctx, msg.DemandeSuivi, mailer.KindRefusee)
}

func (h *Handlers) notifyOnly(ctx context.Context, s queue.DemandeSuivi, kind mailer.Kind) error {
	d, err := h.loadDemande(ctx, s.DemandeID)
	if err != nil || d == nil {
		return err
	}
	return h.notify(ctx, d, kind, s.Commentaire)
}

// Validee materializes the beneficiary period and notifies the requester.
func (h *Handlers) Validee(ctx context.Context, msg queue.DemandeValidee) error {
	d, err := h.loadDemande(ctx, msg.DemandeID)
	if err != nil || d == nil {
		return err
	}
	if d.ProfilAttribue != nil {
		now := h.now().UTC()
		demandeID := d.ID
		b := &model.Beneficiaire{
			UID:       d.DemandeurUID,
			ProfilID:  *d.ProfilAttribue,
			DemandeID: &demandeID,
			Debut:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		}
		if err := h.store.CreateBeneficiaire(ctx, b); err != nil {
			return fmt.Errorf("create beneficiaire for demande %d: %w", d.ID, err)
		}
		if err := h.bus.Dispatch(ctx, queue.UtilisateurModifie{UID: d.DemandeurUID}); err != nil {
			return fmt.Errorf("publish user change: %w", err)
		}
		if err := h.bus.Dispatch(ctx, queue.RoleModifie{Role: model.RoleBeneficiaire}); err != nil {
			return fmt.Errorf("publish role change: %w", err)
		}
	} else {
		h.logger.WarnContext(ctx, "validated demande has no profile, no beneficiary created", slog.Int64("demande", d.ID))
	}
	return h.notify(ctx, d, mailer.KindValidee, msg.Commentaire)
}
