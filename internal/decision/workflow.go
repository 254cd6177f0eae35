// Package decision renders exam-accommodation decisions, mails them to the
// beneficiary and archives a copy. Every run is guarded by an effect intent
// so a crash between the mail and the commit is detected by the
// reconciliation sweep.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/mailer"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/render"
	"github.com/dharsanguruparan/amenagements/internal/retry"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// Store is the persistence gateway used by the workflow.
type Store interface {
	Decision(ctx context.Context, id int64) (*model.Decision, error)
	Utilisateur(ctx context.Context, uid string) (*model.Utilisateur, error)
	Amenagements(ctx context.Context, uid string) ([]model.Amenagement, error)
	BeginIntent(ctx context.Context, kind model.IntentKind, ref int64) (*model.EffectIntent, error)
	FailIntent(ctx context.Context, id, reason string) error
	AbandonIntent(ctx context.Context, id, reason string) error
	CompleteDecision(ctx context.Context, id int64, intentID string, at time.Time) (bool, error)
	AttachDecisionArchive(ctx context.Context, id int64, f *model.Fichier, pj *model.PieceJointeBeneficiaire) error
}

// Encoder renders document models.
type Encoder interface {
	Encode(m any, f render.Format) ([]byte, error)
}

// FileStore stores archived copies.
type FileStore interface {
	Store(ctx context.Context, data []byte, filename, mimeType, description string) (*model.Fichier, error)
}

// Workflow handles EditionDecision messages.
type Workflow struct {
	store   Store
	encoder Encoder
	mail    mailer.Sender
	files   FileStore
	bus     queue.Dispatcher
	retries *retry.Scheduler
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// PolicyFrom returns the redelivery policy configured for decisions.
func PolicyFrom(cfg *config.Config) retry.Policy {
	return retry.Policy{Delay: cfg.DecisionRetryDelay, MaxAttempts: cfg.DecisionMaxAttempts}
}

// New wires a Workflow.
func New(store Store, encoder Encoder, mail mailer.Sender, files FileStore, bus queue.Dispatcher,
	retries *retry.Scheduler, policy retry.Policy, logger *slog.Logger) *Workflow {
	return &Workflow{
		store:   store,
		encoder: encoder,
		mail:    mail,
		files:   files,
		bus:     bus,
		retries: retries,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the clock.
func (w *Workflow) SetClock(now func() time.Time) { w.now = now }

// Register subscribes the workflow on r.
func (w *Workflow) Register(r *worker.Router) {
	worker.Subscribe(r, "decision.edition", 0, w.Edition)
}

// Edition renders, mails and commits one decision. Transient failures of the
// renderer or the mail relay schedule the same message again after the
// policy delay and leave the decision untouched.
func (w *Workflow) Edition(ctx context.Context, msg queue.EditionDecision) error {
	log := w.logger.With(slog.Int64("decision", msg.DecisionID), slog.Int("attempt", msg.Attempt))
	d, err := w.store.Decision(ctx, msg.DecisionID)
	if errors.Is(err, model.ErrNotFound) {
		log.WarnContext(ctx, "decision not found, message ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load decision %d: %w", msg.DecisionID, err)
	}
	if d.Etat == model.EtatDecisionEditee {
		log.InfoContext(ctx, "decision already edited")
		return nil
	}
	u, err := w.store.Utilisateur(ctx, d.UID)
	if errors.Is(err, model.ErrNotFound) {
		log.WarnContext(ctx, "beneficiary not found, decision skipped", slog.String("uid", d.UID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load beneficiary %s: %w", d.UID, err)
	}
	doc, err := w.document(ctx, d, u)
	if err != nil {
		return err
	}

	intent, err := w.store.BeginIntent(ctx, model.IntentEditionDecision, d.ID)
	if err != nil {
		return fmt.Errorf("begin intent: %w", err)
	}
	pdf, err := w.encoder.Encode(doc, render.FormatPDF)
	if err != nil {
		return w.redeliver(ctx, log, msg, intent, err)
	}
	attachment := mailer.Attachment{Name: fileName(d), ContentType: render.FormatPDF.MimeType(), Data: pdf}
	data := map[string]string{"prenom": u.Prenom, "nom": u.Nom, "annee": fmt.Sprint(d.Annee)}
	if err := w.mail.Send(ctx, mailer.KindDecision, u.Email, data, attachment); err != nil {
		return w.redeliver(ctx, log, msg, intent, err)
	}

	flipped, err := w.store.CompleteDecision(ctx, d.ID, intent.ID, w.now().UTC())
	if err != nil {
		return fmt.Errorf("complete decision %d: %w", d.ID, err)
	}
	if !flipped {
		log.InfoContext(ctx, "decision edited concurrently")
		return nil
	}
	log.InfoContext(ctx, "decision edited")
	if err := w.bus.Dispatch(ctx, queue.DecisionModifiee{UID: d.UID}); err != nil {
		log.ErrorContext(ctx, "publish decision change failed", logging.Err(err))
	}
	w.archive(ctx, log, d, u, pdf)
	return nil
}

func (w *Workflow) document(ctx context.Context, d *model.Decision, u *model.Utilisateur) (render.DecisionDocument, error) {
	amenagements, err := w.store.Amenagements(ctx, d.UID)
	if err != nil {
		return render.DecisionDocument{}, fmt.Errorf("load amenagements of %s: %w", d.UID, err)
	}
	debut, fin := AnneeUniversitaire(d.Annee)
	doc := render.DecisionDocument{
		Numero:         d.ID,
		Annee:          d.Annee,
		Beneficiaire:   u.NomComplet(),
		NumeroEtudiant: u.NumeroEtudiant,
		DateEdition:    w.now().UTC(),
	}
	for _, a := range amenagements {
		if a.Chevauche(debut, fin) {
			doc.Amenagements = append(doc.Amenagements, render.AmenagementLigne{Categorie: a.Categorie, Libelle: a.Type})
		}
	}
	return doc, nil
}

// AnneeUniversitaire returns the bounds of the academic year starting in
// september of annee.
func AnneeUniversitaire(annee int) (time.Time, time.Time) {
	debut := time.Date(annee, time.September, 1, 0, 0, 0, 0, time.UTC)
	return debut, debut.AddDate(1, 0, 0).Add(-time.Nanosecond)
}

func fileName(d *model.Decision) string {
	return fmt.Sprintf("decision_amenagements_%d_%d.pdf", d.Annee, d.ID)
}

func (w *Workflow) redeliver(ctx context.Context, log *slog.Logger, msg queue.EditionDecision, intent *model.EffectIntent, cause error) error {
	if err := w.store.FailIntent(ctx, intent.ID, cause.Error()); err != nil {
		return fmt.Errorf("fail intent: %w", err)
	}
	var transient interface{ Retryable() bool }
	if !errors.As(cause, &transient) || !transient.Retryable() {
		if err := w.retries.DeadLetter(ctx, msg, cause); err != nil {
			return err
		}
		if err := w.store.AbandonIntent(ctx, intent.ID, cause.Error()); err != nil {
			log.ErrorContext(ctx, "abandon intent", logging.Err(err))
		}
		return nil
	}
	outcome, err := w.retries.Redeliver(ctx, msg, w.policy, cause)
	if err != nil {
		return err
	}
	if outcome == retry.DeadLettered {
		if err := w.store.AbandonIntent(ctx, intent.ID, "dead-lettered: "+cause.Error()); err != nil {
			log.ErrorContext(ctx, "abandon intent", logging.Err(err))
		}
	}
	return nil
}

// archive stores a copy of the decision and links it to the beneficiary.
// Failures are logged and not retried.
func (w *Workflow) archive(ctx context.Context, log *slog.Logger, d *model.Decision, u *model.Utilisateur, pdf []byte) {
	description := fmt.Sprintf("Décision d'aménagement d'examens %d-%d", d.Annee, d.Annee+1)
	f, err := w.files.Store(ctx, pdf, fileName(d), render.FormatPDF.MimeType(), description)
	if err != nil {
		log.ErrorContext(ctx, "archive decision failed", logging.Err(err))
		return
	}
	pj := &model.PieceJointeBeneficiaire{
		UID:          d.UID,
		Description:  description,
		TeleversePar: u.UID,
	}
	if err := w.store.AttachDecisionArchive(ctx, d.ID, f, pj); err != nil {
		log.ErrorContext(ctx, "link decision archive failed", logging.Err(err))
	}
}
