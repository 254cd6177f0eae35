package decision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/decision"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/mailer"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/render"
	"github.com/dharsanguruparan/amenagements/internal/retry"
	"github.com/dharsanguruparan/amenagements/internal/storage"
)

type flakyEncoder struct {
	fail  int
	calls int
	last  any
}

func (e *flakyEncoder) Encode(m any, f render.Format) ([]byte, error) {
	e.calls++
	e.last = m
	if e.calls <= e.fail {
		return nil, &render.Error{Format: f, Err: errors.New("font cache busy")}
	}
	return []byte("%PDF-1.4 decision"), nil
}

type fixture struct {
	store *storage.MemoryStore
	files *storage.MemoryFiles
	bus   *queue.Recorder
	mail  *mailer.Outbox
	enc   *flakyEncoder
	wf    *decision.Workflow
}

var now = time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, failures int, policy retry.Policy) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemoryStore(),
		files: storage.NewMemoryFiles(),
		bus:   &queue.Recorder{},
		mail:  &mailer.Outbox{},
		enc:   &flakyEncoder{fail: failures},
	}
	f.store.SetClock(func() time.Time { return now })
	sched := retry.NewScheduler(f.bus, logging.Discard(), nil)
	f.wf = decision.New(f.store, f.enc, f.mail, f.files, f.bus, sched, policy, logging.Discard())
	f.wf.SetClock(func() time.Time { return now })

	f.store.PutUtilisateur(model.Utilisateur{UID: "ada", Email: "ada@univ.example", Prenom: "Ada", Nom: "Lovelace", NumeroEtudiant: "2024001"})
	fin := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	f.store.PutAmenagement(model.Amenagement{ID: 1, UID: "ada", Categorie: "Examens", Type: "Tiers temps", Debut: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), Fin: &fin})
	old := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)
	f.store.PutAmenagement(model.Amenagement{ID: 2, UID: "ada", Categorie: "Examens", Type: "Salle isolée", Debut: time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC), Fin: &old})
	f.store.PutDecision(model.Decision{ID: 9, UID: "ada", Annee: 2024})
	return f
}

var hourly = retry.Policy{Delay: time.Hour, MaxAttempts: 48}

func TestRenderFailureRedeliversAfterOneHour(t *testing.T) {
	f := newFixture(t, 1, hourly)
	ctx := context.Background()

	require.NoError(t, f.wf.Edition(ctx, queue.EditionDecision{DecisionID: 9}))

	sent := f.bus.OfType(queue.EditionDecisionTask)
	require.Len(t, sent, 1)
	assert.Equal(t, time.Hour, sent[0].Delay)
	assert.Equal(t, queue.EditionDecision{DecisionID: 9, Attempt: 1}, sent[0].Message)
	assert.Empty(t, f.mail.Sent())

	d, err := f.store.Decision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionAttente, d.Etat)
	statut, err := f.store.DecisionStatut(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEnvoi, statut)
	intents, err := f.store.Intents(ctx, model.IntentEditionDecision, 9)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentFailed, intents[0].Status)

	require.NoError(t, f.wf.Edition(ctx, sent[0].Message.(queue.EditionDecision)))
	d, err = f.store.Decision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEditee, d.Etat)
	intents, err = f.store.Intents(ctx, model.IntentEditionDecision, 9)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentCompleted, intents[0].Status)
	assert.Equal(t, 2, intents[0].Attempts)
}

func TestSuccessFlipsOnceAndArchives(t *testing.T) {
	f := newFixture(t, 0, hourly)
	ctx := context.Background()
	msg := queue.EditionDecision{DecisionID: 9}

	require.NoError(t, f.wf.Edition(ctx, msg))
	require.NoError(t, f.wf.Edition(ctx, msg))

	assert.Equal(t, 1, f.enc.calls)
	mails := f.mail.OfKind(mailer.KindDecision)
	require.Len(t, mails, 1)
	require.Len(t, mails[0].Attachments, 1)
	assert.Equal(t, "application/pdf", mails[0].Attachments[0].ContentType)
	assert.Len(t, f.bus.OfType(queue.DecisionModifieeTask), 1)
	assert.Empty(t, f.bus.OfType(queue.EditionDecisionTask))

	doc := f.enc.last.(render.DecisionDocument)
	require.Len(t, doc.Amenagements, 1)
	assert.Equal(t, "Tiers temps", doc.Amenagements[0].Libelle)
	assert.Equal(t, "Ada Lovelace", doc.Beneficiaire)

	d, err := f.store.Decision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEditee, d.Etat)
	require.NotNil(t, d.FichierID)
	require.NotNil(t, d.PieceJointeID)
	pjs, err := f.store.PiecesJointes(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, pjs, 1)
	assert.Equal(t, "ada", pjs[0].TeleversePar)
	assert.Len(t, f.files.Keys(), 1)
}

func TestArchiveFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, 0, hourly)
	f.files.Err = errors.New("bucket unavailable")
	ctx := context.Background()

	require.NoError(t, f.wf.Edition(ctx, queue.EditionDecision{DecisionID: 9}))

	d, err := f.store.Decision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEditee, d.Etat)
	assert.Nil(t, d.FichierID)
	assert.Empty(t, f.bus.OfType(queue.EditionDecisionTask))
}

func TestMailFailureRedelivers(t *testing.T) {
	f := newFixture(t, 0, hourly)
	f.mail.Err = errors.New("relay refused")
	ctx := context.Background()

	require.NoError(t, f.wf.Edition(ctx, queue.EditionDecision{DecisionID: 9}))
	sent := f.bus.OfType(queue.EditionDecisionTask)
	require.Len(t, sent, 1)
	assert.Equal(t, time.Hour, sent[0].Delay)
	d, err := f.store.Decision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionAttente, d.Etat)
}

type brokenTemplate struct{}

func (brokenTemplate) Send(_ context.Context, kind mailer.Kind, to string, _ map[string]string, _ ...mailer.Attachment) error {
	return &mailer.Error{Kind: kind, To: to, Op: mailer.OpRender, Err: errors.New("template: decision: bad field")}
}

func TestMailTemplateFailureIsDeadLetteredAtOnce(t *testing.T) {
	f := newFixture(t, 0, hourly)
	sched := retry.NewScheduler(f.bus, logging.Discard(), nil)
	wf := decision.New(f.store, f.enc, brokenTemplate{}, f.files, f.bus, sched, hourly, logging.Discard())
	ctx := context.Background()

	require.NoError(t, wf.Edition(ctx, queue.EditionDecision{DecisionID: 9}))

	assert.Empty(t, f.bus.OfType(queue.EditionDecisionTask))
	require.Len(t, f.bus.OfType(queue.DeadLetterTask), 1)
	intents, err := f.store.Intents(ctx, model.IntentEditionDecision, 9)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentAbandoned, intents[0].Status)
	d, err := f.store.Decision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionAttente, d.Etat)
}

func TestExhaustedAttemptsAreDeadLettered(t *testing.T) {
	f := newFixture(t, 100, retry.Policy{Delay: time.Hour, MaxAttempts: 3})
	ctx := context.Background()

	require.NoError(t, f.wf.Edition(ctx, queue.EditionDecision{DecisionID: 9, Attempt: 2}))

	assert.Empty(t, f.bus.OfType(queue.EditionDecisionTask))
	dls := f.bus.OfType(queue.DeadLetterTask)
	require.Len(t, dls, 1)
	assert.Equal(t, queue.EditionDecisionTask, dls[0].Message.(queue.DeadLetter).OriginalType)
	intents, err := f.store.Intents(ctx, model.IntentEditionDecision, 9)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentAbandoned, intents[0].Status)
}

func TestMissingDecisionIsNoop(t *testing.T) {
	f := newFixture(t, 0, hourly)
	require.NoError(t, f.wf.Edition(context.Background(), queue.EditionDecision{DecisionID: 404}))
	assert.Empty(t, f.bus.Sent())
	assert.Zero(t, f.enc.calls)
}

func TestAnneeUniversitaire(t *testing.T) {
	debut, fin := decision.AnneeUniversitaire(2024)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), debut)
	assert.Equal(t, 2025, fin.Year())
	assert.Equal(t, time.August, fin.Month())
	assert.Equal(t, 31, fin.Day())
}
