package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/bilan"
	"github.com/dharsanguruparan/amenagements/internal/cacheinval"
	"github.com/dharsanguruparan/amenagements/internal/database"
	"github.com/dharsanguruparan/amenagements/internal/decision"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/recompute"
	"github.com/dharsanguruparan/amenagements/internal/reconcile"
	"github.com/dharsanguruparan/amenagements/internal/repository"
	"github.com/dharsanguruparan/amenagements/internal/retry"
	"github.com/dharsanguruparan/amenagements/internal/workflow"
)

var (
	_ workflow.Store        = (*repository.Repository)(nil)
	_ decision.Store        = (*repository.Repository)(nil)
	_ bilan.Store           = (*repository.Repository)(nil)
	_ cacheinval.Store      = (*repository.Repository)(nil)
	_ recompute.Store       = (*repository.Repository)(nil)
	_ reconcile.Store       = (*repository.Repository)(nil)
	_ retry.DeadLetterStore = (*repository.Repository)(nil)
)

type fixture struct {
	repo *repository.Repository
	pool *pgxpool.Pool
	t    *testing.T
}

// openFixture connects to AMENAGEMENTS_TEST_DATABASE_URL and skips the test
// when it is unset.
func openFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := os.Getenv("AMENAGEMENTS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AMENAGEMENTS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	return &fixture{repo: repository.New(pool), pool: pool, t: t}
}

func (f *fixture) id(sql string, args ...any) int64 {
	f.t.Helper()
	var id int64
	require.NoError(f.t, f.pool.QueryRow(context.Background(), sql, args...).Scan(&id))
	return id
}

func (f *fixture) user() string {
	uid := "it-" + uuid.NewString()
	_, err := f.pool.Exec(context.Background(), `INSERT INTO utilisateurs (uid, email) VALUES ($1, 'it@univ.example')`, uid)
	require.NoError(f.t, err)
	return uid
}

func (f *fixture) demande(uid string) int64 {
	_, err := f.pool.Exec(context.Background(), `
		INSERT INTO types_demande (id, libelle, profils_eligibles) VALUES (9001, 'it', '{}') ON CONFLICT DO NOTHING;
	`)
	require.NoError(f.t, err)
	_, err = f.pool.Exec(context.Background(), `
		INSERT INTO campagnes (id, type_demande_id, debut, fin) VALUES (9001, 9001, '2026-01-01', '2026-12-31') ON CONFLICT DO NOTHING
	`)
	require.NoError(f.t, err)
	return f.id(`INSERT INTO demandes (etat, campagne_id, demandeur_uid) VALUES ('EN_COURS', 9001, $1) RETURNING id`, uid)
}

func TestRepositoryNotFound(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()
	_, err := f.repo.Demande(ctx, -1)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.repo.Decision(ctx, -1)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.repo.Utilisateur(ctx, "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, f.repo.UpdateDemandeEtat(ctx, -1, model.EtatConforme, nil), model.ErrNotFound)
	assert.ErrorIs(t, f.repo.RestoreDemande(ctx, -1, model.EtatConforme, nil), model.ErrNotFound)
}

func TestRepositoryJournalDedupe(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()
	id := f.demande(f.user())

	require.NoError(t, f.repo.UpdateDemandeEtat(ctx, id, model.EtatReceptionnee, nil))
	d, err := f.repo.Demande(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EtatReceptionnee, d.Etat)

	mod := &model.ModificationEtatDemande{
		MessageID: uuid.NewString(), DemandeID: id, EtatPrecedent: model.EtatEnCours,
		Etat: model.EtatReceptionnee, ActeurUID: "system", Date: time.Now().UTC(),
	}
	inserted, err := f.repo.AppendModification(ctx, mod)
	require.NoError(t, err)
	assert.True(t, inserted)
	again := *mod
	again.ID = ""
	inserted, err = f.repo.AppendModification(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	mods, err := f.repo.Modifications(ctx, id)
	require.NoError(t, err)
	assert.Len(t, mods, 1)
}

func TestRepositoryDecisionEditedOnce(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()
	uid := f.user()
	id := f.id(`INSERT INTO decisions_amenagement_examens (uid, annee) VALUES ($1, 2026) RETURNING id`, uid)

	in, err := f.repo.BeginIntent(ctx, model.IntentEditionDecision, id)
	require.NoError(t, err)
	statut, err := f.repo.DecisionStatut(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEnvoi, statut)

	require.NoError(t, f.repo.FailIntent(ctx, in.ID, "smtp down"))
	reopened, err := f.repo.BeginIntent(ctx, model.IntentEditionDecision, id)
	require.NoError(t, err)
	assert.Equal(t, in.ID, reopened.ID)
	assert.Equal(t, 2, reopened.Attempts)

	flipped, err := f.repo.CompleteDecision(ctx, id, in.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = f.repo.CompleteDecision(ctx, id, in.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, flipped)

	intents, err := f.repo.Intents(ctx, model.IntentEditionDecision, id)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentCompleted, intents[0].Status)

	statut, err = f.repo.DecisionStatut(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEditee, statut)
}

func TestRepositoryNumeroAnonymeIsStable(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()
	uid := f.user()
	n, err := f.repo.AssignNumeroAnonyme(ctx, uid)
	require.NoError(t, err)
	again, err := f.repo.AssignNumeroAnonyme(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, n, again)
}
