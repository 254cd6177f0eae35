package bilan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/bilan"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/render"
	"github.com/dharsanguruparan/amenagements/internal/retry"
	"github.com/dharsanguruparan/amenagements/internal/storage"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store *storage.MemoryStore
	files *storage.MemoryFiles
	bus   *queue.Recorder
	gen   *bilan.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storage.NewMemoryStore(), files: storage.NewMemoryFiles(), bus: &queue.Recorder{}}
	sched := retry.NewScheduler(f.bus, logging.Discard(), nil)
	f.gen = bilan.New(f.store, f.files, render.New(), f.bus, sched, retry.Policy{Delay: 5 * time.Minute, MaxAttempts: 288}, logging.Discard())
	f.gen.SetClock(func() time.Time { return date(2025, 1, 15) })

	s := f.store
	s.PutProfil(model.Profil{ID: 7, Libelle: "Handicap"})
	s.PutProfil(model.Profil{ID: 8, Libelle: "Longue maladie"})
	s.PutUtilisateur(model.Utilisateur{UID: "ada", AnneeNaissance: 2002, Sexe: "F"})
	s.PutUtilisateur(model.Utilisateur{UID: "bob", AnneeNaissance: 2001, Sexe: "M"})
	s.PutUtilisateur(model.Utilisateur{UID: "eve", AnneeNaissance: 2003, Sexe: "F"})

	s.PutBeneficiaire(model.Beneficiaire{ID: 1, UID: "ada", ProfilID: 7, GestionnaireUID: "g1", Debut: date(2023, 9, 1), Fin: ptr(date(2024, 10, 31))})
	s.PutBeneficiaire(model.Beneficiaire{ID: 2, UID: "ada", ProfilID: 8, GestionnaireUID: "g2", Debut: date(2024, 11, 1)})
	s.PutBeneficiaire(model.Beneficiaire{ID: 3, UID: "bob", ProfilID: 7, GestionnaireUID: "g1", Debut: date(2024, 9, 1)})
	s.PutBeneficiaire(model.Beneficiaire{ID: 4, UID: "eve", ProfilID: 7, Debut: date(2020, 9, 1), Fin: ptr(date(2021, 6, 30))})

	s.PutInscription(model.Inscription{UID: "ada", Composante: "SCI", Formation: "L1", TypeDiplome: "LIC", Regime: "FI", Debut: date(2023, 9, 1)})
	s.PutInscription(model.Inscription{UID: "ada", Composante: "SCI", Formation: "L2", TypeDiplome: "LIC", Regime: "FI", Debut: date(2024, 9, 1)})
	s.PutInscription(model.Inscription{UID: "bob", Composante: "LET", Formation: "M1", TypeDiplome: "MAS", Regime: "FC", Debut: date(2024, 9, 1)})

	s.PutAmenagement(model.Amenagement{ID: 1, UID: "ada", Categorie: "EXAMENS", Type: "TIERS_TEMPS", Debut: date(2024, 9, 1)})
	s.PutAmenagement(model.Amenagement{ID: 2, UID: "ada", Categorie: "EXAMENS", Type: "SALLE", Debut: date(2022, 9, 1), Fin: ptr(date(2023, 6, 30))})
	s.PutEntretien(model.Entretien{ID: 1, UID: "ada", Date: date(2024, 10, 2)})
	s.PutEntretien(model.Entretien{ID: 2, UID: "ada", Date: date(2024, 12, 2)})
	s.PutEntretien(model.Entretien{ID: 3, UID: "ada", Date: date(2023, 12, 2)})
	return f
}

func TestBuildQueryMergesParametersBeforeFiltering(t *testing.T) {
	b := &model.Bilan{
		ID: 1, Debut: date(2024, 9, 1), Fin: date(2024, 12, 31),
		Parametres: []model.BilanParametre{
			{Nom: "formations", Valeurs: []string{"L2"}},
			{Nom: "inconnu", Valeurs: []string{"x"}},
			{Nom: "composantes", Valeurs: []string{"SCI"}},
			{Nom: "composantes", Valeurs: []string{"LET"}},
			{Nom: "profils", Valeurs: []string{"7", "8"}},
		},
	}
	q, err := bilan.BuildQuery(b, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, date(2024, 9, 1), q.Debut)
	assert.Equal(t, date(2024, 12, 31), q.Fin)
	assert.Equal(t, []string{"SCI", "LET"}, q.Composantes)
	assert.Equal(t, []string{"L2"}, q.Formations)
	assert.Equal(t, []int64{7, 8}, q.Profils)
	assert.Empty(t, q.CategoriesAmenagement)
}

func TestBuildQueryRejectsInvalidProfile(t *testing.T) {
	_, err := bilan.BuildQuery(&model.Bilan{Parametres: []model.BilanParametre{{Nom: "profils", Valeurs: []string{"abc"}}}}, logging.Discard())
	assert.Error(t, err)
}

func TestLignes(t *testing.T) {
	f := newFixture(t)
	b := &model.Bilan{ID: 1, Debut: date(2024, 9, 1), Fin: date(2024, 12, 31)}
	lignes, err := f.gen.Lignes(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, lignes, 2)

	ada := lignes[0]
	assert.Equal(t, int64(1), ada.NumeroAnonyme)
	assert.Equal(t, "Longue maladie", ada.Profil)
	assert.Equal(t, "g2", ada.Gestionnaire)
	require.NotNil(t, ada.Inscription)
	assert.Equal(t, "L2", ada.Inscription.Formation)
	require.Len(t, ada.Amenagements, 1)
	assert.Equal(t, "TIERS_TEMPS", ada.Amenagements[0].Type)
	assert.Equal(t, 2, ada.NombreEntretien)
	assert.Equal(t, []string{"1", "2002", "F", "SCI", "L2", "LIC", "FI", "Longue maladie", "g2", "EXAMENS/TIERS_TEMPS", "2"}, ada.Cells())

	again, err := f.gen.Lignes(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, ada.NumeroAnonyme, again[0].NumeroAnonyme)
	assert.Equal(t, lignes[1].NumeroAnonyme, again[1].NumeroAnonyme)
}

func TestLignesFiltered(t *testing.T) {
	f := newFixture(t)
	b := &model.Bilan{ID: 1, Debut: date(2024, 9, 1), Fin: date(2024, 12, 31), Parametres: []model.BilanParametre{
		{Nom: "regimesInscription", Valeurs: []string{"FC"}},
	}}
	lignes, err := f.gen.Lignes(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, lignes, 1)
	assert.Equal(t, "LET", lignes[0].Inscription.Composante)
}

func TestGenerateCommitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutBilan(model.Bilan{ID: 5, Debut: date(2024, 9, 1), Fin: date(2024, 12, 31), Description: "T1"})

	require.NoError(t, f.gen.Generate(ctx, queue.GenerationBilan{BilanID: 5}))
	require.NoError(t, f.gen.Generate(ctx, queue.GenerationBilan{BilanID: 5}))

	b, err := f.store.Bilan(ctx, 5)
	require.NoError(t, err)
	require.True(t, b.Genere())
	assert.Equal(t, date(2025, 1, 15), *b.DateGeneration)
	require.NotNil(t, b.FichierID)

	fichiers := f.store.Fichiers()
	require.Len(t, fichiers, 1)
	assert.Equal(t, bilan.NomFichier, fichiers[0].Nom)
	assert.Equal(t, "text/csv", fichiers[0].TypeMime)
	assert.Equal(t, "T1", fichiers[0].Description)

	keys := f.files.Keys()
	require.Len(t, keys, 1)
	data, _ := f.files.Object(keys[0])
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, strings.Join(bilan.Colonnes, ";"), lines[0])

	intents, err := f.store.Intents(ctx, model.IntentGenerationBilan, 5)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentCompleted, intents[0].Status)
	assert.Equal(t, keys[0], intents[0].ObjectKey)
	assert.Len(t, f.bus.OfType(queue.RessourceModifieeTask), 1)
}

func TestGenerateStorageFailureRedelivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutBilan(model.Bilan{ID: 5, Debut: date(2024, 9, 1), Fin: date(2024, 12, 31)})
	f.files.Err = errors.New("s3 unavailable")

	require.NoError(t, f.gen.Generate(ctx, queue.GenerationBilan{BilanID: 5}))

	sent := f.bus.OfType(queue.GenerationBilanTask)
	require.Len(t, sent, 1)
	assert.Equal(t, 5*time.Minute, sent[0].Delay)
	assert.Equal(t, queue.GenerationBilan{BilanID: 5, Attempt: 1}, sent[0].Message)
	b, err := f.store.Bilan(ctx, 5)
	require.NoError(t, err)
	assert.False(t, b.Genere())
	assert.Empty(t, f.store.Fichiers())
}

func TestGenerateRemovesObjectOfInterruptedRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutBilan(model.Bilan{ID: 5, Debut: date(2024, 9, 1), Fin: date(2024, 12, 31)})

	intent, err := f.store.BeginIntent(ctx, model.IntentGenerationBilan, 5)
	require.NoError(t, err)
	orphan, err := f.files.Store(ctx, []byte("partial"), bilan.NomFichier, "text/csv", "")
	require.NoError(t, err)
	require.NoError(t, f.store.SetIntentObjectKey(ctx, intent.ID, orphan.ObjectKey))

	require.NoError(t, f.gen.Generate(ctx, queue.GenerationBilan{BilanID: 5}))

	keys := f.files.Keys()
	require.Len(t, keys, 1)
	assert.NotEqual(t, orphan.ObjectKey, keys[0])
	intents, err := f.store.Intents(ctx, model.IntentGenerationBilan, 5)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentCompleted, intents[0].Status)
	assert.Equal(t, keys[0], intents[0].ObjectKey)
}

func TestGenerateMissingBilanIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gen.Generate(context.Background(), queue.GenerationBilan{BilanID: 404}))
	assert.Empty(t, f.files.Keys())
}
