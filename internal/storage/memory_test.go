package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestAppendModificationDedupesByMessage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	mod := &model.ModificationEtatDemande{MessageID: "m1", DemandeID: 1, Etat: model.EtatReceptionnee}
	ok, err := s.AppendModification(ctx, mod)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, mod.ID)

	ok, err = s.AppendModification(ctx, &model.ModificationEtatDemande{MessageID: "m1", DemandeID: 1, Etat: model.EtatConforme})
	require.NoError(t, err)
	assert.False(t, ok)

	mods, err := s.Modifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, model.EtatReceptionnee, mods[0].Etat)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutDemande(model.Demande{ID: 1, Etat: model.EtatEnCours})
	d, err := s.Demande(ctx, 1)
	require.NoError(t, err)
	d.Etat = model.EtatValidee

	again, err := s.Demande(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.EtatEnCours, again.Etat)
}

func TestUpdateDemandeEtatKeepsProfile(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutDemande(model.Demande{ID: 1, Etat: model.EtatConforme})
	profil := int64(7)
	require.NoError(t, s.UpdateDemandeEtat(ctx, 1, model.EtatProfilValide, &profil))
	require.NoError(t, s.UpdateDemandeEtat(ctx, 1, model.EtatValidee, nil))

	d, err := s.Demande(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.EtatValidee, d.Etat)
	require.NotNil(t, d.ProfilAttribue)
	assert.Equal(t, int64(7), *d.ProfilAttribue)
	assert.ErrorIs(t, s.UpdateDemandeEtat(ctx, 2, model.EtatValidee, nil), ErrNotFound)
}

func TestRestoreDemandeClearsProfile(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	profil := int64(3)
	s.PutDemande(model.Demande{ID: 1, Etat: model.EtatProfilValide, ProfilAttribue: &profil})
	require.NoError(t, s.RestoreDemande(ctx, 1, model.EtatReceptionnee, nil))

	d, err := s.Demande(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.EtatReceptionnee, d.Etat)
	assert.Nil(t, d.ProfilAttribue)
	assert.ErrorIs(t, s.RestoreDemande(ctx, 2, model.EtatReceptionnee, nil), ErrNotFound)
}

func TestCreateChartesDemandeIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	chartes := []model.Charte{{ID: 1, Libelle: "A"}, {ID: 2, Libelle: "B"}}
	require.NoError(t, s.CreateChartesDemande(ctx, 9, chartes))
	require.NoError(t, s.CreateChartesDemande(ctx, 9, chartes))

	got, err := s.ChartesDemande(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBeginIntentReusesOpenIntent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first, err := s.BeginIntent(ctx, model.IntentEditionDecision, 5)
	require.NoError(t, err)
	require.NoError(t, s.FailIntent(ctx, first.ID, "smtp"))

	second, err := s.BeginIntent(ctx, model.IntentEditionDecision, 5)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.Equal(t, model.IntentPending, second.Status)

	require.NoError(t, s.AbandonIntent(ctx, second.ID, "gave up"))
	third, err := s.BeginIntent(ctx, model.IntentEditionDecision, 5)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 1, third.Attempts)
}

func TestDecisionStatut(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutDecision(model.Decision{ID: 5, UID: "ada", Annee: 2024})

	etat, err := s.DecisionStatut(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionAttente, etat)

	in, err := s.BeginIntent(ctx, model.IntentEditionDecision, 5)
	require.NoError(t, err)
	etat, err = s.DecisionStatut(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEnvoi, etat)

	flipped, err := s.CompleteDecision(ctx, 5, in.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)
	etat, err = s.DecisionStatut(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.EtatDecisionEditee, etat)

	got, err := s.Intent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IntentCompleted, got.Status)
}

func TestCompleteBilanOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutBilan(model.Bilan{ID: 3, Debut: date(2024, 1, 1), Fin: date(2024, 12, 31)})

	ok, err := s.CompleteBilan(ctx, 3, &model.Fichier{Nom: "a.csv"}, time.Now(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CompleteBilan(ctx, 3, &model.Fichier{Nom: "b.csv"}, time.Now(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, s.Fichiers(), 1)

	_, err = s.CompleteBilan(ctx, 4, &model.Fichier{}, time.Now(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaleIntents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := date(2024, 10, 1)
	s.SetClock(func() time.Time { return now })
	stale, err := s.BeginIntent(ctx, model.IntentGenerationBilan, 1)
	require.NoError(t, err)
	failed, err := s.BeginIntent(ctx, model.IntentGenerationBilan, 2)
	require.NoError(t, err)
	require.NoError(t, s.FailIntent(ctx, failed.ID, "s3"))

	got, err := s.StaleIntents(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)

	got, err = s.StaleIntents(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAssignNumeroAnonymeIsStable(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutUtilisateur(model.Utilisateur{UID: "ada"})
	s.PutUtilisateur(model.Utilisateur{UID: "bob"})

	a, err := s.AssignNumeroAnonyme(ctx, "ada")
	require.NoError(t, err)
	b, err := s.AssignNumeroAnonyme(ctx, "bob")
	require.NoError(t, err)
	again, err := s.AssignNumeroAnonyme(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	_, err = s.AssignNumeroAnonyme(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBeneficiaireGrantsRoleOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutUtilisateur(model.Utilisateur{UID: "ada"})
	demande := int64(42)
	b := &model.Beneficiaire{UID: "ada", ProfilID: 7, DemandeID: &demande, Debut: date(2024, 9, 2)}
	require.NoError(t, s.CreateBeneficiaire(ctx, b))
	again := &model.Beneficiaire{UID: "ada", ProfilID: 7, DemandeID: &demande, Debut: date(2024, 9, 3)}
	require.NoError(t, s.CreateBeneficiaire(ctx, again))
	assert.Equal(t, b.ID, again.ID)

	all, err := s.Beneficiaires(ctx, "ada")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	u, err := s.Utilisateur(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleBeneficiaire}, u.Roles)
}

func TestBeneficiaireUIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	fin := date(2023, 12, 31)
	s.PutBeneficiaire(model.Beneficiaire{ID: 1, UID: "ada", ProfilID: 7, GestionnaireUID: "g1", Debut: date(2024, 1, 1)})
	s.PutBeneficiaire(model.Beneficiaire{ID: 2, UID: "bob", ProfilID: 8, GestionnaireUID: "g2", Debut: date(2024, 2, 1)})
	s.PutBeneficiaire(model.Beneficiaire{ID: 3, UID: "eve", ProfilID: 7, Debut: date(2023, 1, 1), Fin: &fin})
	s.PutInscription(model.Inscription{UID: "ada", Composante: "UFR1", Debut: date(2023, 9, 1)})
	s.PutInscription(model.Inscription{UID: "bob", Composante: "UFR2", Debut: date(2023, 9, 1)})
	s.PutAmenagement(model.Amenagement{ID: 1, UID: "bob", Categorie: "EXAMEN", Type: "TIERS_TEMPS", Debut: date(2024, 3, 1)})

	q := model.BeneficiaireQuery{Debut: date(2024, 1, 1), Fin: date(2024, 12, 31)}
	uids, err := s.BeneficiaireUIDs(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "bob"}, uids)

	q.Profils = []int64{7}
	uids, err = s.BeneficiaireUIDs(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada"}, uids)

	q.Profils = nil
	q.Composantes = []string{"UFR2"}
	uids, err = s.BeneficiaireUIDs(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, uids)

	q.Composantes = nil
	q.TypesAmenagement = []string{"TIERS_TEMPS"}
	q.Gestionnaires = []string{"g1"}
	uids, err = s.BeneficiaireUIDs(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestMemoryFiles(t *testing.T) {
	f := NewMemoryFiles()
	ctx := context.Background()
	fichier, err := f.Store(ctx, []byte("a,b\n"), "bilan.csv", "text/csv", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), fichier.Taille)
	data, ok := f.Object(fichier.ObjectKey)
	require.True(t, ok)
	assert.Equal(t, "a,b\n", string(data))

	require.NoError(t, f.Remove(ctx, fichier.ObjectKey))
	assert.Empty(t, f.Keys())
}
