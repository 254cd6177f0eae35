package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

func TestParseEtat(t *testing.T) {
	e, err := parseEtat("profil_valide")
	require.NoError(t, err)
	assert.Equal(t, model.EtatProfilValide, e)

	_, err = parseEtat("ARCHIVEE")
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	for _, bad := range []string{"", "0", "-1", "x"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewBilan(t *testing.T) {
	b, err := newBilan("2024-09-01", "2025-08-31", []string{"composante=UFR1,UFR2", "profil=7"}, "annuel")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), b.Debut)
	assert.Equal(t, []model.BilanParametre{
		{Nom: "composante", Valeurs: []string{"UFR1", "UFR2"}},
		{Nom: "profil", Valeurs: []string{"7"}},
	}, b.Parametres)

	_, err = newBilan("2025-01-01", "2024-01-01", nil, "")
	assert.Error(t, err)
	_, err = newBilan("2024-01-01", "2025-01-01", []string{"composante"}, "")
	assert.Error(t, err)
}

func TestRenderTransitions(t *testing.T) {
	profil := int64(7)
	var buf bytes.Buffer
	renderTransitions(&buf, []model.ModificationEtatDemande{{
		Date:          time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC),
		EtatPrecedent: model.EtatConforme,
		Etat:          model.EtatProfilValide,
		ProfilID:      &profil,
		ActeurUID:     "system",
	}})
	out := buf.String()
	assert.Contains(t, out, "PROFIL_VALIDE")
	assert.Contains(t, out, "2024-09-02T10:00:00Z")
	assert.Contains(t, out, "system")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"migrate"}, {"transition"}, {"transitions"}, {"decision", "edit"},
		{"bilan", "generate"}, {"reconcile"}, {"dead-letters", "list"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
