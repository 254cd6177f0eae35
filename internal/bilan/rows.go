package bilan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/render"
)

// Colonnes is the column schema of the activity report.
var Colonnes = []string{
	"numero_anonyme",
	"annee_naissance",
	"sexe",
	"composante",
	"formation",
	"type_diplome",
	"regime_inscription",
	"profil",
	"gestionnaire",
	"amenagements",
	"nombre_entretiens",
}

// Ligne is the anonymized view of one beneficiary.
type Ligne struct {
	NumeroAnonyme   int64
	AnneeNaissance  int
	Sexe            string
	Inscription     *model.Inscription
	Profil          string
	Gestionnaire    string
	Amenagements    []model.Amenagement
	NombreEntretien int
}

// Cells returns the row in Colonnes order.
func (l Ligne) Cells() []string {
	cells := make([]string, 0, len(Colonnes))
	cells = append(cells, strconv.FormatInt(l.NumeroAnonyme, 10))
	if l.AnneeNaissance > 0 {
		cells = append(cells, strconv.Itoa(l.AnneeNaissance))
	} else {
		cells = append(cells, "")
	}
	cells = append(cells, l.Sexe)
	if l.Inscription != nil {
		cells = append(cells, l.Inscription.Composante, l.Inscription.Formation, l.Inscription.TypeDiplome, l.Inscription.Regime)
	} else {
		cells = append(cells, "", "", "", "")
	}
	amenagements := make([]string, 0, len(l.Amenagements))
	for _, a := range l.Amenagements {
		amenagements = append(amenagements, a.Categorie+"/"+a.Type)
	}
	cells = append(cells, l.Profil, l.Gestionnaire, strings.Join(amenagements, " | "), strconv.Itoa(l.NombreEntretien))
	return cells
}

// Table builds the CSV model of lignes.
func Table(lignes []Ligne) render.Table {
	t := render.Table{Header: Colonnes, Rows: make([][]string, 0, len(lignes))}
	for _, l := range lignes {
		t.Rows = append(t.Rows, l.Cells())
	}
	return t
}

// ligne gathers the report row of uid for b.
func (g *Generator) ligne(ctx context.Context, b *model.Bilan, uid string) (Ligne, error) {
	numero, err := g.store.AssignNumeroAnonyme(ctx, uid)
	if err != nil {
		return Ligne{}, fmt.Errorf("assign anonymous number: %w", err)
	}
	u, err := g.store.Utilisateur(ctx, uid)
	if err != nil {
		return Ligne{}, fmt.Errorf("load user: %w", err)
	}
	l := Ligne{NumeroAnonyme: numero, AnneeNaissance: u.AnneeNaissance, Sexe: u.Sexe}

	ins, err := g.store.DerniereInscription(ctx, uid)
	switch {
	case err == nil:
		l.Inscription = ins
	case !errors.Is(err, model.ErrNotFound):
		return Ligne{}, fmt.Errorf("load enrollment: %w", err)
	}

	beneficiaires, err := g.store.Beneficiaires(ctx, uid)
	if err != nil {
		return Ligne{}, fmt.Errorf("load beneficiary periods: %w", err)
	}
	var actif *model.Beneficiaire
	for i := range beneficiaires {
		if beneficiaires[i].ActifA(b.Fin) {
			actif = &beneficiaires[i]
		}
	}
	if actif != nil {
		l.Gestionnaire = actif.GestionnaireUID
		l.Profil = strconv.FormatInt(actif.ProfilID, 10)
		p, err := g.store.Profil(ctx, actif.ProfilID)
		switch {
		case err == nil:
			l.Profil = p.Libelle
		case !errors.Is(err, model.ErrNotFound):
			return Ligne{}, fmt.Errorf("load profil: %w", err)
		}
	}

	amenagements, err := g.store.Amenagements(ctx, uid)
	if err != nil {
		return Ligne{}, fmt.Errorf("load amenagements: %w", err)
	}
	for _, a := range amenagements {
		if a.Chevauche(b.Debut, b.Fin) {
			l.Amenagements = append(l.Amenagements, a)
		}
	}

	l.NombreEntretien, err = g.store.CountEntretiens(ctx, uid, b.Debut, b.Fin)
	if err != nil {
		return Ligne{}, fmt.Errorf("count interviews: %w", err)
	}
	return l, nil
}
