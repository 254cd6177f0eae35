package bilan

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Parametres is every parameter value of a report merged by name. Filters
// read from it after all parameters were collected, so a filter sees the
// values of its sibling parameters whatever their order.
type Parametres map[string][]string

// Filter restricts the beneficiary query.
type Filter interface {
	Apply(q *model.BeneficiaireQuery, p Parametres) error
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(q *model.BeneficiaireQuery, p Parametres) error

func (f FilterFunc) Apply(q *model.BeneficiaireQuery, p Parametres) error { return f(q, p) }

// Filter kinds.
const (
	FiltreInscription = "inscription"
	FiltreAmenagement = "amenagement"
	FiltreProfil      = "profil"
)

// parametreFiltre maps a parameter name to the kind of filter reading it.
var parametreFiltre = map[string]string{
	"composantes":           FiltreInscription,
	"formations":            FiltreInscription,
	"typesDiplome":          FiltreInscription,
	"regimesInscription":    FiltreInscription,
	"categoriesAmenagement": FiltreAmenagement,
	"typesAmenagement":      FiltreAmenagement,
	"profils":               FiltreProfil,
	"gestionnaires":         FiltreProfil,
}

var filtres = map[string]Filter{
	FiltreInscription: FilterFunc(func(q *model.BeneficiaireQuery, p Parametres) error {
		q.Composantes = p["composantes"]
		q.Formations = p["formations"]
		q.TypesDiplome = p["typesDiplome"]
		q.Regimes = p["regimesInscription"]
		return nil
	}),
	FiltreAmenagement: FilterFunc(func(q *model.BeneficiaireQuery, p Parametres) error {
		q.CategoriesAmenagement = p["categoriesAmenagement"]
		q.TypesAmenagement = p["typesAmenagement"]
		return nil
	}),
	FiltreProfil: FilterFunc(func(q *model.BeneficiaireQuery, p Parametres) error {
		for _, v := range p["profils"] {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid profil %q: %w", v, err)
			}
			q.Profils = append(q.Profils, id)
		}
		q.Gestionnaires = p["gestionnaires"]
		return nil
	}),
}

// BuildQuery turns the parameters of b into a beneficiary query. The report
// interval is always applied; each filter kind runs once, in the order its
// first parameter appears. Unknown parameters are logged and ignored.
func BuildQuery(b *model.Bilan, logger *slog.Logger) (model.BeneficiaireQuery, error) {
	q := model.BeneficiaireQuery{Debut: b.Debut, Fin: b.Fin}
	merged := make(Parametres)
	var kinds []string
	seen := make(map[string]bool)
	for _, p := range b.Parametres {
		kind, ok := parametreFiltre[p.Nom]
		if !ok {
			logger.Warn("unknown report parameter ignored", slog.Int64("bilan", b.ID), slog.String("parametre", p.Nom))
			continue
		}
		merged[p.Nom] = append(merged[p.Nom], p.Valeurs...)
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	for _, kind := range kinds {
		if err := filtres[kind].Apply(&q, merged); err != nil {
			return q, fmt.Errorf("%s filter: %w", kind, err)
		}
	}
	return q, nil
}
