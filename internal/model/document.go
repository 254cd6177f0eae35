package model

import "time"

// EtatDecision is the state of an exam-accommodation decision. EDITE is
// terminal.
type EtatDecision string

const (
	EtatDecisionAttente EtatDecision = "ATTENTE"
	EtatDecisionEditee  EtatDecision = "EDITE"
	// EtatDecisionEnvoi is never stored; it is surfaced to staff while an
	// edition is in flight or waiting for redelivery.
	EtatDecisionEnvoi EtatDecision = "EN_COURS_ENVOI"
)

// Decision is a DecisionAmenagementExamens.
type Decision struct {
	ID            int64        `json:"id"`
	UID           string       `json:"uid"`
	Annee         int          `json:"annee"`
	Etat          EtatDecision `json:"etat"`
	FichierID     *int64       `json:"fichierId,omitempty"`
	PieceJointeID *int64       `json:"pieceJointeId,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// BilanParametre is one optional filter parameter of a report job.
type BilanParametre struct {
	Nom     string   `json:"nom"`
	Valeurs []string `json:"valeurs"`
}

// Bilan is an activity-report job. DateGeneration is the commit point: once
// set, the job owns exactly one generated file.
type Bilan struct {
	ID             int64            `json:"id"`
	Debut          time.Time        `json:"debut"`
	Fin            time.Time        `json:"fin"`
	Parametres     []BilanParametre `json:"parametres,omitempty"`
	Description    string           `json:"description,omitempty"`
	DateGeneration *time.Time       `json:"dateGeneration,omitempty"`
	FichierID      *int64           `json:"fichierId,omitempty"`
}

// Genere reports whether the report was already generated.
func (b Bilan) Genere() bool { return b.DateGeneration != nil }

// BeneficiaireQuery is the criteria set built by the report filters. Empty
// slices mean "no restriction".
type BeneficiaireQuery struct {
	Debut                 time.Time
	Fin                   time.Time
	Composantes           []string
	Formations            []string
	TypesDiplome          []string
	Regimes               []string
	CategoriesAmenagement []string
	TypesAmenagement      []string
	Profils               []int64
	Gestionnaires         []string
}
