package queue

import (
	"time"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Task types. Each constant is the asynq task type of one message struct.
const (
	EtatDemandeModifieTask      = "demande:etat_modifie"
	DemandeReceptionneeTask     = "demande:receptionnee"
	DemandeConformeTask         = "demande:conforme"
	DemandeNonConformeTask      = "demande:non_conforme"
	DemandeProfilValideTask     = "demande:profil_valide"
	DemandeAttenteCharteTask    = "demande:attente_charte"
	DemandeAttenteAccompTask    = "demande:attente_accompagnement"
	DemandeRefuseeTask          = "demande:refusee"
	DemandeValideeTask          = "demande:validee"
	CharteValideeTask           = "charte:validee"
	RessourceModifieeTask       = "ressource:modifiee"
	UtilisateurModifieTask      = "utilisateur:modifie"
	RoleModifieTask             = "role:modifie"
	EvenementModifieTask        = "evenement:modifie"
	AvisEsModifieTask           = "avis_es:modifie"
	DecisionModifieeTask        = "decision:modifiee"
	MembreCommissionModifieTask = "commission:membre_modifie"
	EditionDecisionTask         = "decision:edition"
	GenerationBilanTask         = "bilan:generation"
	DeadLetterTask              = "maintenance:dead_letter"
	ReconciliationTask          = "maintenance:reconciliation"
)

// Message is implemented by every payload published on the bus.
type Message interface {
	TaskType() string
}

// EtatDemandeModifie is published by the transitioner after a demande changed
// state. MessageID is assigned once and survives redelivery.
type EtatDemandeModifie struct {
	MessageID     string            `json:"message_id"`
	DemandeID     int64             `json:"demande_id"`
	Etat          model.EtatDemande `json:"etat"`
	EtatPrecedent model.EtatDemande `json:"etat_precedent"`
	ProfilID      *int64            `json:"profil_id,omitempty"`
	Acteur        string            `json:"acteur"`
	Commentaire   string            `json:"commentaire,omitempty"`
}

func (EtatDemandeModifie) TaskType() string { return EtatDemandeModifieTask }

// DemandeSuivi is the payload shared by the per-state follow-up messages.
type DemandeSuivi struct {
	DemandeID   int64  `json:"demande_id"`
	Acteur      string `json:"acteur"`
	Commentaire string `json:"commentaire,omitempty"`
}

type (
	DemandeReceptionnee          struct{ DemandeSuivi }
	DemandeConforme              struct{ DemandeSuivi }
	DemandeNonConforme           struct{ DemandeSuivi }
	DemandeProfilValide          struct{ DemandeSuivi }
	DemandeAttenteCharte         struct{ DemandeSuivi }
	DemandeAttenteAccompagnement struct{ DemandeSuivi }
	DemandeRefusee               struct{ DemandeSuivi }
	DemandeValidee               struct{ DemandeSuivi }
)

func (DemandeReceptionnee) TaskType() string          { return DemandeReceptionneeTask }
func (DemandeConforme) TaskType() string              { return DemandeConformeTask }
func (DemandeNonConforme) TaskType() string           { return DemandeNonConformeTask }
func (DemandeProfilValide) TaskType() string          { return DemandeProfilValideTask }
func (DemandeAttenteCharte) TaskType() string         { return DemandeAttenteCharteTask }
func (DemandeAttenteAccompagnement) TaskType() string { return DemandeAttenteAccompTask }
func (DemandeRefusee) TaskType() string               { return DemandeRefuseeTask }
func (DemandeValidee) TaskType() string               { return DemandeValideeTask }

// CharteValidee is published whenever a requester validates one charter.
type CharteValidee struct {
	CharteDemandeurID int64  `json:"charte_demandeur_id"`
	Acteur            string `json:"acteur"`
}

func (CharteValidee) TaskType() string { return CharteValideeTask }

// RessourceModifiee is the generic "resource changed" event consumed by the
// HTTP cache invalidator.
type RessourceModifiee struct {
	Ressource string `json:"ressource"`
	ID        string `json:"id"`
}

func (RessourceModifiee) TaskType() string { return RessourceModifieeTask }

// UtilisateurModifie only carries identity; consumers re-read the user.
type UtilisateurModifie struct {
	UID string `json:"uid"`
}

func (UtilisateurModifie) TaskType() string { return UtilisateurModifieTask }

// RoleModifie invalidates every cached "users with role X" view.
type RoleModifie struct {
	Role string `json:"role"`
}

func (RoleModifie) TaskType() string { return RoleModifieTask }

// Operation describes the mutation behind an entity-changed event.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// EvenementModifie is published after a calendar event was written.
// DatePrecedente is the date the event had before the mutation, when known.
type EvenementModifie struct {
	EvenementID    int64      `json:"evenement_id"`
	Operation      Operation  `json:"operation"`
	DatePrecedente *time.Time `json:"date_precedente,omitempty"`
}

func (EvenementModifie) TaskType() string { return EvenementModifieTask }

// AvisEsModifie is published after a medical opinion of UID was written.
type AvisEsModifie struct {
	UID string `json:"uid"`
}

func (AvisEsModifie) TaskType() string { return AvisEsModifieTask }

// DecisionModifiee is published after a decision of UID was written.
type DecisionModifiee struct {
	UID string `json:"uid"`
}

func (DecisionModifiee) TaskType() string { return DecisionModifieeTask }

// MembreCommissionModifie is published after a committee membership changed.
type MembreCommissionModifie struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
}

func (MembreCommissionModifie) TaskType() string { return MembreCommissionModifieTask }

// EditionDecision asks the decision workflow to render and send a decision.
type EditionDecision struct {
	DecisionID int64 `json:"decision_id"`
	Attempt    int   `json:"attempt,omitempty"`
}

func (EditionDecision) TaskType() string { return EditionDecisionTask }

// Attempts returns how many redeliveries preceded this message.
func (m EditionDecision) Attempts() int { return m.Attempt }

// NextAttempt returns the identical message for a redelivery.
func (m EditionDecision) NextAttempt() Message {
	m.Attempt++
	return m
}

// GenerationBilan asks the report builder to generate a Bilan.
type GenerationBilan struct {
	BilanID int64 `json:"bilan_id"`
	Attempt int   `json:"attempt,omitempty"`
}

func (GenerationBilan) TaskType() string { return GenerationBilanTask }

func (m GenerationBilan) Attempts() int { return m.Attempt }

func (m GenerationBilan) NextAttempt() Message {
	m.Attempt++
	return m
}

// DeadLetter carries a message that exhausted its attempts.
type DeadLetter struct {
	OriginalType string `json:"original_type"`
	Payload      []byte `json:"payload"`
	Attempts     int    `json:"attempts"`
	Reason       string `json:"reason"`
}

func (DeadLetter) TaskType() string { return DeadLetterTask }

// Reconciliation triggers the intent sweep.
type Reconciliation struct{}

func (Reconciliation) TaskType() string { return ReconciliationTask }
