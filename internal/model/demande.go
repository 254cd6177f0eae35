// Package model contains the domain structs shared by the workflow handlers,
// the persistence gateways and the ops surfaces.
package model

import "time"

// EtatDemande identifies a state of the Demande lifecycle. A type declared via
// "type X string" keeps the states apart from arbitrary strings.
type EtatDemande string

const (
	EtatEnCours               EtatDemande = "EN_COURS"
	EtatReceptionnee          EtatDemande = "RECEPTIONNEE"
	EtatConforme              EtatDemande = "CONFORME"
	EtatNonConforme           EtatDemande = "NON_CONFORME"
	EtatAttenteCommission     EtatDemande = "ATTENTE_COMMISSION"
	EtatProfilValide          EtatDemande = "PROFIL_VALIDE"
	EtatAttenteCharte         EtatDemande = "ATTENTE_VALIDATION_CHARTE"
	EtatAttenteAccompagnement EtatDemande = "ATTENTE_VALIDATION_ACCOMPAGNEMENT"
	EtatRefusee               EtatDemande = "REFUSEE"
	EtatValidee               EtatDemande = "VALIDEE"
)

// Terminal reports whether no further transition is expected from the state.
func (e EtatDemande) Terminal() bool {
	return e == EtatRefusee || e == EtatValidee
}

// Demande is a student accommodation request.
type Demande struct {
	ID             int64       `json:"id"`
	Etat           EtatDemande `json:"etat"`
	CampagneID     int64       `json:"campagneId"`
	DemandeurUID   string      `json:"demandeurUid"`
	Commentaire    string      `json:"commentaire,omitempty"`
	ProfilAttribue *int64      `json:"profilAttribueId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// ModificationEtatDemande is one row of the append-only transition log.
// MessageID is the id of the state-changed message that produced the row and
// keeps redelivered messages from logging the same transition twice.
type ModificationEtatDemande struct {
	ID            string      `json:"id"`
	MessageID     string      `json:"messageId"`
	DemandeID     int64       `json:"demandeId"`
	EtatPrecedent EtatDemande `json:"etatPrecedent"`
	Etat          EtatDemande `json:"etat"`
	ProfilID      *int64      `json:"profilId,omitempty"`
	ActeurUID     string      `json:"acteurUid"`
	Commentaire   string      `json:"commentaire,omitempty"`
	Date          time.Time   `json:"date"`
}

// TypeDemande is the referential describing a kind of request.
type TypeDemande struct {
	ID                   int64   `json:"id"`
	Libelle              string  `json:"libelle"`
	ProfilsEligibles     []int64 `json:"profilsEligibles"`
	AccompagnementRequis bool    `json:"accompagnementRequis"`
	ControleConformite   bool    `json:"controleConformite"`
}

// Campagne is a request campaign of a TypeDemande. A nil CommissionID means
// the campaign requires no committee review.
type Campagne struct {
	ID            int64     `json:"id"`
	TypeDemandeID int64     `json:"typeDemandeId"`
	CommissionID  *int64    `json:"commissionId,omitempty"`
	Debut         time.Time `json:"debut"`
	Fin           time.Time `json:"fin"`
}

// Charte is a consent document template attached to a profile.
type Charte struct {
	ID      int64  `json:"id"`
	Libelle string `json:"libelle"`
}

// Profil is an accommodation profile.
type Profil struct {
	ID      int64    `json:"id"`
	Libelle string   `json:"libelle"`
	Chartes []Charte `json:"chartes,omitempty"`
}

// CharteDemandeur is a charter a requester must validate for a demande.
type CharteDemandeur struct {
	ID        int64      `json:"id"`
	DemandeID int64      `json:"demandeId"`
	CharteID  int64      `json:"charteId"`
	Libelle   string     `json:"libelle"`
	ValideeLe *time.Time `json:"valideeLe,omitempty"`
}

// Validee reports whether the requester signed the charter.
func (c CharteDemandeur) Validee() bool { return c.ValideeLe != nil }

// Reponse is a questionnaire answer of a requester for a campaign.
type Reponse struct {
	DemandeurUID string `json:"demandeurUid"`
	CampagneID   int64  `json:"campagneId"`
	Question     string `json:"question"`
	Valeur       string `json:"valeur"`
}

// SportifHautNiveau is an entry of the high-level athlete registry.
type SportifHautNiveau struct {
	NumeroPSQS string `json:"numeroPsqs"`
	Nom        string `json:"nom"`
	Prenom     string `json:"prenom"`
	Annee      int    `json:"annee"`
}
