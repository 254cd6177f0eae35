package model

import "time"

const (
	RoleBeneficiaire     = "ROLE_BENEFICIAIRE"
	RoleMembreCommission = "ROLE_MEMBRE_COMMISSION"
	RoleGestionnaire     = "ROLE_GESTIONNAIRE"
)

// EtatAvisEs is the computed state of a user's medical opinions.
type EtatAvisEs string

const (
	AvisEsNonRenseigne EtatAvisEs = "NON_RENSEIGNE"
	AvisEsValide       EtatAvisEs = "VALIDE"
	AvisEsExpire       EtatAvisEs = "EXPIRE"
)

// EtatDecisionUtilisateur is the computed state of the current-year decision.
type EtatDecisionUtilisateur string

const (
	DecisionAucune  EtatDecisionUtilisateur = "AUCUNE"
	DecisionAttente EtatDecisionUtilisateur = "ATTENTE"
	DecisionEditee  EtatDecisionUtilisateur = "EDITE"
)

// Utilisateur carries the denormalized fields maintained by the recompute
// handlers next to the directory identity.
type Utilisateur struct {
	UID            string                  `json:"uid"`
	Email          string                  `json:"email"`
	Nom            string                  `json:"nom"`
	Prenom         string                  `json:"prenom"`
	NumeroEtudiant string                  `json:"numeroEtudiant,omitempty"`
	AnneeNaissance int                     `json:"anneeNaissance,omitempty"`
	Sexe           string                  `json:"sexe,omitempty"`
	NumeroAnonyme  *int64                  `json:"numeroAnonyme,omitempty"`
	Roles          []string                `json:"roles,omitempty"`
	EtatAvisEs     EtatAvisEs              `json:"etatAvisEs"`
	EtatDecision   EtatDecisionUtilisateur `json:"etatDecision"`
}

// NomComplet returns "Prenom Nom".
func (u Utilisateur) NomComplet() string {
	if u.Prenom == "" {
		return u.Nom
	}
	return u.Prenom + " " + u.Nom
}

// Beneficiaire is a period during which a user benefits from a profile.
type Beneficiaire struct {
	ID              int64      `json:"id"`
	UID             string     `json:"uid"`
	ProfilID        int64      `json:"profilId"`
	DemandeID       *int64     `json:"demandeId,omitempty"`
	GestionnaireUID string     `json:"gestionnaireUid,omitempty"`
	Debut           time.Time  `json:"debut"`
	Fin             *time.Time `json:"fin,omitempty"`
}

// ActifA reports whether the period covers t.
func (b Beneficiaire) ActifA(t time.Time) bool {
	return !b.Debut.After(t) && (b.Fin == nil || !b.Fin.Before(t))
}

// Amenagement is an accommodation granted to a user.
type Amenagement struct {
	ID        int64      `json:"id"`
	UID       string     `json:"uid"`
	Categorie string     `json:"categorie"`
	Type      string     `json:"type"`
	Debut     time.Time  `json:"debut"`
	Fin       *time.Time `json:"fin,omitempty"`
}

// Chevauche reports whether the accommodation is active at some point of
// [debut, fin].
func (a Amenagement) Chevauche(debut, fin time.Time) bool {
	return !a.Debut.After(fin) && (a.Fin == nil || !a.Fin.Before(debut))
}

// Inscription is the public shape of an enrollment.
type Inscription struct {
	UID         string    `json:"uid"`
	Composante  string    `json:"composante"`
	Formation   string    `json:"formation"`
	TypeDiplome string    `json:"typeDiplome"`
	Regime      string    `json:"regime"`
	Debut       time.Time `json:"debut"`
}

// Entretien is an interview between a beneficiary and a manager.
type Entretien struct {
	ID   int64     `json:"id"`
	UID  string    `json:"uid"`
	Date time.Time `json:"date"`
}

// AvisEs is a medical opinion issued for a user.
type AvisEs struct {
	ID    int64      `json:"id"`
	UID   string     `json:"uid"`
	Debut time.Time  `json:"debut"`
	Fin   *time.Time `json:"fin,omitempty"`
}

// PieceJointeBeneficiaire links an archived file to a beneficiary.
type PieceJointeBeneficiaire struct {
	ID           int64     `json:"id"`
	UID          string    `json:"uid"`
	FichierID    int64     `json:"fichierId"`
	Description  string    `json:"description"`
	TeleversePar string    `json:"televersePar"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Evenement is a calendar event (appointment, exam session).
type Evenement struct {
	ID      int64      `json:"id"`
	Libelle string     `json:"libelle"`
	Date    *time.Time `json:"date,omitempty"`
}
