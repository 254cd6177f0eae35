package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Utilisateur returns a user by uid.
func (r *Repository) Utilisateur(ctx context.Context, uid string) (*model.Utilisateur, error) {
	var u model.Utilisateur
	err := r.pool.QueryRow(ctx, `
		SELECT uid, email, nom, prenom, numero_etudiant, annee_naissance, sexe, numero_anonyme, roles, etat_avis_es, etat_decision
		FROM utilisateurs WHERE uid=$1
	`, uid).Scan(&u.UID, &u.Email, &u.Nom, &u.Prenom, &u.NumeroEtudiant, &u.AnneeNaissance, &u.Sexe,
		&u.NumeroAnonyme, &u.Roles, &u.EtatAvisEs, &u.EtatDecision)
	if err != nil {
		return nil, found("select utilisateur", err)
	}
	return &u, nil
}

// UpdateEtatAvisEs stores the computed medical-opinion state of uid.
func (r *Repository) UpdateEtatAvisEs(ctx context.Context, uid string, etat model.EtatAvisEs) error {
	return r.updateUtilisateur(ctx, uid, `UPDATE utilisateurs SET etat_avis_es=$2 WHERE uid=$1`, etat)
}

// UpdateEtatDecision stores the computed decision state of uid.
func (r *Repository) UpdateEtatDecision(ctx context.Context, uid string, etat model.EtatDecisionUtilisateur) error {
	return r.updateUtilisateur(ctx, uid, `UPDATE utilisateurs SET etat_decision=$2 WHERE uid=$1`, etat)
}

func (r *Repository) updateUtilisateur(ctx context.Context, uid, sql string, value any) error {
	tag, err := r.pool.Exec(ctx, sql, uid, value)
	if err != nil {
		return fmt.Errorf("update utilisateur: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update utilisateur %s: %w", uid, model.ErrNotFound)
	}
	return nil
}

// AssignNumeroAnonyme returns the anonymous number of uid, drawing the next
// value of the sequence when the user has none yet.
func (r *Repository) AssignNumeroAnonyme(ctx context.Context, uid string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		UPDATE utilisateurs SET numero_anonyme = COALESCE(numero_anonyme, nextval('numero_anonyme_seq'))
		WHERE uid=$1 RETURNING numero_anonyme
	`, uid).Scan(&n)
	if err != nil {
		return 0, found("assign numero anonyme", err)
	}
	return n, nil
}

// CreateBeneficiaire materializes a beneficiary period and grants the
// beneficiary role. A period already created for the same demande is kept.
func (r *Repository) CreateBeneficiaire(ctx context.Context, b *model.Beneficiaire) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO beneficiaires (uid, profil_id, demande_id, gestionnaire_uid, debut, fin)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (demande_id) DO NOTHING
			RETURNING id
		`, b.UID, b.ProfilID, b.DemandeID, b.GestionnaireUID, b.Debut, b.Fin).Scan(&b.ID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := tx.QueryRow(ctx, `SELECT id FROM beneficiaires WHERE demande_id=$1`, b.DemandeID).Scan(&b.ID); err != nil {
				return fmt.Errorf("select beneficiaire: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("insert beneficiaire: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE utilisateurs SET roles = array_append(roles, $2)
			WHERE uid=$1 AND NOT ($2 = ANY(roles))
		`, b.UID, model.RoleBeneficiaire)
		if err != nil {
			return fmt.Errorf("grant role: %w", err)
		}
		return nil
	})
}

// Beneficiaires returns the beneficiary periods of uid ordered by start date.
func (r *Repository) Beneficiaires(ctx context.Context, uid string) ([]model.Beneficiaire, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, profil_id, demande_id, gestionnaire_uid, debut, fin
		FROM beneficiaires WHERE uid=$1 ORDER BY debut, id
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("select beneficiaires: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Beneficiaire])
	if err != nil {
		return nil, fmt.Errorf("scan beneficiaires: %w", err)
	}
	return out, nil
}

// Amenagements returns the accommodations of uid ordered by start date.
func (r *Repository) Amenagements(ctx context.Context, uid string) ([]model.Amenagement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, categorie, type, debut, fin FROM amenagements WHERE uid=$1 ORDER BY debut, id
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("select amenagements: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Amenagement])
	if err != nil {
		return nil, fmt.Errorf("scan amenagements: %w", err)
	}
	return out, nil
}

// DerniereInscription returns the most recent enrollment of uid.
func (r *Repository) DerniereInscription(ctx context.Context, uid string) (*model.Inscription, error) {
	var i model.Inscription
	err := r.pool.QueryRow(ctx, `
		SELECT uid, composante, formation, type_diplome, regime, debut FROM inscriptions
		WHERE uid=$1 ORDER BY debut DESC LIMIT 1
	`, uid).Scan(&i.UID, &i.Composante, &i.Formation, &i.TypeDiplome, &i.Regime, &i.Debut)
	if err != nil {
		return nil, found("select inscription", err)
	}
	return &i, nil
}

// CountEntretiens counts the interviews of uid within [debut, fin].
func (r *Repository) CountEntretiens(ctx context.Context, uid string, debut, fin time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM entretiens WHERE uid=$1 AND date BETWEEN $2 AND $3
	`, uid, debut, fin).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entretiens: %w", err)
	}
	return n, nil
}

// AvisEs returns the medical opinions of uid.
func (r *Repository) AvisEs(ctx context.Context, uid string) ([]model.AvisEs, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, uid, debut, fin FROM avis_es WHERE uid=$1 ORDER BY id`, uid)
	if err != nil {
		return nil, fmt.Errorf("select avis es: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.AvisEs])
	if err != nil {
		return nil, fmt.Errorf("scan avis es: %w", err)
	}
	return out, nil
}

// Evenement returns a calendar event by id.
func (r *Repository) Evenement(ctx context.Context, id int64) (*model.Evenement, error) {
	var e model.Evenement
	err := r.pool.QueryRow(ctx, `SELECT id, libelle, date FROM evenements WHERE id=$1`, id).Scan(&e.ID, &e.Libelle, &e.Date)
	if err != nil {
		return nil, found("select evenement", err)
	}
	return &e, nil
}

// BeneficiaireUIDs returns the sorted uids of the users having a beneficiary
// period overlapping the query interval and matching every criterion. An
// empty criterion list matches everything.
func (r *Repository) BeneficiaireUIDs(ctx context.Context, q model.BeneficiaireQuery) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT b.uid FROM beneficiaires b
		WHERE b.debut <= $2 AND (b.fin IS NULL OR b.fin >= $1)
		AND (COALESCE(cardinality($3::bigint[]), 0) = 0 OR b.profil_id = ANY($3))
		AND (COALESCE(cardinality($4::text[]), 0) = 0 OR b.gestionnaire_uid = ANY($4))
		AND (
			COALESCE(cardinality($5::text[]), 0) + COALESCE(cardinality($6::text[]), 0)
			+ COALESCE(cardinality($7::text[]), 0) + COALESCE(cardinality($8::text[]), 0) = 0
			OR EXISTS (
				SELECT 1 FROM inscriptions i WHERE i.uid = b.uid
				AND (COALESCE(cardinality($5::text[]), 0) = 0 OR i.composante = ANY($5))
				AND (COALESCE(cardinality($6::text[]), 0) = 0 OR i.formation = ANY($6))
				AND (COALESCE(cardinality($7::text[]), 0) = 0 OR i.type_diplome = ANY($7))
				AND (COALESCE(cardinality($8::text[]), 0) = 0 OR i.regime = ANY($8))
			)
		)
		AND (
			COALESCE(cardinality($9::text[]), 0) + COALESCE(cardinality($10::text[]), 0) = 0
			OR EXISTS (
				SELECT 1 FROM amenagements a WHERE a.uid = b.uid
				AND a.debut <= $2 AND (a.fin IS NULL OR a.fin >= $1)
				AND (COALESCE(cardinality($9::text[]), 0) = 0 OR a.categorie = ANY($9))
				AND (COALESCE(cardinality($10::text[]), 0) = 0 OR a.type = ANY($10))
			)
		)
		ORDER BY b.uid
	`, q.Debut, q.Fin, q.Profils, q.Gestionnaires, q.Composantes, q.Formations, q.TypesDiplome, q.Regimes,
		q.CategoriesAmenagement, q.TypesAmenagement)
	if err != nil {
		return nil, fmt.Errorf("select beneficiaire uids: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan beneficiaire uids: %w", err)
	}
	return out, nil
}
