package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Demande returns a demande by id.
func (r *Repository) Demande(ctx context.Context, id int64) (*model.Demande, error) {
	var d model.Demande
	err := r.pool.QueryRow(ctx, `
		SELECT id, etat, campagne_id, demandeur_uid, commentaire, profil_attribue_id, created_at, updated_at
		FROM demandes WHERE id=$1
	`, id).Scan(&d.ID, &d.Etat, &d.CampagneID, &d.DemandeurUID, &d.Commentaire, &d.ProfilAttribue, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, found("select demande", err)
	}
	return &d, nil
}

// UpdateDemandeEtat writes the new state and, when given, the granted profile.
func (r *Repository) UpdateDemandeEtat(ctx context.Context, id int64, etat model.EtatDemande, profilID *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE demandes SET etat=$2, profil_attribue_id=COALESCE($3, profil_attribue_id), updated_at=$4
		WHERE id=$1
	`, id, etat, profilID, r.clock())
	if err != nil {
		return fmt.Errorf("update demande: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update demande %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// RestoreDemande writes etat and profilID as given, clearing the profile when
// profilID is nil.
func (r *Repository) RestoreDemande(ctx context.Context, id int64, etat model.EtatDemande, profilID *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE demandes SET etat=$2, profil_attribue_id=$3, updated_at=$4
		WHERE id=$1
	`, id, etat, profilID, r.clock())
	if err != nil {
		return fmt.Errorf("restore demande: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("restore demande %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// AppendModification inserts a transition-log row unless one exists for the
// same message. It reports whether the row was inserted.
func (r *Repository) AppendModification(ctx context.Context, m *model.ModificationEtatDemande) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO modifications_etat_demande (id, message_id, demande_id, etat_precedent, etat, profil_id, acteur_uid, commentaire, date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (message_id) DO NOTHING
	`, m.ID, m.MessageID, m.DemandeID, m.EtatPrecedent, m.Etat, m.ProfilID, m.ActeurUID, m.Commentaire, m.Date)
	if err != nil {
		return false, fmt.Errorf("insert modification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Modifications returns the transition log of a demande, oldest first.
func (r *Repository) Modifications(ctx context.Context, demandeID int64) ([]model.ModificationEtatDemande, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, message_id, demande_id, etat_precedent, etat, profil_id, acteur_uid, commentaire, date
		FROM modifications_etat_demande WHERE demande_id=$1 ORDER BY date, id
	`, demandeID)
	if err != nil {
		return nil, fmt.Errorf("select modifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ModificationEtatDemande, error) {
		var m model.ModificationEtatDemande
		err := row.Scan(&m.ID, &m.MessageID, &m.DemandeID, &m.EtatPrecedent, &m.Etat, &m.ProfilID, &m.ActeurUID, &m.Commentaire, &m.Date)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan modifications: %w", err)
	}
	return out, nil
}

// Campagne returns a campaign by id.
func (r *Repository) Campagne(ctx context.Context, id int64) (*model.Campagne, error) {
	var c model.Campagne
	err := r.pool.QueryRow(ctx, `
		SELECT id, type_demande_id, commission_id, debut, fin FROM campagnes WHERE id=$1
	`, id).Scan(&c.ID, &c.TypeDemandeID, &c.CommissionID, &c.Debut, &c.Fin)
	if err != nil {
		return nil, found("select campagne", err)
	}
	return &c, nil
}

// TypeDemande returns a request type by id.
func (r *Repository) TypeDemande(ctx context.Context, id int64) (*model.TypeDemande, error) {
	var t model.TypeDemande
	err := r.pool.QueryRow(ctx, `
		SELECT id, libelle, profils_eligibles, accompagnement_requis, controle_conformite
		FROM types_demande WHERE id=$1
	`, id).Scan(&t.ID, &t.Libelle, &t.ProfilsEligibles, &t.AccompagnementRequis, &t.ControleConformite)
	if err != nil {
		return nil, found("select type demande", err)
	}
	return &t, nil
}

// Profil returns a profile with the charters it requires.
func (r *Repository) Profil(ctx context.Context, id int64) (*model.Profil, error) {
	var p model.Profil
	if err := r.pool.QueryRow(ctx, `SELECT id, libelle FROM profils WHERE id=$1`, id).Scan(&p.ID, &p.Libelle); err != nil {
		return nil, found("select profil", err)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.libelle FROM profil_chartes pc JOIN chartes c ON c.id = pc.charte_id
		WHERE pc.profil_id=$1 ORDER BY c.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select chartes: %w", err)
	}
	p.Chartes, err = pgx.CollectRows(rows, pgx.RowToStructByPos[model.Charte])
	if err != nil {
		return nil, fmt.Errorf("scan chartes: %w", err)
	}
	return &p, nil
}

// CreateChartesDemande creates the requester charters of a demande, skipping
// the ones already created by an earlier delivery.
func (r *Repository) CreateChartesDemande(ctx context.Context, demandeID int64, chartes []model.Charte) error {
	if len(chartes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chartes {
		batch.Queue(`
			INSERT INTO chartes_demandeur (demande_id, charte_id, libelle) VALUES ($1,$2,$3)
			ON CONFLICT (demande_id, charte_id) DO NOTHING
		`, demandeID, c.ID, c.Libelle)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chartes demandeur: %w", err)
	}
	return nil
}

// ChartesDemande returns the charters of a demande ordered by id.
func (r *Repository) ChartesDemande(ctx context.Context, demandeID int64) ([]model.CharteDemandeur, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, demande_id, charte_id, libelle, validee_le FROM chartes_demandeur
		WHERE demande_id=$1 ORDER BY id
	`, demandeID)
	if err != nil {
		return nil, fmt.Errorf("select chartes demandeur: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.CharteDemandeur])
	if err != nil {
		return nil, fmt.Errorf("scan chartes demandeur: %w", err)
	}
	return out, nil
}

// CharteDemandeur returns a requester charter by id.
func (r *Repository) CharteDemandeur(ctx context.Context, id int64) (*model.CharteDemandeur, error) {
	var c model.CharteDemandeur
	err := r.pool.QueryRow(ctx, `
		SELECT id, demande_id, charte_id, libelle, validee_le FROM chartes_demandeur WHERE id=$1
	`, id).Scan(&c.ID, &c.DemandeID, &c.CharteID, &c.Libelle, &c.ValideeLe)
	if err != nil {
		return nil, found("select charte demandeur", err)
	}
	return &c, nil
}

// Reponse returns the answer of uid to question in a campaign.
func (r *Repository) Reponse(ctx context.Context, uid string, campagneID int64, question string) (*model.Reponse, error) {
	rep := model.Reponse{DemandeurUID: uid, CampagneID: campagneID, Question: question}
	err := r.pool.QueryRow(ctx, `
		SELECT valeur FROM reponses WHERE demandeur_uid=$1 AND campagne_id=$2 AND question=$3
	`, uid, campagneID, question).Scan(&rep.Valeur)
	if err != nil {
		return nil, found("select reponse", err)
	}
	return &rep, nil
}

// SportifHautNiveau looks an athlete up by registry number.
func (r *Repository) SportifHautNiveau(ctx context.Context, numero string) (*model.SportifHautNiveau, error) {
	var s model.SportifHautNiveau
	err := r.pool.QueryRow(ctx, `
		SELECT numero_psqs, nom, prenom, annee FROM sportifs_haut_niveau WHERE numero_psqs=$1
	`, numero).Scan(&s.NumeroPSQS, &s.Nom, &s.Prenom, &s.Annee)
	if err != nil {
		return nil, found("select sportif", err)
	}
	return &s, nil
}
