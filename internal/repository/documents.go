package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

const selectDecision = `SELECT id, uid, annee, etat, fichier_id, piece_jointe_id, updated_at FROM decisions_amenagement_examens`

// Decision returns a decision by id.
func (r *Repository) Decision(ctx context.Context, id int64) (*model.Decision, error) {
	rows, err := r.pool.Query(ctx, selectDecision+` WHERE id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("select decision: %w", err)
	}
	d, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[model.Decision])
	if err != nil {
		return nil, found("select decision", err)
	}
	return d, nil
}

// Decisions returns the decisions of uid ordered by year.
func (r *Repository) Decisions(ctx context.Context, uid string) ([]model.Decision, error) {
	rows, err := r.pool.Query(ctx, selectDecision+` WHERE uid=$1 ORDER BY annee, id`, uid)
	if err != nil {
		return nil, fmt.Errorf("select decisions: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Decision])
	if err != nil {
		return nil, fmt.Errorf("scan decisions: %w", err)
	}
	return out, nil
}

// CompleteDecision flips the decision to EDITE and completes its intent in
// one transaction. It reports false when the decision was already edited.
func (r *Repository) CompleteDecision(ctx context.Context, id int64, intentID string, at time.Time) (bool, error) {
	var flipped bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE decisions_amenagement_examens SET etat=$2, updated_at=$3 WHERE id=$1 AND etat <> $2
		`, id, model.EtatDecisionEditee, at)
		if err != nil {
			return fmt.Errorf("update decision: %w", err)
		}
		if tag.RowsAffected() == 0 {
			ok, err := exists(ctx, tx, "decisions_amenagement_examens", id)
			if err != nil {
				return fmt.Errorf("select decision: %w", err)
			}
			if !ok {
				return fmt.Errorf("decision %d: %w", id, model.ErrNotFound)
			}
			return nil
		}
		flipped = true
		return completeIntent(ctx, tx, intentID, at)
	})
	return flipped, err
}

// AttachDecisionArchive stores the archived file, links it to the
// beneficiary and to the decision.
func (r *Repository) AttachDecisionArchive(ctx context.Context, id int64, f *model.Fichier, pj *model.PieceJointeBeneficiaire) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.insertFichier(ctx, tx, f); err != nil {
			return err
		}
		pj.FichierID = f.ID
		if pj.CreatedAt.IsZero() {
			pj.CreatedAt = r.clock()
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO pieces_jointes_beneficiaire (uid, fichier_id, description, televerse_par, created_at)
			VALUES ($1,$2,$3,$4,$5) RETURNING id
		`, pj.UID, pj.FichierID, pj.Description, pj.TeleversePar, pj.CreatedAt).Scan(&pj.ID)
		if err != nil {
			return fmt.Errorf("insert piece jointe: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE decisions_amenagement_examens SET fichier_id=$2, piece_jointe_id=$3 WHERE id=$1
		`, id, f.ID, pj.ID)
		if err != nil {
			return fmt.Errorf("link decision archive: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("decision %d: %w", id, model.ErrNotFound)
		}
		return nil
	})
}

// DecisionStatut returns the staff-facing status of a decision: EN_COURS_ENVOI
// while an edition intent is open and the decision is not yet edited.
func (r *Repository) DecisionStatut(ctx context.Context, id int64) (model.EtatDecision, error) {
	var (
		etat    model.EtatDecision
		pending bool
	)
	err := r.pool.QueryRow(ctx, `
		SELECT d.etat, EXISTS (
			SELECT 1 FROM effect_intents i
			WHERE i.kind=$2 AND i.ref=d.id AND i.status IN ('pending', 'failed')
		)
		FROM decisions_amenagement_examens d WHERE d.id=$1
	`, id, model.IntentEditionDecision).Scan(&etat, &pending)
	if err != nil {
		return "", found("select decision statut", err)
	}
	if etat != model.EtatDecisionEditee && pending {
		return model.EtatDecisionEnvoi, nil
	}
	return etat, nil
}

// Bilan returns a report job by id.
func (r *Repository) Bilan(ctx context.Context, id int64) (*model.Bilan, error) {
	var b model.Bilan
	err := r.pool.QueryRow(ctx, `
		SELECT id, debut, fin, parametres, description, date_generation, fichier_id FROM bilans WHERE id=$1
	`, id).Scan(&b.ID, &b.Debut, &b.Fin, &b.Parametres, &b.Description, &b.DateGeneration, &b.FichierID)
	if err != nil {
		return nil, found("select bilan", err)
	}
	return &b, nil
}

// CreateBilan inserts a report job to be generated.
func (r *Repository) CreateBilan(ctx context.Context, b *model.Bilan) error {
	if b.Parametres == nil {
		b.Parametres = []model.BilanParametre{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bilans (debut, fin, parametres, description) VALUES ($1,$2,$3,$4) RETURNING id
	`, b.Debut, b.Fin, b.Parametres, b.Description).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("insert bilan: %w", err)
	}
	return nil
}

// CompleteBilan attaches the generated file, sets the generation date and
// completes the intent in one transaction. When the report was already
// generated nothing is stored and it reports false.
func (r *Repository) CompleteBilan(ctx context.Context, id int64, f *model.Fichier, at time.Time, intentID string) (bool, error) {
	var committed bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var generated *time.Time
		err := tx.QueryRow(ctx, `SELECT date_generation FROM bilans WHERE id=$1 FOR UPDATE`, id).Scan(&generated)
		if err != nil {
			return found("select bilan", err)
		}
		if generated != nil {
			return nil
		}
		if err := r.insertFichier(ctx, tx, f); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE bilans SET fichier_id=$2, date_generation=$3 WHERE id=$1`, id, f.ID, at); err != nil {
			return fmt.Errorf("update bilan: %w", err)
		}
		committed = true
		return completeIntent(ctx, tx, intentID, at)
	})
	if err != nil {
		return false, err
	}
	return committed, nil
}

// Fichier returns a stored file metadata by id.
func (r *Repository) Fichier(ctx context.Context, id int64) (*model.Fichier, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nom, type_mime, object_key, taille, description, created_at FROM fichiers WHERE id=$1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select fichier: %w", err)
	}
	f, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[model.Fichier])
	if err != nil {
		return nil, found("select fichier", err)
	}
	return f, nil
}

func (r *Repository) insertFichier(ctx context.Context, tx pgx.Tx, f *model.Fichier) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = r.clock()
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO fichiers (nom, type_mime, object_key, taille, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id
	`, f.Nom, f.TypeMime, f.ObjectKey, f.Taille, f.Description, f.CreatedAt).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("insert fichier: %w", err)
	}
	return nil
}
