package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

const selectIntent = `SELECT id, kind, ref, status, attempts, object_key, last_error, created_at, updated_at FROM effect_intents`

// BeginIntent records that the external effect kind is about to run for ref.
// An open intent for the same effect is reused and its attempts incremented.
func (r *Repository) BeginIntent(ctx context.Context, kind model.IntentKind, ref int64) (*model.EffectIntent, error) {
	var in *model.EffectIntent
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		now := r.clock()
		rows, err := tx.Query(ctx, `
			UPDATE effect_intents SET status=$3, attempts=attempts+1, updated_at=$4
			WHERE kind=$1 AND ref=$2 AND status IN ('pending', 'failed')
			RETURNING id, kind, ref, status, attempts, object_key, last_error, created_at, updated_at
		`, kind, ref, model.IntentPending, now)
		if err != nil {
			return fmt.Errorf("reopen intent: %w", err)
		}
		in, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByPos[model.EffectIntent])
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("scan intent: %w", err)
		}
		in = &model.EffectIntent{
			ID:        uuid.NewString(),
			Kind:      kind,
			Ref:       ref,
			Status:    model.IntentPending,
			Attempts:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO effect_intents (id, kind, ref, status, attempts, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, in.ID, in.Kind, in.Ref, in.Status, in.Attempts, in.CreatedAt, in.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert intent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// FailIntent marks an intent as waiting for redelivery.
func (r *Repository) FailIntent(ctx context.Context, id, reason string) error {
	return r.setIntent(ctx, id, `UPDATE effect_intents SET status='failed', last_error=$2, updated_at=$3 WHERE id=$1`, reason)
}

// AbandonIntent marks an intent abandoned with a reason.
func (r *Repository) AbandonIntent(ctx context.Context, id, reason string) error {
	return r.setIntent(ctx, id, `UPDATE effect_intents SET status='abandoned', last_error=$2, updated_at=$3 WHERE id=$1`, reason)
}

// SetIntentObjectKey records the object written by the guarded effect.
func (r *Repository) SetIntentObjectKey(ctx context.Context, id, key string) error {
	return r.setIntent(ctx, id, `UPDATE effect_intents SET object_key=$2, updated_at=$3 WHERE id=$1`, key)
}

func (r *Repository) setIntent(ctx context.Context, id, sql, value string) error {
	tag, err := r.pool.Exec(ctx, sql, id, value, r.clock())
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("intent %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func completeIntent(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	if id == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE effect_intents SET status='completed', updated_at=$2 WHERE id=$1`, id, at); err != nil {
		return fmt.Errorf("complete intent: %w", err)
	}
	return nil
}

// Intents returns the intents guarding kind for ref, oldest first.
func (r *Repository) Intents(ctx context.Context, kind model.IntentKind, ref int64) ([]model.EffectIntent, error) {
	rows, err := r.pool.Query(ctx, selectIntent+` WHERE kind=$1 AND ref=$2 ORDER BY created_at`, kind, ref)
	if err != nil {
		return nil, fmt.Errorf("select intents: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.EffectIntent])
	if err != nil {
		return nil, fmt.Errorf("scan intents: %w", err)
	}
	return out, nil
}

// StaleIntents returns the pending intents not updated since before.
func (r *Repository) StaleIntents(ctx context.Context, before time.Time) ([]model.EffectIntent, error) {
	rows, err := r.pool.Query(ctx, selectIntent+` WHERE status='pending' AND updated_at < $1 ORDER BY updated_at`, before)
	if err != nil {
		return nil, fmt.Errorf("select stale intents: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.EffectIntent])
	if err != nil {
		return nil, fmt.Errorf("scan stale intents: %w", err)
	}
	return out, nil
}

// SaveDeadLetter stores a message that exhausted its retries.
func (r *Repository) SaveDeadLetter(ctx context.Context, dl *model.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = r.clock()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dead_letters (id, task_type, payload, attempts, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (id) DO NOTHING
	`, dl.ID, dl.TaskType, dl.Payload, dl.Attempts, dl.Reason, dl.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// DeadLetters returns the most recent dead letters first.
func (r *Repository) DeadLetters(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_type, payload, attempts, reason, created_at FROM dead_letters
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select dead letters: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.DeadLetter])
	if err != nil {
		return nil, fmt.Errorf("scan dead letters: %w", err)
	}
	return out, nil
}
