// Package repository implements the persistence gateways on top of Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Repository wraps all SQL used by the worker, the ops server and the CLI.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New constructs a repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

func (r *Repository) clock() time.Time {
	return r.now().UTC()
}

// found maps pgx.ErrNoRows to model.ErrNotFound and wraps anything else.
func found(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// exists reports whether a row with id is present in table. table is always
// a literal from this package.
func exists(ctx context.Context, q pgx.Tx, table string, id int64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}
