package strategy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stockrun/stockrun/internal/models"
)

// PostgresStore persists strategies with conditions as JSONB.
//
// Schema:
//
//	CREATE TABLE strategies (
//	    id          TEXT PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    description TEXT NOT NULL DEFAULT '',
//	    version     INT NOT NULL DEFAULT 1,
//	    is_default  BOOLEAN NOT NULL DEFAULT FALSE,
//	    conditions  JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE UNIQUE INDEX strategies_single_default
//	    ON strategies (is_default) WHERE is_default;
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore wraps an sqlx connection.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

type strategyRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Version     int       `db:"version"`
	IsDefault   bool      `db:"is_default"`
	Conditions  []byte    `db:"conditions"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r strategyRow) toModel() (*models.Strategy, error) {
	var conditions []models.Condition
	if err := json.Unmarshal(r.Conditions, &conditions); err != nil {
		return nil, fmt.Errorf("decoding conditions for strategy %s: %w", r.ID, err)
	}
	return &models.Strategy{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Default:     r.IsDefault,
		Conditions:  conditions,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var row strategyRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, name, description, version, is_default, conditions, created_at, updated_at
		 FROM strategies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading strategy %s: %w", id, err)
	}
	return row.toModel()
}

func (p *PostgresStore) GetDefault(ctx context.Context) (*models.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var row strategyRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, name, description, version, is_default, conditions, created_at, updated_at
		 FROM strategies WHERE is_default`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no default strategy: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading default strategy: %w", err)
	}
	return row.toModel()
}

func (p *PostgresStore) List(ctx context.Context) ([]*models.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var rows []strategyRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT id, name, description, version, is_default, conditions, created_at, updated_at
		 FROM strategies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	out := make([]*models.Strategy, 0, len(rows))
	for _, row := range rows {
		strat, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, strat)
	}
	return out, nil
}

// Save upserts a strategy, bumping version on update. Setting Default clears
// the flag elsewhere in the same transaction so the partial unique index
// never trips.
func (p *PostgresStore) Save(ctx context.Context, strat *models.Strategy) error {
	if err := strat.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conditions, err := json.Marshal(strat.Conditions)
	if err != nil {
		return fmt.Errorf("encoding conditions: %w", err)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if strat.Default {
		if _, err := tx.ExecContext(ctx,
			`UPDATE strategies SET is_default = FALSE WHERE is_default AND id <> $1`, strat.ID); err != nil {
			return fmt.Errorf("clearing previous default: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO strategies (id, name, description, version, is_default, conditions)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = strategies.version + 1,
			is_default = EXCLUDED.is_default,
			conditions = EXCLUDED.conditions,
			updated_at = now()`,
		strat.ID, strat.Name, strat.Description, strat.Default, conditions)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("default strategy conflict: %w", err)
		}
		return fmt.Errorf("saving strategy %s: %w", strat.ID, err)
	}

	return tx.Commit()
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting strategy %s: %w", id, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	return nil
}
