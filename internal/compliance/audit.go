package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/models"
)

// AuditLog records every exclusion append-only. Implementations must not
// fail the compliance check path; recording errors are their problem to
// log.
type AuditLog interface {
	RecordExclusion(ctx context.Context, ticker string, reason models.ReasonCode, source string, detail string)
}

// LogAudit writes exclusions to the structured log only. Used when no
// database is configured.
type LogAudit struct{}

func (LogAudit) RecordExclusion(_ context.Context, ticker string, reason models.ReasonCode, source string, detail string) {
	log.Info().
		Str("ticker", ticker).
		Str("reason", string(reason)).
		Str("source", source).
		Str("detail", detail).
		Msg("compliance exclusion")
}

// PostgresAudit appends exclusions to the compliance_audit table.
//
// Schema:
//
//	CREATE TABLE compliance_audit (
//	    id          BIGSERIAL PRIMARY KEY,
//	    ticker      TEXT NOT NULL,
//	    reason      TEXT NOT NULL,
//	    source      TEXT NOT NULL,
//	    detail      TEXT NOT NULL DEFAULT '',
//	    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresAudit struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresAudit wraps an sqlx connection.
func NewPostgresAudit(db *sqlx.DB, timeout time.Duration) *PostgresAudit {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresAudit{db: db, timeout: timeout}
}

func (a *PostgresAudit) RecordExclusion(ctx context.Context, ticker string, reason models.ReasonCode, source string, detail string) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO compliance_audit (ticker, reason, source, detail) VALUES ($1, $2, $3, $4)`,
		ticker, string(reason), source, detail)
	if err != nil {
		// The audit trail is best-effort relative to the check itself; the
		// exclusion verdict stands regardless.
		log.Error().Err(err).Str("ticker", ticker).Msg("failed to record compliance exclusion")
	}
}

// Recent returns the newest audit entries for operational inspection.
func (a *PostgresAudit) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var entries []AuditEntry
	err := a.db.SelectContext(ctx, &entries,
		`SELECT ticker, reason, source, detail, recorded_at
		 FROM compliance_audit ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading audit entries: %w", err)
	}
	return entries, nil
}

// AuditEntry is one recorded exclusion.
type AuditEntry struct {
	Ticker     string    `db:"ticker" json:"ticker"`
	Reason     string    `db:"reason" json:"reason"`
	Source     string    `db:"source" json:"source"`
	Detail     string    `db:"detail" json:"detail"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}
