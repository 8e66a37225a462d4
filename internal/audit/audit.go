// Package audit mirrors the turn aggregate's in-memory audit trail
// (internal/turn's AuditEntry) to a SQL table for operational debugging.
//
// This is not long-term turn history persistence: it is a best-effort,
// bounded mirror of the trail the aggregate already keeps in memory, not a
// queryable history API. A turn
// that never gets a Sink wired behaves identically; Mirror failures are
// logged and swallowed, never surfaced to the pipeline.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/marcus-qen/turnengine/internal/turn"
)

// maxRowsPerTurn bounds the mirror: only the most recent entries are kept
// per turn, so a long-lived or pathological turn cannot grow the table
// without limit.
const maxRowsPerTurn = 500

// Sink mirrors audit entries to a SQL table over database/sql. The driver
// is the one named to Open: "pgx" uses pgx's stdlib driver, "mysql" the
// MySQL driver; the DSN must be in that driver's format.
type Sink struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and ensures the mirror table
// exists. driverName must be "pgx" or "mysql".
func Open(ctx context.Context, driverName, dsn string) (*Sink, error) {
	if driverName != "pgx" && driverName != "mysql" {
		return nil, fmt.Errorf("audit: unsupported driver %q, want \"pgx\" or \"mysql\"", driverName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Sink{db: db, driver: driverName}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS turn_audit_log (
		turn_id     VARCHAR(255) NOT NULL,
		version     BIGINT NOT NULL,
		kind        VARCHAR(64) NOT NULL,
		state       VARCHAR(32) NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		PRIMARY KEY (turn_id, version)
	)`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// Mirror writes every entry of t's audit trail not already persisted,
// identified by (turn_id, version), then trims the table down to
// maxRowsPerTurn for this turn id. Errors are returned to the caller
// (the API server logs them and continues rather than failing the turn on
// a mirror failure, per this package's doc comment).
func (s *Sink) Mirror(ctx context.Context, t *turn.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt := `INSERT INTO turn_audit_log (turn_id, version, kind, state, occurred_at)
		VALUES (?, ?, ?, ?, ?)`
	if s.driver == "pgx" {
		stmt = `INSERT INTO turn_audit_log (turn_id, version, kind, state, occurred_at)
			VALUES ($1, $2, $3, $4, $5) ON CONFLICT (turn_id, version) DO NOTHING`
	}

	for _, entry := range t.AuditTrail {
		if _, err := tx.ExecContext(ctx, stmt, t.TurnID, entry.Version, entry.Kind, string(entry.State), entry.Timestamp); err != nil {
			if s.driver == "mysql" && isDuplicateKey(err) {
				continue
			}
			return fmt.Errorf("audit: insert entry v%d: %w", entry.Version, err)
		}
	}

	if err := s.trim(ctx, tx, t.TurnID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Sink) trim(ctx context.Context, tx *sql.Tx, turnID string) error {
	query := `DELETE FROM turn_audit_log WHERE turn_id = ? AND version NOT IN (
		SELECT version FROM (
			SELECT version FROM turn_audit_log WHERE turn_id = ? ORDER BY version DESC LIMIT ?
		) keep
	)`
	if s.driver == "pgx" {
		query = `DELETE FROM turn_audit_log WHERE turn_id = $1 AND version NOT IN (
			SELECT version FROM turn_audit_log WHERE turn_id = $1 ORDER BY version DESC LIMIT $2
		)`
		_, err := tx.ExecContext(ctx, query, turnID, maxRowsPerTurn)
		return err
	}
	_, err := tx.ExecContext(ctx, query, turnID, turnID, maxRowsPerTurn)
	return err
}

func isDuplicateKey(err error) bool {
	return err != nil && (containsFold(err.Error(), "duplicate") || containsFold(err.Error(), "1062"))
}

func containsFold(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			a, b := haystack[i+j], needle[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
