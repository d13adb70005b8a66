// Package history records script evaluations in PostgreSQL for auditing.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Record is one evaluation audit entry.
type Record struct {
	ID               string    `json:"id"`
	VaultID          string    `json:"vaultId"`
	Script           string    `json:"script"`
	ScriptHash       string    `json:"scriptHash"`
	Entry            string    `json:"entry"`
	Success          bool      `json:"success"`
	ErrorKind        string    `json:"errorKind,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	ExecutionTimeMs  int64     `json:"executionTimeMs"`
	MemoryLimitBytes int64     `json:"memoryLimitBytes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Filter narrows a history listing.
type Filter struct {
	VaultID string
	Success *bool
	Limit   int
	Offset  int
}

// Store persists evaluation records.
type Store struct {
	db *sql.DB
}

// NewStore opens the PostgreSQL connection and ensures the schema exists.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB wraps an existing connection, for tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS script_evaluations (
	id                 TEXT PRIMARY KEY,
	vault_id           TEXT NOT NULL,
	script             TEXT NOT NULL,
	script_hash        TEXT NOT NULL DEFAULT '',
	entry              TEXT NOT NULL,
	success            BOOLEAN NOT NULL,
	error_kind         TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	execution_time_ms  BIGINT NOT NULL,
	memory_limit_bytes BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_script_evaluations_vault ON script_evaluations (vault_id, created_at DESC);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts one evaluation record.
func (s *Store) Save(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO script_evaluations
	(id, vault_id, script, script_hash, entry, success, error_kind, error_message, execution_time_ms, memory_limit_bytes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.VaultID, rec.Script, rec.ScriptHash, rec.Entry,
		rec.Success, rec.ErrorKind, rec.ErrorMessage,
		rec.ExecutionTimeMs, rec.MemoryLimitBytes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save evaluation record: %w", err)
	}
	return nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	const q = `
SELECT id, vault_id, script, script_hash, entry, success, error_kind, error_message, execution_time_ms, memory_limit_bytes, created_at
FROM script_evaluations WHERE id = $1`

	var rec Record
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.VaultID, &rec.Script, &rec.ScriptHash, &rec.Entry,
		&rec.Success, &rec.ErrorKind, &rec.ErrorMessage,
		&rec.ExecutionTimeMs, &rec.MemoryLimitBytes, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	q := `
SELECT id, vault_id, script, script_hash, entry, success, error_kind, error_message, execution_time_ms, memory_limit_bytes, created_at
FROM script_evaluations`

	var args []interface{}
	var where []string
	if filter.VaultID != "" {
		args = append(args, filter.VaultID)
		where = append(where, fmt.Sprintf("vault_id = $%d", len(args)))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		where = append(where, fmt.Sprintf("success = $%d", len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			q += " WHERE " + cond
		} else {
			q += " AND " + cond
		}
	}

	q += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.VaultID, &rec.Script, &rec.ScriptHash, &rec.Entry,
			&rec.Success, &rec.ErrorKind, &rec.ErrorMessage,
			&rec.ExecutionTimeMs, &rec.MemoryLimitBytes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
