// Package postgres persists temperature measurements into Postgres.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"tempetl/internal/extract"
	"tempetl/internal/storage"
)

// Repo implements storage.Sink for Postgres using a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN. Connection failures surface on first use.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// EnsureSchema creates the temperatures table when missing. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS temperatures (
  id BIGSERIAL PRIMARY KEY,
  location TEXT NOT NULL,
  temp_type TEXT NOT NULL,
  temperature DOUBLE PRECISION NOT NULL
);`
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create table temperatures: %w", err)
	}
	return nil
}

// ReplaceAll clears the temperatures table and inserts the convertible
// records in one transaction.
func (r *Repo) ReplaceAll(ctx context.Context, recs []extract.Record) (written, skipped int64, err error) {
	rows, skipped := storage.ConvertRows(recs)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, skipped, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM temperatures`); err != nil {
		return 0, skipped, fmt.Errorf("postgres: clear temperatures: %w", err)
	}

	if len(rows) > 0 {
		q, args := buildInsertSQL(rows)
		ct, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, skipped, fmt.Errorf("postgres: insert temperatures: %w", err)
		}
		written = ct.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return written, skipped, err
	}
	return written, skipped, nil
}

// buildInsertSQL produces one multi-row INSERT with $n placeholders.
func buildInsertSQL(rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO temperatures (location, temp_type, temperature) VALUES `)

	args := make([]any, 0, len(rows)*3)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d)", p, p+1, p+2)
		p += 3
		args = append(args, row.Location, row.TempType, row.Temperature)
	}

	b.WriteString(";")
	return b.String(), args
}
