// Package sqlite persists temperature measurements into a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tempetl/internal/extract"
	"tempetl/internal/storage"
)

// maxRowsPerInsert keeps multi-row inserts under SQLite's bind-variable
// limit (3 variables per row).
const maxRowsPerInsert = 500

// Repo implements storage.Sink for SQLite.
//
// The table layout matches the long-standing consumer contract:
//
//	temperatures(id INTEGER PRIMARY KEY, location, temp_type, temperature)
//
// id is the rowid alias, so SQLite auto-generates it on insert.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (or creates) the database at cfg.DSN and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSchema creates the temperatures table when missing. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS temperatures (
  id INTEGER PRIMARY KEY,
  location TEXT NOT NULL,
  temp_type TEXT NOT NULL,
  temperature REAL NOT NULL
);`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table temperatures: %w", err)
	}
	return nil
}

// ReplaceAll clears the temperatures table and inserts the convertible
// records in one transaction.
func (r *Repo) ReplaceAll(ctx context.Context, recs []extract.Record) (written, skipped int64, err error) {
	rows, skipped := storage.ConvertRows(recs)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, skipped, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM temperatures`); err != nil {
		return 0, skipped, fmt.Errorf("sqlite: clear temperatures: %w", err)
	}

	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := start + maxRowsPerInsert
		if end > len(rows) {
			end = len(rows)
		}

		q, args := buildInsertSQL(rows[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return written, skipped, fmt.Errorf("sqlite: insert temperatures: %w", err)
		}
		n, _ := res.RowsAffected()
		written += n
	}

	if err := tx.Commit(); err != nil {
		return written, skipped, err
	}
	return written, skipped, nil
}

// buildInsertSQL produces one multi-row INSERT for a chunk of rows.
func buildInsertSQL(rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO temperatures (location, temp_type, temperature) VALUES `)

	args := make([]any, 0, len(rows)*3)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, row.Location, row.TempType, row.Temperature)
	}

	return b.String(), args
}
