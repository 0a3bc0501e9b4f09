// Package mssql persists temperature measurements into Microsoft SQL Server.
//
// Note on driver registration:
//   - This package intentionally does NOT blank-import a SQL Server driver.
//     The application registers the "sqlserver" driver elsewhere (see
//     internal/storage/all).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tempetl/internal/extract"
	"tempetl/internal/storage"
)

// Repo implements storage.Sink for SQL Server via database/sql.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New opens a connection for cfg.DSN using the "sqlserver" driver and
// validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureSchema creates the temperatures table when missing, guarded by
// OBJECT_ID since SQL Server has no CREATE TABLE IF NOT EXISTS. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL()); err != nil {
		return fmt.Errorf("mssql: create table temperatures: %w", err)
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
		return 0, skipped, fmt.Errorf("mssql: clear temperatures: %w", err)
	}

	if len(rows) > 0 {
		q, args := buildInsertSQL(rows)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, skipped, fmt.Errorf("mssql: insert temperatures: %w", err)
		}
		written, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return written, skipped, err
	}
	return written, skipped, nil
}

func createTableSQL() string {
	return `IF OBJECT_ID(N'temperatures', N'U') IS NULL BEGIN CREATE TABLE temperatures (
  id BIGINT IDENTITY(1,1) PRIMARY KEY,
  location NVARCHAR(400) NOT NULL,
  temp_type NVARCHAR(400) NOT NULL,
  temperature FLOAT NOT NULL
); END;`
}

// buildInsertSQL produces one multi-row INSERT with @pN placeholders.
func buildInsertSQL(rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO temperatures (location, temp_type, temperature) VALUES `)

	args := make([]any, 0, len(rows)*3)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(@p%d, @p%d, @p%d)", p, p+1, p+2)
		args = append(args,
			sql.Named(fmt.Sprintf("p%d", p), row.Location),
			sql.Named(fmt.Sprintf("p%d", p+1), row.TempType),
			sql.Named(fmt.Sprintf("p%d", p+2), row.Temperature),
		)
		p += 3
	}

	b.WriteString(";")
	return b.String(), args
}
