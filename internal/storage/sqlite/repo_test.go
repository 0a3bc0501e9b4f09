package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"tempetl/internal/extract"
	"tempetl/internal/storage"
)

func openTestRepo(t *testing.T) (*Repo, string) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	sink, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sink.Close)
	return sink.(*Repo), dsn
}

func countRows(t *testing.T, dsn string) int {
	t.Helper()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open %s: %v", dsn, err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM temperatures`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	t.Parallel()

	repo, _ := openTestRepo(t)
	ctx := context.Background()

	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema (second run): %v", err)
	}
}

func TestReplaceAll(t *testing.T) {
	t.Parallel()

	repo, dsn := openTestRepo(t)
	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	recs := []extract.Record{
		{Location: "臺北市", TempType: "MinT", Value: "18"},
		{Location: "臺北市", TempType: "MaxT", Value: "26.5"},
		{Location: "高雄市", TempType: "Temperature", Value: "not-a-number"},
	}

	written, skipped, err := repo.ReplaceAll(ctx, recs)
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if written != 2 || skipped != 1 {
		t.Errorf("written, skipped = %d, %d; want 2, 1", written, skipped)
	}
	if n := countRows(t, dsn); n != 2 {
		t.Errorf("table holds %d rows, want 2", n)
	}

	// A second load replaces, not appends.
	written, skipped, err = repo.ReplaceAll(ctx, recs[:1])
	if err != nil {
		t.Fatalf("ReplaceAll (second run): %v", err)
	}
	if written != 1 || skipped != 0 {
		t.Errorf("written, skipped = %d, %d; want 1, 0", written, skipped)
	}
	if n := countRows(t, dsn); n != 1 {
		t.Errorf("table holds %d rows after replace, want 1", n)
	}
}

func TestReplaceAllEmpty(t *testing.T) {
	t.Parallel()

	repo, dsn := openTestRepo(t)
	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	if _, _, err := repo.ReplaceAll(ctx, []extract.Record{
		{Location: "X", TempType: "T", Value: "1"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	written, skipped, err := repo.ReplaceAll(ctx, nil)
	if err != nil {
		t.Fatalf("ReplaceAll(nil): %v", err)
	}
	if written != 0 || skipped != 0 {
		t.Errorf("written, skipped = %d, %d; want 0, 0", written, skipped)
	}
	if n := countRows(t, dsn); n != 0 {
		t.Errorf("table holds %d rows, want 0 after empty replace", n)
	}
}

func TestReplaceAllChunks(t *testing.T) {
	t.Parallel()

	repo, dsn := openTestRepo(t)
	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// More rows than one multi-row INSERT carries.
	n := maxRowsPerInsert + 37
	recs := make([]extract.Record, n)
	for i := range recs {
		recs[i] = extract.Record{
			Location: fmt.Sprintf("站%d", i),
			TempType: "T",
			Value:    fmt.Sprintf("%d.5", i%40),
		}
	}

	written, skipped, err := repo.ReplaceAll(ctx, recs)
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if written != int64(n) || skipped != 0 {
		t.Errorf("written, skipped = %d, %d; want %d, 0", written, skipped, n)
	}
	if got := countRows(t, dsn); got != n {
		t.Errorf("table holds %d rows, want %d", got, n)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	rows := []storage.Row{
		{Location: "臺北市", TempType: "MinT", Temperature: 18},
		{Location: "高雄市", TempType: "MaxT", Temperature: 31.5},
	}

	q, args := buildInsertSQL(rows)
	if want := "(?, ?, ?), (?, ?, ?)"; !strings.HasSuffix(q, want) {
		t.Errorf("query = %q, want suffix %q", q, want)
	}
	if len(args) != 6 {
		t.Fatalf("len(args) = %d, want 6", len(args))
	}
	if args[0] != "臺北市" || args[5] != 31.5 {
		t.Errorf("args = %v", args)
	}
}
