package storage

import (
	"context"
	"fmt"
	"sync"

	"tempetl/internal/extract"
)

// Config is the minimal configuration needed to create a Sink.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; its format is
//     backend-specific (a file path for sqlite, a URL for postgres, ...).
type Config struct {
	Kind string
	DSN  string
}

// Sink is a backend-agnostic destination for extracted measurements.
//
// IMPORTANT: the interface is intentionally minimal. Each backend implements
// the semantics in its own idiomatic way (multi-row INSERT for the SQL
// backends, one message per record for kafka).
type Sink interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates the destination schema if needed. Idempotent and
	// safe to run on every invocation. Backends without a schema no-op.
	EnsureSchema(ctx context.Context) error

	// ReplaceAll replaces the sink's contents with recs.
	//
	// Records whose textual value cannot become a number are skipped with a
	// logged warning and counted in skipped; one bad measurement must not
	// discard an otherwise valid batch.
	ReplaceAll(ctx context.Context, recs []extract.Record) (written, skipped int64, err error)
}

type factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a sink backend under a kind (e.g. "sqlite", "kafka").
//
// Call Register from an init() function in a backend package. Duplicate
// registration panics; failing fast avoids ambiguous backend selection.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Sink using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
