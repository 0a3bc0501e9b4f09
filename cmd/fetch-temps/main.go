// Command fetch-temps extracts temperature observations from a CWA open-data
// JSON file and writes them to CSV and/or a storage backend.
//
// Usage:
//
//	fetch-temps -file data.json -out temperatures.csv -db data.db
//
// Postgres instead of the default SQLite:
//
//	fetch-temps -file data.json -storage postgres -db "postgres://user:pw@host/db"
//
// Publish to Kafka:
//
//	fetch-temps -file data.json -storage kafka -db "broker:9092/temperatures"
//
// Connection strings and Datadog credentials can also come from a .env file
// in the working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"tempetl/internal/csvout"
	"tempetl/internal/extract"
	"tempetl/internal/jsontree"
	"tempetl/internal/metrics"
	"tempetl/internal/metrics/datadog"
	"tempetl/internal/metrics/prompush"
	"tempetl/internal/storage"

	// Registers every storage backend with the factory.
	_ "tempetl/internal/storage/all"
)

// envelopeKey is the conventional top-level wrapping key of CWA open-data
// documents. The scan runs on its value when present, on the whole document
// otherwise.
const envelopeKey = "cwaopendata"

// backendCloser is the minimal interface this command needs to manage a
// metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	OpenSink       func(ctx context.Context, cfg storage.Config) (storage.Sink, error)
	DatadogFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	PushFactory    func(jobName, gatewayURL string) (backendCloser, error)
	Now            func() time.Time
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	File    string
	Out     string
	DB      string
	Storage string
	Sample  int

	JobName        string
	MetricsBackend string
	PushGatewayURL string
	DDTagsCSV      string
	FlushEvery     time.Duration

	Verbose bool
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		OpenSink: storage.New,
		DatadogFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		PushFactory: func(jobName, gatewayURL string) (backendCloser, error) {
			return prompush.NewBackend(jobName, gatewayURL)
		},
		Now: time.Now,
	})
	os.Exit(code)
}

// run executes the extraction pipeline and returns an exit code.
//
// Exit codes (part of the CLI contract):
//   - 0: success.
//   - 1: runtime failure (CSV write or storage).
//   - 2: usage error or unreadable input file.
//   - 3: input is not valid JSON.
//   - 4: zero measurements discovered.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OpenSink == nil {
		d.OpenSink = storage.New
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	// Optional .env for connection strings and API keys; absence is fine.
	_ = godotenv.Load()

	runID := uuid.NewString()
	cleanup := initMetrics(ctx, cfg, runID, d)
	defer cleanup()

	if cfg.Verbose {
		log.Printf("run=%s file=%s storage=%s", runID, cfg.File, cfg.Storage)
	}

	fmt.Fprintf(d.Stdout, "Reading: %s\n", cfg.File)

	f, err := os.Open(cfg.File)
	if err != nil {
		fmt.Fprintf(d.Stderr, "open input: %v\n", err)
		return 2
	}

	parseStart := d.Now()
	root, perr := jsontree.Decode(f)
	_ = f.Close()
	metrics.RecordStep("parse", perr, d.Now().Sub(parseStart))
	if perr != nil {
		fmt.Fprintf(d.Stderr, "parse input: %v\n", perr)
		return 3
	}

	scanStart := d.Now()
	recs := extract.Scan(jsontree.Unwrap(root, envelopeKey))
	metrics.RecordStep("scan", nil, d.Now().Sub(scanStart))
	metrics.RecordRecords("extracted", int64(len(recs)))

	// An empty result is valid output from the scan; treating it as a
	// failure is this command's policy, not the extractor's.
	if len(recs) == 0 {
		fmt.Fprintln(d.Stdout, "No locations/temperatures discovered.")
		return 4
	}

	if cfg.Out != "" {
		csvStart := d.Now()
		err := csvout.WriteFile(cfg.Out, recs)
		metrics.RecordStep("csv", err, d.Now().Sub(csvStart))
		if err != nil {
			fmt.Fprintf(d.Stderr, "write csv: %v\n", err)
			return 1
		}
		metrics.RecordRecords("csv_rows", int64(len(recs)))
		fmt.Fprintf(d.Stdout, "Wrote %d rows to %s\n", len(recs), cfg.Out)
	}

	if cfg.DB != "" {
		if code := loadSink(ctx, cfg, recs, d); code != 0 {
			return code
		}
	}

	printSample(d.Stdout, recs, cfg.Sample)
	return 0
}

// loadSink opens the configured storage backend and replaces its contents
// with recs. Returns 0 on success, otherwise an exit code.
func loadSink(ctx context.Context, cfg runConfig, recs []extract.Record, d deps) int {
	loadStart := d.Now()

	sink, err := d.OpenSink(ctx, storage.Config{Kind: cfg.Storage, DSN: cfg.DB})
	if err != nil {
		metrics.RecordStep("load", err, d.Now().Sub(loadStart))
		fmt.Fprintf(d.Stderr, "open %s storage: %v\n", cfg.Storage, err)
		return 1
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		metrics.RecordStep("load", err, d.Now().Sub(loadStart))
		fmt.Fprintf(d.Stderr, "ensure schema: %v\n", err)
		return 1
	}

	written, skipped, err := sink.ReplaceAll(ctx, recs)
	metrics.RecordStep("load", err, d.Now().Sub(loadStart))
	metrics.RecordRecords("written", written)
	metrics.RecordRecords("skipped_conversion", skipped)
	if err != nil {
		fmt.Fprintf(d.Stderr, "write %s storage: %v\n", cfg.Storage, err)
		return 1
	}

	fmt.Fprintf(d.Stdout, "Wrote %d rows to %s storage: %s\n", written, cfg.Storage, cfg.DB)
	if skipped > 0 {
		fmt.Fprintf(d.Stdout, "Skipped %d rows with non-numeric temperatures\n", skipped)
	}
	return 0
}

func printSample(w io.Writer, recs []extract.Record, n int) {
	if n <= 0 {
		return
	}

	fmt.Fprintf(w, "\nSample of extracted data:\n")
	for i, r := range recs {
		if i >= n {
			break
		}
		fmt.Fprintf(w, "%s (%s): %s\n", r.Location, r.TempType, r.Value)
	}
}

// initMetrics wires the metrics backend selected by config and returns a
// cleanup function. Backend initialization failures disable metrics but
// never fail the run.
func initMetrics(ctx context.Context, cfg runConfig, runID string, d deps) func() {
	nop := func() {}

	tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "tool:fetch_temps", "run:"+runID)

	switch cfg.MetricsBackend {
	case "datadog":
		if d.DatadogFactory == nil {
			log.Printf("metrics: datadog factory not wired; metrics disabled")
			return nop
		}
		b, err := d.DatadogFactory(ctx, cfg.JobName, tags, cfg.FlushEvery)
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop
		}
		metrics.SetBackend(b)
		return func() {
			// Close stops the periodic flush loop, then flushes once more.
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "pushgateway":
		if d.PushFactory == nil {
			log.Printf("metrics: pushgateway factory not wired; metrics disabled")
			return nop
		}
		url := cfg.PushGatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		b, err := d.PushFactory(cfg.JobName, url)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return nop
		}
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: pushgateway flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		return nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", cfg.MetricsBackend)
		return nop
	}
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid flags; does not exit the process.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("fetch-temps", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.File, "file", "data.json", "Input CWA open-data JSON file path")
	fs.StringVar(&cfg.Out, "out", "temperatures.csv", "Output CSV file path (empty disables CSV)")
	fs.StringVar(&cfg.DB, "db", "data.db", "Storage DSN (empty disables storage)")
	fs.StringVar(&cfg.Storage, "storage", "sqlite", "Storage backend (sqlite, postgres, mssql, kafka)")
	fs.IntVar(&cfg.Sample, "sample", 15, "How many sample rows to print")
	fs.StringVar(&cfg.JobName, "name", "fetch_temps", "Logical job name used in metrics tags")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "none", "Metrics backend (none, datadog, pushgateway)")
	fs.StringVar(&cfg.PushGatewayURL, "pushgateway-url", "http://localhost:9091", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:temps)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", 1*time.Minute, "Datadog flush interval")
	fs.BoolVar(&cfg.Verbose, "v", false, "Enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.File == "" {
		return runConfig{}, errors.New("missing required -file <input.json>")
	}
	if cfg.Sample < 0 {
		return runConfig{}, errors.New("-sample must be >= 0")
	}
	if cfg.DB != "" && cfg.Storage == "" {
		return runConfig{}, errors.New("-storage must be set when -db is set")
	}

	return cfg, nil
}
