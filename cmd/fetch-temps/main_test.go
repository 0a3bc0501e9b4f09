package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tempetl/internal/extract"
	"tempetl/internal/metrics"
	"tempetl/internal/storage"
)

const sampleDoc = `{
  "cwaopendata": {
    "dataset": {
      "location": [
        {
          "locationName": "臺北市",
          "weatherElement": [
            {"elementName": "MinT", "elementValue": {"value": "18"}},
            {"elementName": "MaxT", "elementValue": {"value": "26"}},
            {"elementName": "Wx", "elementValue": {"value": "多雲"}}
          ]
        },
        {
          "locationName": "高雄市",
          "weatherElement": [
            {"elementName": "Temperature", "elementValue": {"value": "29.5"}}
          ]
        }
      ]
    }
  }
}`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testDeps(t *testing.T) (deps, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	return deps{
		Stdout:   &stdout,
		Stderr:   &stderr,
		OpenSink: storage.New,
		Now:      time.Now,
	}, &stdout, &stderr
}

func TestRunMissingFile(t *testing.T) {
	t.Parallel()

	d, _, stderr := testDeps(t)
	code := run(context.Background(), []string{
		"-file", filepath.Join(t.TempDir(), "absent.json"),
		"-out", "", "-db", "",
	}, d)

	if code != 2 {
		t.Fatalf("exit code = %d, want 2; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "open input") {
		t.Errorf("stderr = %q, want open input error", stderr.String())
	}
}

func TestRunInvalidJSON(t *testing.T) {
	t.Parallel()

	in := writeTempFile(t, "bad.json", "{not json at all")
	d, _, stderr := testDeps(t)
	code := run(context.Background(), []string{"-file", in, "-out", "", "-db", ""}, d)

	if code != 3 {
		t.Fatalf("exit code = %d, want 3; stderr: %s", code, stderr.String())
	}
}

func TestRunNoRecords(t *testing.T) {
	t.Parallel()

	in := writeTempFile(t, "empty.json", `{"cwaopendata": {"dataset": {}}}`)
	d, stdout, _ := testDeps(t)
	code := run(context.Background(), []string{"-file", in, "-out", "", "-db", ""}, d)

	if code != 4 {
		t.Fatalf("exit code = %d, want 4", code)
	}
	if !strings.Contains(stdout.String(), "No locations/temperatures discovered.") {
		t.Errorf("stdout = %q, want no-records message", stdout.String())
	}
}

func TestRunBadFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "negative sample", args: []string{"-sample", "-1"}},
		{name: "empty file", args: []string{"-file", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _, _ := testDeps(t)
			if code := run(context.Background(), tt.args, d); code != 2 {
				t.Errorf("exit code = %d, want 2", code)
			}
		})
	}
}

func TestRunFullPipelineSQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeTempFile(t, "data.json", sampleDoc)
	out := filepath.Join(dir, "temperatures.csv")
	db := filepath.Join(dir, "data.db")

	d, stdout, stderr := testDeps(t)
	code := run(context.Background(), []string{
		"-file", in,
		"-out", out,
		"-db", db,
		"-storage", "sqlite",
		"-sample", "2",
	}, d)

	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr: %s", code, stderr.String())
	}

	csvData, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	csvText := string(csvData)
	if !strings.HasPrefix(csvText, "location,temp_type,temperature\n") {
		t.Errorf("csv header missing: %q", csvText)
	}
	if !strings.Contains(csvText, "臺北市,MinT,18") {
		t.Errorf("csv missing MinT row: %q", csvText)
	}
	if strings.Contains(csvText, "Wx") {
		t.Errorf("csv contains non-temperature element: %q", csvText)
	}

	got := stdout.String()
	if !strings.Contains(got, "Wrote 3 rows to "+out) {
		t.Errorf("stdout missing csv confirmation: %q", got)
	}
	if !strings.Contains(got, "Sample of extracted data:") {
		t.Errorf("stdout missing sample header: %q", got)
	}
	if !strings.Contains(got, "臺北市 (MinT): 18") {
		t.Errorf("stdout missing sample row: %q", got)
	}
	// -sample 2 caps the sample output.
	if strings.Contains(got, "高雄市 (Temperature)") {
		t.Errorf("sample not capped at 2 rows: %q", got)
	}

	if _, err := os.Stat(db); err != nil {
		t.Errorf("sqlite database not created: %v", err)
	}
}

type fakeSink struct {
	ensureErr  error
	replaceErr error
	written    int64
	skipped    int64

	gotRecs []extract.Record
}

func (f *fakeSink) Close()                             {}
func (f *fakeSink) EnsureSchema(context.Context) error { return f.ensureErr }

func (f *fakeSink) ReplaceAll(_ context.Context, recs []extract.Record) (int64, int64, error) {
	f.gotRecs = recs
	return f.written, f.skipped, f.replaceErr
}

func TestRunStorageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		openErr error
		sink    *fakeSink
	}{
		{name: "open fails", openErr: errors.New("dial refused")},
		{name: "schema fails", sink: &fakeSink{ensureErr: errors.New("ddl denied")}},
		{name: "replace fails", sink: &fakeSink{replaceErr: errors.New("tx aborted")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := writeTempFile(t, "data.json", sampleDoc)
			d, _, stderr := testDeps(t)
			d.OpenSink = func(context.Context, storage.Config) (storage.Sink, error) {
				if tt.openErr != nil {
					return nil, tt.openErr
				}
				return tt.sink, nil
			}

			code := run(context.Background(), []string{
				"-file", in, "-out", "", "-db", "anything",
			}, d)
			if code != 1 {
				t.Errorf("exit code = %d, want 1; stderr: %s", code, stderr.String())
			}
		})
	}
}

func TestRunReportsSkippedRows(t *testing.T) {
	t.Parallel()

	in := writeTempFile(t, "data.json", sampleDoc)
	sink := &fakeSink{written: 2, skipped: 1}

	d, stdout, _ := testDeps(t)
	d.OpenSink = func(context.Context, storage.Config) (storage.Sink, error) {
		return sink, nil
	}

	code := run(context.Background(), []string{"-file", in, "-out", "", "-db", "x", "-sample", "0"}, d)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if len(sink.gotRecs) != 3 {
		t.Errorf("sink received %d records, want 3", len(sink.gotRecs))
	}
	if !strings.Contains(stdout.String(), "Skipped 1 rows with non-numeric temperatures") {
		t.Errorf("stdout missing skip report: %q", stdout.String())
	}
}

type fakeMetricsBackend struct {
	counters int
	flushed  bool
	closed   bool
}

func (f *fakeMetricsBackend) IncCounter(string, float64, metrics.Labels)       { f.counters++ }
func (f *fakeMetricsBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (f *fakeMetricsBackend) Flush() error                                     { f.flushed = true; return nil }
func (f *fakeMetricsBackend) Close() error                                     { f.closed = true; return nil }

func TestRunDatadogBackendLifecycle(t *testing.T) {
	// Not parallel: metrics.SetBackend is process-global.

	in := writeTempFile(t, "data.json", sampleDoc)
	fake := &fakeMetricsBackend{}

	d, _, stderr := testDeps(t)
	d.DatadogFactory = func(_ context.Context, jobName string, tags []string, _ time.Duration) (backendCloser, error) {
		if jobName != "fetch_temps" {
			t.Errorf("jobName = %q, want fetch_temps", jobName)
		}
		var hasTool bool
		for _, tag := range tags {
			if tag == "tool:fetch_temps" {
				hasTool = true
			}
		}
		if !hasTool {
			t.Errorf("tags = %v, missing tool:fetch_temps", tags)
		}
		return fake, nil
	}

	code := run(context.Background(), []string{
		"-file", in, "-out", "", "-db", "", "-metrics-backend", "datadog",
	}, d)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr: %s", code, stderr.String())
	}
	if fake.counters == 0 {
		t.Error("backend received no counter increments")
	}
	if !fake.closed {
		t.Error("backend was not closed")
	}
}

func TestRunMetricsInitFailureDoesNotFailRun(t *testing.T) {
	// Not parallel: metrics.SetBackend is process-global.

	in := writeTempFile(t, "data.json", sampleDoc)

	d, _, _ := testDeps(t)
	d.DatadogFactory = func(context.Context, string, []string, time.Duration) (backendCloser, error) {
		return nil, errors.New("no api key")
	}

	code := run(context.Background(), []string{
		"-file", in, "-out", "", "-db", "", "-metrics-backend", "datadog",
	}, d)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.File != "data.json" {
		t.Errorf("File = %q, want data.json", cfg.File)
	}
	if cfg.Out != "temperatures.csv" {
		t.Errorf("Out = %q, want temperatures.csv", cfg.Out)
	}
	if cfg.DB != "data.db" {
		t.Errorf("DB = %q, want data.db", cfg.DB)
	}
	if cfg.Storage != "sqlite" {
		t.Errorf("Storage = %q, want sqlite", cfg.Storage)
	}
	if cfg.Sample != 15 {
		t.Errorf("Sample = %d, want 15", cfg.Sample)
	}
	if cfg.MetricsBackend != "none" {
		t.Errorf("MetricsBackend = %q, want none", cfg.MetricsBackend)
	}
	if cfg.FlushEvery != time.Minute {
		t.Errorf("FlushEvery = %s, want 1m", cfg.FlushEvery)
	}
}

func TestParseFlagsHelp(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"-h"})
	if err == nil {
		t.Fatal("parseFlags(-h) returned nil error")
	}
	if !strings.Contains(err.Error(), "Usage of fetch-temps") {
		t.Errorf("help text = %q, want usage block", err.Error())
	}
}
