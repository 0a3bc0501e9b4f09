package csvout

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"tempetl/internal/extract"
)

var testRecords = []extract.Record{
	{Location: "臺北市", TempType: "MinT", Value: "18"},
	{Location: "高雄市", TempType: "MaxT", Value: "31.5"},
	{Location: "委託, 含逗號", TempType: "T", Value: "-99"},
}

func TestWrite(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := Write(&sb, testRecords); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("reparse output: %v", err)
	}

	want := [][]string{
		{"location", "temp_type", "temperature"},
		{"臺北市", "MinT", "18"},
		{"高雄市", "MaxT", "31.5"},
		{"委託, 含逗號", "T", "-99"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestWriteEmpty(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := Write(&sb, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := sb.String(); got != "location,temp_type,temperature\n" {
		t.Errorf("output = %q, want header only", got)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "temperatures.csv")

	if err := WriteFile(path, testRecords); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasPrefix(string(data), "location,temp_type,temperature\n") {
		t.Errorf("file content = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "temperatures.csv" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only temperatures.csv", names)
	}
}

func TestWriteFileReplacesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := WriteFile(path, testRecords[:1]); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if strings.Contains(string(data), "stale") {
		t.Errorf("file not replaced: %q", data)
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv")
	if err := WriteFile(path, testRecords); err == nil {
		t.Error("WriteFile into missing directory succeeded")
	}
}
