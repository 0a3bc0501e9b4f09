// Package csvout writes extracted measurements as CSV.
package csvout

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"tempetl/internal/extract"
)

// header is the consumer-facing column contract; renames are breaking
// changes for downstream spreadsheet/BI users.
var header = []string{"location", "temp_type", "temperature"}

// Write emits a header row followed by one row per record. Values keep the
// original textual representation from the source document.
func Write(w io.Writer, recs []extract.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{r.Location, r.TempType, r.Value}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes CSV to path atomically.
//
// Behavior:
//   - Writes to a temp file in the same directory.
//   - Renames into place on success.
//   - On failure, attempts to remove the temp file.
func WriteFile(path string, recs []extract.Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".temps-*.csv")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	writeErr := Write(tmp, recs)
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return closeErr
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
