package storage

import (
	"log"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"tempetl/internal/extract"
)

// Row is a measurement ready for persistence: location normalized, value
// parsed to a number.
type Row struct {
	Location    string
	TempType    string
	Temperature float64
}

// NormalizeLocation canonicalizes a location name for storage.
//
// CWA documents mix Unicode normal forms for CJK names (the same 臺北 can
// arrive precomposed or decomposed); NFC keeps lookups and GROUP BYs on the
// persisted table consistent.
func NormalizeLocation(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ParseTemperature converts a record's textual value to a float64.
func ParseTemperature(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ConvertRows prepares records for a sink.
//
// Records whose value does not parse as a number are skipped with a logged
// warning and counted, never failing the batch. The returned slice preserves
// input order.
func ConvertRows(recs []extract.Record) (rows []Row, skipped int64) {
	rows = make([]Row, 0, len(recs))
	for _, r := range recs {
		t, err := ParseTemperature(r.Value)
		if err != nil {
			log.Printf("storage: cannot convert temperature %q for %s (%s); skipping", r.Value, r.Location, r.TempType)
			skipped++
			continue
		}
		rows = append(rows, Row{
			Location:    NormalizeLocation(r.Location),
			TempType:    r.TempType,
			Temperature: t,
		})
	}
	return rows, skipped
}
