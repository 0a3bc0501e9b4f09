// Package extract recovers (location, temperature type, value) triples from
// CWA open-data JSON without assuming a fixed document schema.
//
// CWA documents vary wildly: value containers are sometimes flat and
// sometimes nested, and the same semantic field appears under several key
// spellings. The scan therefore probes explicit, ordered candidate key lists
// and inherits the nearest location name down each subtree instead of
// requiring any particular nesting.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"

	"tempetl/internal/jsontree"
)

// Record is one extracted measurement.
//
// Value keeps the original textual representation from the document; numeric
// conversion is a sink concern.
type Record struct {
	Location string
	TempType string
	Value    string
}

// tempName matches element names that denote a temperature reading. The
// standalone "t" form is boundary-matched so names like "township" do not
// qualify on the bare letter.
var tempName = regexp.MustCompile(`(?i)temp|temperature|t\b|溫度`)

// IsTempName reports whether an element name looks like a temperature.
func IsTempName(name string) bool {
	return tempName.MatchString(name)
}

// locationKeys are the known spellings for a location name, probed in fixed
// precedence order so resolution stays deterministic when aliases coexist.
var locationKeys = []string{
	"locationName",
	"locationname",
	"location",
	"siteName",
	"stationName",
	"name",
}

// Scan walks the JSON tree depth-first and returns every recognized
// temperature measurement in encounter order.
//
// Behavior:
//   - An object's own weatherElement measurements are emitted before the
//     scan descends into its children.
//   - Each child branch receives its own copy of the inherited location
//     name; an override in one subtree never leaks into a sibling.
//   - Structurally valid input never fails: unrecognized shapes are skipped
//     and an empty result is a valid outcome.
func Scan(root any) []Record {
	var out []Record
	scan(root, "", &out)
	return out
}

func scan(node any, loc string, out *[]Record) {
	switch n := node.(type) {
	case jsontree.Object:
		loc = resolveLocation(n, loc)
		if elems, ok := weatherElements(n); ok {
			collectElements(elems, loc, out)
		}
		for _, m := range n {
			scan(m.Value, loc, out)
		}

	case []any:
		// Arrays do not declare location names; pass the context through.
		for _, v := range n {
			scan(v, loc, out)
		}
	}
	// Scalars and nulls terminate the recursion.
}

// resolveLocation returns the location name the object declares directly, or
// the inherited one when no candidate key holds a string.
func resolveLocation(obj jsontree.Object, inherited string) string {
	for _, k := range locationKeys {
		if s, ok := obj.GetString(k); ok {
			return s
		}
	}
	return inherited
}

// weatherElements returns the object's weatherElement array, if any.
// The key is matched case-sensitively and the value must be an array.
func weatherElements(obj jsontree.Object) ([]any, bool) {
	v, ok := obj.Get("weatherElement")
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

// collectElements emits one Record per temperature-classified element that
// has both a resolvable value and a non-empty location context. Candidates
// missing either are dropped silently; the source is allowed to contain
// elements with no recoverable location or value.
func collectElements(elems []any, loc string, out *[]Record) {
	for _, e := range elems {
		elem, ok := e.(jsontree.Object)
		if !ok {
			continue
		}

		name := elementName(elem)
		if !IsTempName(name) {
			continue
		}

		val, ok := elementValue(elem)
		if !ok || loc == "" {
			continue
		}

		*out = append(*out, Record{Location: loc, TempType: name, Value: val})
	}
}

// elementName resolves the element's name: elementName preferred when
// non-empty, then name. Missing both yields "" which the classifier rejects.
func elementName(elem jsontree.Object) string {
	if s, ok := elem.GetString("elementName"); ok && s != "" {
		return s
	}
	if s, ok := elem.GetString("name"); ok {
		return s
	}
	return ""
}

// elementValue resolves the element's scalar value.
//
// The container is elementValue, falling back to value (first non-null
// wins). A container that is itself an object holds the scalar under value,
// falling back to measure. A bare scalar container is used directly. The
// checked order is part of the extraction contract; do not reorder.
func elementValue(elem jsontree.Object) (string, bool) {
	container, ok := firstNonNull(elem, "elementValue", "value")
	if !ok {
		return "", false
	}

	if inner, ok := container.(jsontree.Object); ok {
		v, ok := firstNonNull(inner, "value", "measure")
		if !ok {
			return "", false
		}
		return scalarString(v)
	}

	return scalarString(container)
}

// firstNonNull probes keys in order and returns the first non-null value.
func firstNonNull(obj jsontree.Object, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj.Get(k); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// scalarString renders a scalar as its textual representation. Objects and
// arrays do not carry a usable reading and report no value.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
