// Package jsontree decodes arbitrary JSON into a small, closed set of Go
// value shapes while preserving the key order of objects.
//
// The decoded tree uses exactly these types:
//
//   - Object  (ordered key/value members)
//   - []any   (arrays)
//   - string, json.Number, bool, nil (scalars)
//
// Key order matters downstream: the temperature scan visits object members
// in document order, and a plain map[string]any would make the output order
// nondeterministic between runs over the same document.
package jsontree

import (
	"encoding/json"
	"fmt"
	"io"
)

// Member is a single key/value entry of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object as an ordered sequence of members.
//
// Duplicate keys are kept as-is in document order; Get returns the first.
type Object []Member

// Get returns the value for the first member with the given key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// GetString returns the value for key only when it is a string.
func (o Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Decode reads exactly one JSON value from r.
//
// Behavior:
//   - Numbers are kept as json.Number so the original text survives verbatim.
//   - Object member order is preserved.
//
// Errors:
//   - Empty input, malformed JSON, and trailing non-whitespace data all
//     return an error; callers can rely on a nil error meaning the whole
//     input was one well-formed value.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("jsontree: empty input")
		}
		return nil, fmt.Errorf("jsontree: read first token: %w", err)
	}

	v, err := valueFromFirstToken(dec, tok)
	if err != nil {
		return nil, err
	}

	// Anything after the root value is an error; a document is one value.
	if extra, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, fmt.Errorf("jsontree: trailing data: %w", err)
		}
		return nil, fmt.Errorf("jsontree: trailing data after root value: %v", extra)
	}

	return v, nil
}

// Unwrap removes one optional envelope level: if root is an object with the
// given key, the key's value is returned, otherwise root itself.
func Unwrap(root any, key string) any {
	if obj, ok := root.(Object); ok {
		if v, ok := obj.Get(key); ok {
			return v
		}
	}
	return root
}

// valueFromFirstToken builds the tree value for the current JSON value, given
// that its first token has already been read from dec.
func valueFromFirstToken(dec *json.Decoder, tok any) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		// string, json.Number, bool or nil
		return tok, nil
	}

	switch d {
	case '{':
		var obj Object
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("jsontree: read object key: %w", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("jsontree: object key not a string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("jsontree: read value of %q: %w", k, err)
			}
			v, err := valueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			obj = append(obj, Member{Key: k, Value: v})
		}
		if err := consumeDelim(dec, '}'); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("jsontree: read array element: %w", err)
			}
			v, err := valueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if err := consumeDelim(dec, ']'); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("jsontree: unexpected delimiter %q", d)
	}
}

func consumeDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("jsontree: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("jsontree: expected %q, got %v", want, end)
	}
	return nil
}
