// Package keys builds the composite string keys stored in the partition and
// sort key columns. A key is a literal prefix followed by field values, all
// joined with the table delimiter:
//
//	Recipe{Prefix: "song", Fields: []string{"albumId", "id"}}
//	{"albumId": "7", "id": 3}  →  "song-7-3"
//
// Keys are opaque to the store and are never decoded.
package keys

import (
	"strings"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
)

// Recipe is the ordered field list, with a literal prefix, that a key is built from.
type Recipe struct {
	Prefix string
	Fields []string
}

// Values maps field names to key component values.
// Strings and Go numbers are accepted, see [Format].
type Values map[string]any

// Build joins the prefix and the values of r's fields with delim.
// Collection stops at the first field missing from v, which makes the result
// usable as a begins_with prefix for sort key queries.
func Build(delim string, r Recipe, v Values) string {
	parts := make([]string, 0, len(r.Fields)+1)
	if r.Prefix != "" {
		parts = append(parts, r.Prefix)
	}
	for _, f := range r.Fields {
		raw, ok := v[f]
		if !ok || raw == nil {
			break
		}
		s, ok := Format(raw)
		if !ok {
			break
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, delim)
}

// Pattern renders r with placeholders for its fields, e.g. "song-{albumId}-{id}".
func (r Recipe) Pattern(delim string) string {
	parts := make([]string, 0, len(r.Fields)+1)
	if r.Prefix != "" {
		parts = append(parts, r.Prefix)
	}
	for _, f := range r.Fields {
		parts = append(parts, "{"+f+"}")
	}
	return strings.Join(parts, delim)
}

// Require checks that every field of r has a usable value in v.
func Require(r Recipe, v Values) error {
	for _, f := range r.Fields {
		raw, ok := v[f]
		if !ok || raw == nil {
			return ddberrors.NewValidationError(f, "missing key field")
		}
		if _, ok := Format(raw); !ok {
			return ddberrors.NewValidationError(f, "key fields must be strings or numbers")
		}
	}
	return nil
}

// Complete reports how many leading fields of r are present in v.
func Complete(r Recipe, v Values) int {
	n := 0
	for _, f := range r.Fields {
		raw, ok := v[f]
		if !ok || raw == nil {
			return n
		}
		if _, ok := Format(raw); !ok {
			return n
		}
		n++
	}
	return n
}
