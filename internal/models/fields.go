// Package models holds the records kopfkino edits: the generic document shape
// exchanged with the remote store, collection descriptors and the typed
// entities (projects, locations, characters, scenes, settings).
package models

import (
	"encoding/json"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Fields maps field names to values. Values are JSON-shaped: strings,
// numbers, bools, []any / []string and nested maps.
type Fields map[string]any

// Clone returns a deep copy, so slices and nested maps are never shared
// between a draft and a snapshot.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// Set stores a deep copy of v under name.
func (f Fields) Set(name string, v any) {
	f[name] = cloneValue(v)
}

// Pick copies only the named fields that are present.
func (f Fields) Pick(names []string) Fields {
	out := make(Fields, len(names))
	for _, n := range names {
		if v, ok := f[n]; ok {
			out[n] = cloneValue(v)
		}
	}
	return out
}

// String returns the named field as a string, or "" if absent or not a string.
func (f Fields) String(name string) string {
	s, _ := f[name].(string)
	return s
}

// Blank reports whether the named field is missing or whitespace only.
func (f Fields) Blank(name string) bool {
	return strings.TrimSpace(f.String(name)) == ""
}

// EqualOn compares f and o field by field over names.
func (f Fields) EqualOn(o Fields, names []string) bool {
	for _, n := range names {
		if !Equal(f[n], o[n]) {
			return false
		}
	}
	return true
}

// DiffOn renders a go-cmp diff of the named fields, for logs and tests.
func (f Fields) DiffOn(o Fields, names []string) string {
	return cmp.Diff(normalize(map[string]any(f.Pick(names))), normalize(map[string]any(o.Pick(names))))
}

// Equal reports structural equality of two field values. Absent, nil and ""
// are equal; nil and empty slices are equal; numbers compare as float64.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return x
	case bool:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case *int:
		if x == nil {
			return nil
		}
		return float64(*x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []string:
		if len(x) == 0 {
			return nil
		}
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = normalize(s)
		}
		return out
	case []any:
		if len(x) == 0 {
			return nil
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []map[string]any:
		if len(x) == 0 {
			return nil
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case Fields:
		return normalize(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if n := normalize(e); n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e).(map[string]any)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case Fields:
		return x.Clone()
	case *int:
		if x == nil {
			return x
		}
		n := *x
		return &n
	default:
		return v
	}
}
