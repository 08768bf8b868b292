package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind enumerates the closed set of metadata value types.
type ValueKind string

const (
	// KindString is a plain string value.
	KindString ValueKind = "string"
	// KindNumber is a float64 value.
	KindNumber ValueKind = "number"
	// KindTimestamp is a point in time.
	KindTimestamp ValueKind = "timestamp"
	// KindStringList is an ordered list of strings.
	KindStringList ValueKind = "string_list"
)

// Value is a tagged metadata value. Exactly one payload field is
// meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Time time.Time
	List []string
}

// StringValue wraps a string in a Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue wraps a number in a Value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// TimestampValue wraps a timestamp in a Value.
func TimestampValue(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

// StringListValue wraps a string list in a Value.
func StringListValue(l []string) Value { return Value{Kind: KindStringList, List: l} }

// jsonValue is the serialised form of Value.
type jsonValue struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Time time.Time `json:"time,omitzero"`
	List []string  `json:"list,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValue{Kind: v.Kind, Str: v.Str, Num: v.Num, Time: v.Time, List: v.List})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	*v = Value{Kind: jv.Kind, Str: jv.Str, Num: jv.Num, Time: jv.Time, List: jv.List}
	return nil
}

// Metadata is the schema-guided metadata bag attached to a document.
// Fields holds values for schema-declared keys. Extra holds
// forward-compatible entries not yet promoted to first-class keys.
type Metadata struct {
	Fields map[string]Value  `json:"fields,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// NewMetadata returns an empty, non-nil metadata bag.
func NewMetadata() Metadata {
	return Metadata{
		Fields: make(map[string]Value),
		Extra:  make(map[string]string),
	}
}

// Set stores a value for a key, allocating Fields if needed.
func (m *Metadata) Set(key string, v Value) {
	if m.Fields == nil {
		m.Fields = make(map[string]Value)
	}
	m.Fields[key] = v
}

// Get returns the value for a key.
func (m Metadata) Get(key string) (Value, bool) {
	v, ok := m.Fields[key]
	return v, ok
}

// Merge overlays other onto m, other's entries winning on key collisions.
func (m *Metadata) Merge(other Metadata) {
	for k, v := range other.Fields {
		m.Set(k, v)
	}
	for k, v := range other.Extra {
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[k] = v
	}
}

// Schema maps metadata keys to their expected kinds. Enrichment results
// are validated against it at ingestion time rather than trusting
// arbitrary shapes at query time.
type Schema map[string]ValueKind

// DefaultSchema covers the fields the enrichment collaborator is asked
// to populate for personal documents.
func DefaultSchema() Schema {
	return Schema{
		"sender":        KindString,
		"recipient":     KindString,
		"category":      KindString,
		"summary":       KindString,
		"amount":        KindNumber,
		"document_date": KindTimestamp,
		"tags":          KindStringList,
	}
}

// Validate coerces an untyped map (as returned by the enrichment
// collaborator) into Metadata. Declared keys must match their schema
// kind; mismatches are dropped and reported as warnings. Unknown keys
// are kept as strings in the Extra bag. Only a nil input is an error.
func (s Schema) Validate(raw map[string]any) (Metadata, []string, error) {
	if raw == nil {
		return Metadata{}, nil, fmt.Errorf("%w: enrichment result is not a map", ErrValidation)
	}

	meta := NewMetadata()
	var warnings []string

	for key, rawVal := range raw {
		kind, declared := s[key]
		if !declared {
			meta.Extra[key] = fmt.Sprintf("%v", rawVal)
			continue
		}

		val, err := coerce(kind, rawVal)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("metadata key %q: %v", key, err))
			continue
		}
		meta.Fields[key] = val
	}

	return meta, warnings, nil
}

// coerce converts a raw JSON-decoded value into a typed Value.
func coerce(kind ValueKind, raw any) (Value, error) {
	switch kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected string, got %T", raw)
		}
		return StringValue(s), nil

	case KindNumber:
		switch n := raw.(type) {
		case float64:
			return NumberValue(n), nil
		case int:
			return NumberValue(float64(n)), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return Value{}, fmt.Errorf("expected number, got %q", n.String())
			}
			return NumberValue(f), nil
		}
		return Value{}, fmt.Errorf("expected number, got %T", raw)

	case KindTimestamp:
		switch t := raw.(type) {
		case time.Time:
			return TimestampValue(t), nil
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if parsed, err := time.Parse(layout, t); err == nil {
					return TimestampValue(parsed), nil
				}
			}
			return Value{}, fmt.Errorf("unparseable timestamp %q", t)
		}
		return Value{}, fmt.Errorf("expected timestamp, got %T", raw)

	case KindStringList:
		switch l := raw.(type) {
		case []string:
			return StringListValue(l), nil
		case []any:
			out := make([]string, 0, len(l))
			for _, item := range l {
				s, ok := item.(string)
				if !ok {
					return Value{}, fmt.Errorf("expected string list, element is %T", item)
				}
				out = append(out, s)
			}
			return StringListValue(out), nil
		}
		return Value{}, fmt.Errorf("expected string list, got %T", raw)
	}

	return Value{}, fmt.Errorf("unknown kind %q", kind)
}
