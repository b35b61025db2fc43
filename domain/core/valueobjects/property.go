package valueobjects

import (
	"bytes"
	"encoding/json"
	"math"

	pkgerrors "graphscape/pkg/errors"
)

// ValueKind discriminates the populated member of a Property.
// Non-zero values equal the wire field numbers of the value oneof.
type ValueKind int

const (
	ValueNotSet ValueKind = 0
	ValueString ValueKind = 2
	ValueInt    ValueKind = 3
	ValueFloat  ValueKind = 4
	ValueBool   ValueKind = 5
	ValueBytes  ValueKind = 6
	ValueJSON   ValueKind = 7
)

// String returns the name used in JSON renderings
func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	case ValueBytes:
		return "bytes"
	case ValueJSON:
		return "json"
	default:
		return "unset"
	}
}

// PropertyValue is the closed set of values a Property can carry.
// Only the types in this file implement it.
type PropertyValue interface {
	Kind() ValueKind
	isPropertyValue()
}

type (
	StringValue string
	IntValue    int64
	FloatValue  float64
	BoolValue   bool
	BytesValue  []byte
	JSONValue   string
)

func (StringValue) Kind() ValueKind { return ValueString }
func (IntValue) Kind() ValueKind    { return ValueInt }
func (FloatValue) Kind() ValueKind  { return ValueFloat }
func (BoolValue) Kind() ValueKind   { return ValueBool }
func (BytesValue) Kind() ValueKind  { return ValueBytes }
func (JSONValue) Kind() ValueKind   { return ValueJSON }

func (StringValue) isPropertyValue() {}
func (IntValue) isPropertyValue()    {}
func (FloatValue) isPropertyValue()  {}
func (BoolValue) isPropertyValue()   {}
func (BytesValue) isPropertyValue()  {}
func (JSONValue) isPropertyValue()   {}

// Property is a typed key/value pair. Exactly one value is populated.
// Keys carry meaning, not identity: a node may repeat a key.
type Property struct {
	key   string
	value PropertyValue
}

// NewProperty creates a property, rejecting a missing value, a non-finite
// float or malformed JSON.
func NewProperty(key string, value PropertyValue) (Property, error) {
	if value == nil {
		return Property{}, pkgerrors.NewValidationError("property '" + key + "' has no value")
	}
	if f, ok := value.(FloatValue); ok && (math.IsNaN(float64(f)) || math.IsInf(float64(f), 0)) {
		return Property{}, pkgerrors.NewValidationError("property '" + key + "' must be a finite number")
	}
	if raw, ok := value.(JSONValue); ok && !json.Valid([]byte(raw)) {
		return Property{}, pkgerrors.NewValidationError("property '" + key + "' carries invalid JSON")
	}
	if b, ok := value.(BytesValue); ok {
		value = BytesValue(bytes.Clone(b))
	}
	return Property{key: key, value: value}, nil
}

// StringProperty creates a string-valued property
func StringProperty(key, v string) Property {
	return Property{key: key, value: StringValue(v)}
}

// IntProperty creates an int-valued property
func IntProperty(key string, v int64) Property {
	return Property{key: key, value: IntValue(v)}
}

// FloatProperty creates a float-valued property
func FloatProperty(key string, v float64) Property {
	return Property{key: key, value: FloatValue(v)}
}

// BoolProperty creates a bool-valued property
func BoolProperty(key string, v bool) Property {
	return Property{key: key, value: BoolValue(v)}
}

// Key returns the property key
func (p Property) Key() string {
	return p.key
}

// Value returns the populated value
func (p Property) Value() PropertyValue {
	return p.value
}

// Kind returns the kind of the populated value
func (p Property) Kind() ValueKind {
	if p.value == nil {
		return ValueNotSet
	}
	return p.value.Kind()
}

// Equal compares key, kind and value
func (p Property) Equal(other Property) bool {
	if p.key != other.key || p.Kind() != other.Kind() {
		return false
	}
	switch a := p.value.(type) {
	case BytesValue:
		return bytes.Equal(a, other.value.(BytesValue))
	case FloatValue:
		return math.Float64bits(float64(a)) == math.Float64bits(float64(other.value.(FloatValue)))
	}
	return p.value == other.value
}

// Clone returns a copy that shares no mutable memory with p
func (p Property) Clone() Property {
	if b, ok := p.value.(BytesValue); ok {
		return Property{key: p.key, value: BytesValue(bytes.Clone(b))}
	}
	return p
}

// MarshalJSON renders {"key":..,"type":..,"value":..}
func (p Property) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch v := p.value.(type) {
	case StringValue:
		value = string(v)
	case IntValue:
		value = int64(v)
	case FloatValue:
		value = float64(v)
	case BoolValue:
		value = bool(v)
	case BytesValue:
		value = []byte(v)
	case JSONValue:
		value = json.RawMessage(v)
	}
	return json.Marshal(struct {
		Key   string      `json:"key"`
		Type  string      `json:"type"`
		Value interface{} `json:"value"`
	}{p.key, p.Kind().String(), value})
}

// PropertiesEqual compares two ordered property lists
func PropertiesEqual(a, b []Property) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneProperties deep-copies an ordered property list
func CloneProperties(props []Property) []Property {
	if props == nil {
		return nil
	}
	out := make([]Property, len(props))
	for i, p := range props {
		out[i] = p.Clone()
	}
	return out
}

// FindProperty returns the first property with the given key
func FindProperty(props []Property, key string) (Property, bool) {
	for _, p := range props {
		if p.key == key {
			return p, true
		}
	}
	return Property{}, false
}
