package valueobjects

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "graphscape/pkg/errors"
)

func TestNewProperty(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    PropertyValue
		wantKind ValueKind
		wantErr  bool
		errMsg   string
	}{
		{name: "string", key: "label", value: StringValue("x"), wantKind: ValueString},
		{name: "int", key: "count", value: IntValue(-7), wantKind: ValueInt},
		{name: "float", key: "w", value: FloatValue(0.25), wantKind: ValueFloat},
		{name: "bool", key: "flag", value: BoolValue(true), wantKind: ValueBool},
		{name: "bytes", key: "blob", value: BytesValue{0x01, 0x02}, wantKind: ValueBytes},
		{name: "json object", key: "cfg", value: JSONValue(`{"a":[1,2]}`), wantKind: ValueJSON},
		{name: "empty key is allowed", key: "", value: StringValue("v"), wantKind: ValueString},
		{name: "missing value", key: "k", value: nil, wantErr: true, errMsg: "has no value"},
		{name: "invalid json", key: "cfg", value: JSONValue(`{"a":`), wantErr: true, errMsg: "invalid JSON"},
		{name: "NaN float", key: "score", value: FloatValue(math.NaN()), wantErr: true, errMsg: "finite"},
		{name: "infinite float", key: "score", value: FloatValue(math.Inf(-1)), wantErr: true, errMsg: "finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prop, err := NewProperty(tt.key, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsValidation(err))
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, prop.Key())
			assert.Equal(t, tt.wantKind, prop.Kind())
		})
	}
}

func TestProperty_EqualAndClone(t *testing.T) {
	raw := BytesValue{1, 2, 3}
	a, err := NewProperty("blob", raw)
	require.NoError(t, err)

	// NewProperty copies the slice
	raw[0] = 9
	assert.Equal(t, BytesValue{1, 2, 3}, a.Value())

	b := a.Clone()
	assert.True(t, a.Equal(b))
	b.Value().(BytesValue)[0] = 42
	assert.False(t, a.Equal(b))

	assert.False(t, IntProperty("n", 1).Equal(FloatProperty("n", 1)))
	assert.False(t, StringProperty("a", "x").Equal(StringProperty("b", "x")))
	assert.True(t, BoolProperty("ok", true).Equal(BoolProperty("ok", true)))
	assert.True(t, FloatProperty("w", 0.5).Equal(FloatProperty("w", 0.5)))
	assert.True(t, FloatProperty("w", math.NaN()).Equal(FloatProperty("w", math.NaN())))
	assert.False(t, FloatProperty("w", 0.5).Equal(FloatProperty("w", 0.25)))
}

func TestPropertiesHelpers(t *testing.T) {
	props := []Property{
		StringProperty("tag", "first"),
		StringProperty("tag", "second"),
		IntProperty("n", 3),
	}

	found, ok := FindProperty(props, "tag")
	require.True(t, ok)
	assert.Equal(t, StringValue("first"), found.Value())

	_, ok = FindProperty(props, "missing")
	assert.False(t, ok)

	cloned := CloneProperties(props)
	assert.True(t, PropertiesEqual(props, cloned))
	assert.False(t, PropertiesEqual(props, cloned[:2]))
	assert.Nil(t, CloneProperties(nil))
}

func TestProperty_MarshalJSON(t *testing.T) {
	jsonProp, err := NewProperty("cfg", JSONValue(`{"depth":2}`))
	require.NoError(t, err)

	tests := []struct {
		name string
		prop Property
		want string
	}{
		{"string", StringProperty("k", "v"), `{"key":"k","type":"string","value":"v"}`},
		{"int", IntProperty("k", 4), `{"key":"k","type":"int","value":4}`},
		{"json inlined", jsonProp, `{"key":"cfg","type":"json","value":{"depth":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.prop)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
