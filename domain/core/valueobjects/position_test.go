package valueobjects

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition3D(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z float64
		wantErr bool
		errMsg  string
	}{
		{name: "origin", x: 0, y: 0, z: 0},
		{name: "mixed signs", x: -4.5, y: 12.25, z: 0.001},
		{name: "NaN y coordinate", x: 0, y: math.NaN(), z: 0, wantErr: true, errMsg: "invalid coordinates"},
		{name: "infinite z coordinate", x: 0, y: 0, z: math.Inf(-1), wantErr: true, errMsg: "invalid coordinates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := NewPosition3D(tt.x, tt.y, tt.z)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.x, pos.X())
			assert.Equal(t, tt.y, pos.Y())
			assert.Equal(t, tt.z, pos.Z())
		})
	}
}

func TestPosition_Equals(t *testing.T) {
	a, err := NewPosition3D(0, 0, 0)
	require.NoError(t, err)
	b, err := NewPosition3D(3, 4, 0)
	require.NoError(t, err)
	near, err := NewPosition3D(1e-12, 0, 0)
	require.NoError(t, err)

	assert.False(t, a.Equals(b))
	assert.True(t, a.Equals(near))
	assert.True(t, b.Equals(b))
}

func TestPosition_MarshalJSON(t *testing.T) {
	pos, err := NewPosition3D(1, 2.5, -3)
	require.NoError(t, err)

	data, err := json.Marshal(pos)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":2.5,"z":-3}`, string(data))
}
