package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "graphscape/pkg/errors"
)

type sample struct {
	Name  string   `validate:"required"`
	Mode  string   `validate:"oneof=fast slow"`
	Count int      `validate:"gte=1,lte=3"`
	Tags  []string `validate:"max=2"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   sample
		wantErr bool
		errMsg  string
	}{
		{name: "valid", input: sample{Name: "a", Mode: "fast", Count: 2}},
		{name: "missing name", input: sample{Mode: "fast", Count: 1}, wantErr: true, errMsg: "name is required"},
		{name: "bad mode", input: sample{Name: "a", Mode: "medium", Count: 1}, wantErr: true, errMsg: "mode must be one of: fast slow"},
		{name: "count too high", input: sample{Name: "a", Mode: "slow", Count: 9}, wantErr: true, errMsg: "count must be at most 3"},
		{name: "too many tags", input: sample{Name: "a", Mode: "slow", Count: 1, Tags: []string{"x", "y", "z"}}, wantErr: true, errMsg: "tags must be at most 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
