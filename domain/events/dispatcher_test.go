package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "graphscape/pkg/errors"
)

func TestDispatcher_OrderAndUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var seen []string

	unsubA := d.Subscribe(func(e GraphEvent) error {
		seen = append(seen, "a:"+e.GetEventType())
		return nil
	})
	d.Subscribe(func(e GraphEvent) error {
		seen = append(seen, "b:"+e.GetEventType())
		return nil
	})

	require.NoError(t, d.Publish(
		NewNodeRemoved("g", 1, "A"),
		NewConfidenceReported("g", 2, 0.8),
	))
	assert.Equal(t, []string{
		"a:node.removed", "b:node.removed",
		"a:confidence.reported", "b:confidence.reported",
	}, seen)

	unsubA()
	unsubA()
	assert.Equal(t, 1, d.Len())

	seen = nil
	require.NoError(t, d.Publish(NewNodeRemoved("g", 3, "B")))
	assert.Equal(t, []string{"b:node.removed"}, seen)
}

func TestDispatcher_JoinsHandlerErrors(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	calls := 0

	d.Subscribe(func(GraphEvent) error { return boom })
	d.Subscribe(func(GraphEvent) error {
		calls++
		return nil
	})

	err := d.Publish(NewNodeRemoved("g", 1, "A"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "later handlers still run after a failure")
}

func TestCompletionReason_IsSuccess(t *testing.T) {
	assert.True(t, CompletionFinal.IsSuccess())
	assert.True(t, CompletionClosed.IsSuccess())
	assert.False(t, CompletionCancelled.IsSuccess())
	assert.False(t, CompletionFailed.IsSuccess())
}

func TestWarning_Err(t *testing.T) {
	tests := []struct {
		name        string
		warning     Warning
		wantDetails map[string]interface{}
	}{
		{"with entity", Warning{Kind: WarningNodeCollision, Message: "node id collision", EntityID: "A"}, map[string]interface{}{"entityId": "A"}},
		{"upstream", Warning{Kind: WarningUpstream, Message: "model is unsure"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.warning.Err()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeReconciliationWarning))
			assert.False(t, pkgerrors.IsFatal(err))

			appErr := pkgerrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.warning.Message, appErr.Message)
			assert.Equal(t, string(tt.warning.Kind), appErr.Code)
			assert.Equal(t, tt.wantDetails, appErr.Details)
		})
	}
}
