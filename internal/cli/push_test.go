package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

func TestPushUpdates_SkipsMalformedLines(t *testing.T) {
	p := engine.NewFeedProducer(discardLogger())

	n, err := pushUpdates(context.Background(), strings.NewReader(pushStream), p, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, n, "unknown keys are queued; the engine drops them")
	assert.Equal(t, 3, p.Pending())
}

func TestPushUpdates_StopsWhenCancelled(t *testing.T) {
	p := engine.NewFeedProducer(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := pushUpdates(ctx, strings.NewReader(pushStream), p, discardLogger())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, p.Pending())
}

func TestDecodePushUpdate(t *testing.T) {
	u, err := decodePushUpdate([]byte(`{"key":7,"value":{"kind":"error","value":2042}}`))
	require.NoError(t, err)
	assert.Equal(t, engine.Update{Key: 7, Value: ir.ErrNA}, u)

	tests := []struct {
		name string
		line string
		want string
	}{
		{"not json", `key=7`, "decode update"},
		{"missing value", `{"key":7}`, "update value is required"},
		{"bad kind", `{"key":7,"value":{"kind":"blob"}}`, "topic 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodePushUpdate([]byte(tt.line))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
