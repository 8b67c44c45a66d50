package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

func TestReplayBatches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	require.NoError(t, s.WriteBatch(ctx, "s1", 3, testBatch()))
	require.NoError(t, s.WriteBatch(ctx, "s1", 5, engine.Batch{{Key: 102, Value: ir.ErrorCode(ir.ErrNA), Seq: 4}}))

	batches, err := s.ReplayBatches(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, testBatch(), batches[0].Batch)
	assert.Equal(t, int64(5), batches[1].DrainSeq)
	assert.Equal(t, ir.ErrorCode(ir.ErrNA), batches[1].Batch[0].Value)
}

func TestVerifySession_Clean(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	require.NoError(t, s.WriteBatch(ctx, "s1", 3, testBatch()))

	mismatches, err := s.VerifySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestVerifySession_DetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	require.NoError(t, s.WriteBatch(ctx, "s1", 3, testBatch()))

	_, err := s.db.Exec(`UPDATE deliveries SET value = '{"kind":"int","value":7}' WHERE position = 1`)
	require.NoError(t, err)

	mismatches, err := s.VerifySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, int64(3), mismatches[0].DrainSeq)
	assert.NotEqual(t, mismatches[0].Want, mismatches[0].Got)
}

func TestGetSessionState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	for _, ev := range []TopicEvent{
		{SessionID: "s1", Seq: 1, Kind: EventSubscribe, Key: 102},
		{SessionID: "s1", Seq: 2, Kind: EventSubscribe, Key: 101},
		{SessionID: "s1", Seq: 3, Kind: EventSubscribe, Key: 7},
		{SessionID: "s1", Seq: 4, Kind: EventUnsubscribe, Key: 7},
	} {
		require.NoError(t, s.WriteTopicEvent(ctx, ev))
	}
	require.NoError(t, s.WriteBatch(ctx, "s1", 5, testBatch()))
	require.NoError(t, s.WriteBatch(ctx, "s1", 7, engine.Batch{{Key: 101, Value: ir.Text("Value2"), Seq: 6}}))

	state, err := s.GetSessionState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", state.Session.ID)
	assert.Len(t, state.Events, 4)
	assert.Equal(t, []int32{101, 102}, state.Subscribed)
	assert.Equal(t, ir.Text("Value2"), state.Latest[101])
	assert.Equal(t, ir.Real(123.45), state.Latest[102])
	assert.Empty(t, state.Mismatches)
}

func TestGetSessionState_Unknown(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetSessionState(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
