package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

// ReplayedBatch is a drain rebuilt from the journal.
type ReplayedBatch struct {
	DrainSeq int64
	Batch    engine.Batch
	Digest   string // as journalled
}

// DigestMismatch reports a batch whose deliveries no longer match the
// digest journalled with it.
type DigestMismatch struct {
	DrainSeq int64  `json:"drain_seq"`
	Want     string `json:"want"` // journalled digest
	Got      string `json:"got"`  // recomputed; empty if the deliveries are gone
}

// SessionState is a session rebuilt from the journal.
type SessionState struct {
	Session    Session
	Events     []TopicEvent
	Batches    []ReplayedBatch
	Subscribed []int32            // keys subscribed at the end of the journal, ascending
	Latest     map[int32]ir.Value // last delivered value per key
	Mismatches []DigestMismatch
}

// ReplayBatches rebuilds every journalled drain of a session, in drain order.
func (s *Store) ReplayBatches(ctx context.Context, sessionID string) ([]ReplayedBatch, error) {
	headers, err := s.ReadBatches(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay batches: %w", err)
	}
	deliveries, err := s.ReadDeliveries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay batches: %w", err)
	}

	byDrain := make(map[int64]engine.Batch, len(headers))
	for _, d := range deliveries {
		byDrain[d.DrainSeq] = append(byDrain[d.DrainSeq], engine.Entry{
			Key:   d.Key,
			Value: d.Value,
			Seq:   d.UpdateSeq,
		})
	}

	out := make([]ReplayedBatch, 0, len(headers))
	for _, h := range headers {
		out = append(out, ReplayedBatch{
			DrainSeq: h.DrainSeq,
			Batch:    byDrain[h.DrainSeq],
			Digest:   h.Digest,
		})
	}
	return out, nil
}

// VerifySession recomputes every batch digest from the stored deliveries
// and returns the batches that no longer match.
func (s *Store) VerifySession(ctx context.Context, sessionID string) ([]DigestMismatch, error) {
	batches, err := s.ReplayBatches(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return verify(batches)
}

func verify(batches []ReplayedBatch) ([]DigestMismatch, error) {
	var mismatches []DigestMismatch
	for _, b := range batches {
		got := ""
		if b.Batch.Len() > 0 {
			d, err := BatchDigest(b.Batch)
			if err != nil {
				return nil, fmt.Errorf("verify batch %d: %w", b.DrainSeq, err)
			}
			got = d
		}
		if got != b.Digest {
			mismatches = append(mismatches, DigestMismatch{DrainSeq: b.DrainSeq, Want: b.Digest, Got: got})
		}
	}
	return mismatches, nil
}

// GetSessionState rebuilds a session: its subscription history, its
// drains, the topics still subscribed, and the last value delivered for
// each topic.
func (s *Store) GetSessionState(ctx context.Context, sessionID string) (SessionState, error) {
	var state SessionState

	sess, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}
	state.Session = sess

	if state.Events, err = s.ReadTopicEvents(ctx, sessionID); err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}
	if state.Batches, err = s.ReplayBatches(ctx, sessionID); err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}
	if state.Mismatches, err = verify(state.Batches); err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}

	live := make(map[int32]bool)
	for _, ev := range state.Events {
		switch ev.Kind {
		case EventSubscribe:
			live[ev.Key] = true
		case EventUnsubscribe:
			delete(live, ev.Key)
		}
	}
	state.Subscribed = make([]int32, 0, len(live))
	for k := range live {
		state.Subscribed = append(state.Subscribed, k)
	}
	slices.Sort(state.Subscribed)

	state.Latest = make(map[int32]ir.Value)
	for _, b := range state.Batches {
		for _, e := range b.Batch {
			state.Latest[e.Key] = e.Value
		}
	}
	return state, nil
}
