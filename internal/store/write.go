package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xll-gen/rtd/internal/engine"
)

// ErrEmptyBatch is returned when asked to journal a batch with no entries.
var ErrEmptyBatch = errors.New("empty batch")

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, engine_version, format_version)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.EngineVersion, sess.FormatVersion)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// EndSession marks a session as ended. Unknown sessions are ignored.
func (s *Store) EndSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// WriteTopicEvent inserts a subscription change.
// Uses ON CONFLICT(session_id, seq) DO NOTHING for idempotency.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteTopicEvent(ctx context.Context, ev TopicEvent) error {
	args, err := marshalArgs(ev.Args)
	if err != nil {
		return fmt.Errorf("write topic event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO topic_events (session_id, seq, kind, topic_key, args)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, ev.SessionID, ev.Seq, string(ev.Kind), ev.Key, args)
	if err != nil {
		return fmt.Errorf("write topic event: %w", err)
	}
	return nil
}

// WriteBatch journals one drain: a header row with the batch digest and one
// delivery row per entry, in a single transaction. Writing the same drain
// twice is a no-op.
func (s *Store) WriteBatch(ctx context.Context, sessionID string, drainSeq int64, batch engine.Batch) error {
	if batch.Len() == 0 {
		return fmt.Errorf("write batch %d: %w", drainSeq, ErrEmptyBatch)
	}

	digest, err := BatchDigest(batch)
	if err != nil {
		return fmt.Errorf("write batch %d: %w", drainSeq, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write batch %d: begin tx: %w", drainSeq, err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO batches (session_id, drain_seq, size, digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, drain_seq) DO NOTHING
	`, sessionID, drainSeq, batch.Len(), digest)
	if err != nil {
		return fmt.Errorf("write batch %d: %w", drainSeq, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already journalled.
		return nil
	}

	for pos, e := range batch {
		value, err := marshalValue(e.Value)
		if err != nil {
			return fmt.Errorf("write batch %d position %d: %w", drainSeq, pos, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deliveries (session_id, drain_seq, position, topic_key, value, update_seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, drain_seq, position) DO NOTHING
		`, sessionID, drainSeq, pos, e.Key, value, e.Seq)
		if err != nil {
			return fmt.Errorf("write batch %d position %d: %w", drainSeq, pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write batch %d: commit: %w", drainSeq, err)
	}
	return nil
}
