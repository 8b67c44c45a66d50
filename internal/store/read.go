package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID is not in the journal.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns one session.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var ended int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, engine_version, format_version, ended
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.EngineVersion, &sess.FormatVersion, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	sess.Ended = ended == 1
	return sess, nil
}

// ReadSessions returns every session ordered by ID. Instance IDs are
// UUIDv7, so this is creation order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, engine_version, format_version, ended
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var ended int
		if err := rows.Scan(&sess.ID, &sess.EngineVersion, &sess.FormatVersion, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Ended = ended == 1
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadTopicEvents returns a session's subscription changes ordered by seq.
func (s *Store) ReadTopicEvents(ctx context.Context, sessionID string) ([]TopicEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, topic_key, args
		FROM topic_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query topic events: %w", err)
	}
	defer rows.Close()

	events := []TopicEvent{}
	for rows.Next() {
		var ev TopicEvent
		var kind, args string
		if err := rows.Scan(&ev.SessionID, &ev.Seq, &kind, &ev.Key, &args); err != nil {
			return nil, fmt.Errorf("scan topic event: %w", err)
		}
		ev.Kind = TopicEventKind(kind)
		if ev.Args, err = unmarshalArgs(args); err != nil {
			return nil, fmt.Errorf("topic event %d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic events: %w", err)
	}
	return events, nil
}

// ReadBatches returns a session's batch headers ordered by drain seq.
func (s *Store) ReadBatches(ctx context.Context, sessionID string) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, drain_seq, size, digest
		FROM batches
		WHERE session_id = ?
		ORDER BY drain_seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := []BatchRecord{}
	for rows.Next() {
		var b BatchRecord
		if err := rows.Scan(&b.SessionID, &b.DrainSeq, &b.Size, &b.Digest); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// ReadDeliveries returns every delivered entry of a session ordered by
// (drain_seq, position).
func (s *Store) ReadDeliveries(ctx context.Context, sessionID string) ([]Delivery, error) {
	return s.readDeliveries(ctx, `
		SELECT session_id, drain_seq, position, topic_key, value, update_seq
		FROM deliveries
		WHERE session_id = ?
		ORDER BY drain_seq ASC, position ASC
	`, sessionID)
}

// ReadTopicHistory returns the values delivered for one topic, oldest first.
func (s *Store) ReadTopicHistory(ctx context.Context, sessionID string, key int32) ([]Delivery, error) {
	return s.readDeliveries(ctx, `
		SELECT session_id, drain_seq, position, topic_key, value, update_seq
		FROM deliveries
		WHERE session_id = ? AND topic_key = ?
		ORDER BY drain_seq ASC, position ASC
	`, sessionID, key)
}

func (s *Store) readDeliveries(ctx context.Context, query string, args ...any) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		var value string
		if err := rows.Scan(&d.SessionID, &d.DrainSeq, &d.Position, &d.Key, &value, &d.UpdateSeq); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if d.Value, err = unmarshalValue(value); err != nil {
			return nil, fmt.Errorf("delivery %d/%d: %w", d.DrainSeq, d.Position, err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}
