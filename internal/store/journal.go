package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

// defaultWriteTimeout bounds each journal write.
const defaultWriteTimeout = 5 * time.Second

// Journal records engine events in a Store. It implements engine.Observer.
//
// Write failures are logged and otherwise ignored: the journal never fails
// or blocks an engine operation beyond one bounded write.
type Journal struct {
	store   *Store
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	seqs map[string]int64 // next topic event seq per session
}

var _ engine.Observer = (*Journal)(nil)

// NewJournal creates a journal over s. A nil logger uses slog.Default().
func NewJournal(s *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:   s,
		logger:  logger,
		timeout: defaultWriteTimeout,
		seqs:    make(map[string]int64),
	}
}

func (j *Journal) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), j.timeout)
}

func (j *Journal) nextSeq(engineID string) int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seqs[engineID]++
	return j.seqs[engineID]
}

// SessionStarted journals a new session.
func (j *Journal) SessionStarted(engineID string) {
	ctx, cancel := j.context()
	defer cancel()
	err := j.store.WriteSession(ctx, Session{
		ID:            engineID,
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	})
	if err != nil {
		j.logger.Error("journal session failed", "engine_id", engineID, "error", err)
	}
}

// TopicSubscribed journals a subscribe event.
func (j *Journal) TopicSubscribed(engineID string, key int32, args []string) {
	j.topicEvent(engineID, EventSubscribe, key, args)
}

// TopicUnsubscribed journals an unsubscribe event.
func (j *Journal) TopicUnsubscribed(engineID string, key int32) {
	j.topicEvent(engineID, EventUnsubscribe, key, nil)
}

func (j *Journal) topicEvent(engineID string, kind TopicEventKind, key int32, args []string) {
	ctx, cancel := j.context()
	defer cancel()
	err := j.store.WriteTopicEvent(ctx, TopicEvent{
		SessionID: engineID,
		Seq:       j.nextSeq(engineID),
		Kind:      kind,
		Key:       key,
		Args:      args,
	})
	if err != nil {
		j.logger.Error("journal topic event failed", "engine_id", engineID, "topic_key", key, "kind", kind, "error", err)
	}
}

// BatchDrained journals a delivered batch.
func (j *Journal) BatchDrained(engineID string, drainSeq int64, batch engine.Batch) {
	ctx, cancel := j.context()
	defer cancel()
	if err := j.store.WriteBatch(ctx, engineID, drainSeq, batch); err != nil {
		j.logger.Error("journal batch failed", "engine_id", engineID, "drain_seq", drainSeq, "batch_size", batch.Len(), "error", err)
	}
}

// SessionEnded marks the session ended.
func (j *Journal) SessionEnded(engineID string) {
	ctx, cancel := j.context()
	defer cancel()
	if err := j.store.EndSession(ctx, engineID); err != nil {
		j.logger.Error("journal session end failed", "engine_id", engineID, "error", err)
	}
	j.mu.Lock()
	delete(j.seqs, engineID)
	j.mu.Unlock()
}
