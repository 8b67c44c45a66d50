package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an engine with an isolated lifecycle counter and a
// silent logger. Extra options are applied last.
func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *LifecycleCounter) {
	t.Helper()
	lc := NewLifecycleCounter()
	base := []EngineOption{
		WithLifecycle(lc),
		WithLogger(discardLogger()),
		WithIDGenerator(NewFixedGenerator("engine-test")),
	}
	return New(append(base, opts...)...), lc
}

// fakeClock is a settable wall clock for pending-since tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver captures observer events for assertions.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
	drains []Batch
}

func (o *recordingObserver) record(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) SessionStarted(string) { o.record("start") }
func (o *recordingObserver) TopicSubscribed(_ string, key int32, _ []string) {
	o.record("sub")
}
func (o *recordingObserver) TopicUnsubscribed(string, int32) { o.record("unsub") }
func (o *recordingObserver) BatchDrained(_ string, _ int64, b Batch) {
	o.mu.Lock()
	o.drains = append(o.drains, b)
	o.mu.Unlock()
	o.record("drain")
}
func (o *recordingObserver) SessionEnded(string) { o.record("end") }

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}
