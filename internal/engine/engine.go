package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	"github.com/xll-gen/rtd/internal/ir"
)

// State is the engine lifecycle state.
type State int32

const (
	StateConstructed State = iota
	StateStarted
	StateTerminated
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateStarted:
		return "started"
	case StateTerminated:
		return "terminated"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Engine is one topic update engine instance.
//
// Thread-safety model:
//   - Subscribe, Unsubscribe, UpdateTopic, Drain: any goroutine; serialized
//     by the registry mutex
//   - Notify: any goroutine; the host callback runs without engine locks held
//   - Retain, Release: any goroutine, including inside the host callback
//   - Start, Terminate: any goroutine; Terminate waits for the producer
//     unless called from inside one of the producer's notifications
//
// INVARIANTS:
//   - The engine holds at most one claim on one callback at a time
//   - The producer is stopped before the callback is released
//   - The lifecycle counter is decremented exactly once, after the
//     producer has been joined
type Engine struct {
	id        string
	registry  *Registry
	notifier  notifier
	clock     *Clock
	lifecycle *LifecycleCounter
	producer  Producer
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	idGen     IDGenerator

	refs atomic.Int64

	mu    sync.Mutex // guards state
	state State

	prodMu          sync.Mutex // guards producerRunning, producerDone; never held across Stop
	producerRunning bool
	producerDone    chan struct{} // closed once the stopped producer is joined

	// notifying maps goroutine IDs to producer Notify calls still in flight
	// on them. Teardown reached on such a goroutine cannot join the
	// producer synchronously.
	notifyMu  sync.Mutex
	notifying map[int64]int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLifecycle sets the instance counter. Default: ProcessLifecycle().
func WithLifecycle(c *LifecycleCounter) EngineOption {
	return func(e *Engine) {
		e.lifecycle = c
	}
}

// WithProducer attaches a background producer. It is started by the first
// Start and stopped by Terminate.
func WithProducer(p Producer) EngineOption {
	return func(e *Engine) {
		e.producer = p
	}
}

// WithObserver attaches an observer, typically a journal.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the update clock. Default: NewClock(). Engines given the
// same clock share one sequence.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the instance ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.idGen = g
	}
}

// WithNow sets the wall clock used for pending-since timestamps.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine holding one reference and registers it with the
// lifecycle counter.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		registry: NewRegistry(),
		clock:    NewClock(),
		observer: nopObserver{},
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.lifecycle == nil {
		e.lifecycle = ProcessLifecycle()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.idGen == nil {
		e.idGen = UUIDv7Generator{}
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}

	e.id = e.idGen.Generate()
	e.logger = e.logger.With("engine_id", e.id)
	e.refs.Store(1)
	live := e.lifecycle.Acquire()

	e.logger.Debug("engine constructed", "live_instances", live)
	e.observer.SessionStarted(e.id)
	return e
}

// ID returns the instance ID.
func (e *Engine) ID() string {
	return e.id
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Clock returns the update clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Start registers cb as the notification target, replacing any previous
// callback, and starts the producer on first use.
//
// A nil callback is an invalid argument and changes nothing. After Terminate,
// Start is a no-op that reports success.
func (e *Engine) Start(cb Callback) error {
	if cb == nil {
		err := NewInvalidArgumentError("callback is nil")
		err.EngineID = e.id
		return err
	}

	e.mu.Lock()
	if e.state >= StateTerminated {
		state := e.state
		e.mu.Unlock()
		e.logger.Debug("start ignored", "state", state)
		return nil
	}
	e.state = StateStarted
	e.mu.Unlock()

	e.notifier.register(cb)
	e.logger.Info("engine started")

	return e.startProducer()
}

func (e *Engine) startProducer() error {
	e.prodMu.Lock()
	defer e.prodMu.Unlock()

	if e.producer == nil || e.producerRunning || e.State() >= StateTerminated {
		return nil
	}
	if err := e.producer.Start(producerSource{e}); err != nil {
		return fmt.Errorf("start producer: %w", err)
	}
	e.producerRunning = true
	e.logger.Debug("producer started")
	return nil
}

// Subscribe registers key (with optional topic args) and returns the
// placeholder value. It never returns data; values arrive through Drain.
func (e *Engine) Subscribe(key int32, args ...string) ir.Value {
	v, ok := e.registry.Subscribe(key, args, e.now())
	if !ok {
		e.logger.Debug("subscribe ignored after terminate", "topic_key", key)
		return v
	}
	e.logger.Debug("topic subscribed", "topic_key", key, "args", args)
	e.observer.TopicSubscribed(e.id, key, args)
	return v
}

// Unsubscribe removes key. Unknown keys are a no-op.
func (e *Engine) Unsubscribe(key int32) {
	if !e.registry.Unsubscribe(key) {
		e.logger.Debug("unsubscribe of unknown topic", "topic_key", key)
		return
	}
	e.logger.Debug("topic unsubscribed", "topic_key", key)
	e.observer.TopicUnsubscribed(e.id, key)
}

// UpdateTopic stores v for key and marks it dirty. It reports whether the
// topic was subscribed; updates for unknown topics are dropped. A nil v is
// stored as ir.Absent.
func (e *Engine) UpdateTopic(key int32, v ir.Value) bool {
	if v == nil {
		v = ir.Absent{}
	}
	return e.registry.Update(key, v, e.clock.Next())
}

// Notify signals the host that data is waiting. The callback runs with no
// engine lock held. Returns the callback's error, if any. Without a
// registered callback Notify does nothing.
func (e *Engine) Notify() error {
	delivered, err := e.notifier.notify()
	if err != nil {
		e.logger.Warn("update notification failed", "error", err)
		return err
	}
	if !delivered {
		e.logger.Debug("notify without callback")
	}
	return nil
}

// Drain returns every topic updated since the previous drain, in
// subscription order, and marks them clean. Returns nil if nothing changed.
func (e *Engine) Drain() Batch {
	batch, seq := e.registry.DrainWith(e.clock)
	if batch.Len() == 0 {
		return nil
	}
	e.logger.Debug("batch drained", "batch_size", batch.Len(), "drain_seq", seq)
	e.observer.BatchDrained(e.id, seq, batch)
	return batch
}

// Lookup returns the current value of a subscribed topic without draining.
func (e *Engine) Lookup(key int32) (ir.Value, bool) {
	return e.registry.Lookup(key)
}

// Len returns the number of subscribed topics.
func (e *Engine) Len() int {
	return e.registry.Len()
}

// Heartbeat reports whether the engine is started and not terminated.
func (e *Engine) Heartbeat() bool {
	return e.State() == StateStarted
}

// Terminate stops the producer, releases the callback and drops every
// subscription. Safe to call more than once and before Start.
func (e *Engine) Terminate() {
	e.mu.Lock()
	if e.state >= StateTerminated {
		e.mu.Unlock()
		return
	}
	e.state = StateTerminated
	e.mu.Unlock()

	e.stopProducer()
	e.notifier.unregister()
	e.registry.Close()
	e.observer.SessionEnded(e.id)
	e.logger.Info("engine terminated")
}

func (e *Engine) stopProducer() {
	e.prodMu.Lock()
	running := e.producerRunning
	e.producerRunning = false
	var done chan struct{}
	if running {
		done = make(chan struct{})
		e.producerDone = done
	}
	e.prodMu.Unlock()

	if !running {
		return
	}
	if e.onProducerGoroutine() {
		// Joining here would wait on ourselves. Every Source call is a
		// no-op from now on; destroy waits on done.
		go func() {
			e.producer.Stop()
			close(done)
			e.logger.Debug("producer stopped")
		}()
		e.logger.Debug("producer stop deferred")
		return
	}
	e.producer.Stop()
	close(done)
	e.logger.Debug("producer stopped")
}

func (e *Engine) enterNotify(gid int64) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if e.notifying == nil {
		e.notifying = make(map[int64]int)
	}
	e.notifying[gid]++
}

func (e *Engine) leaveNotify(gid int64) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if e.notifying[gid]--; e.notifying[gid] <= 0 {
		delete(e.notifying, gid)
	}
}

// onProducerGoroutine reports whether the caller is inside a Notify made by
// the producer.
func (e *Engine) onProducerGoroutine() bool {
	gid := goid.Get()
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	return e.notifying[gid] > 0
}

// Retain adds a reference and returns the new count. A destroyed engine
// cannot be revived; Retain then returns 0.
func (e *Engine) Retain() int64 {
	for {
		n := e.refs.Load()
		if n <= 0 {
			e.logger.Warn("retain on destroyed engine")
			return 0
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return n + 1
		}
	}
}

// Release drops a reference and returns the new count. The release that
// reaches zero destroys the engine. Extra releases are ignored.
func (e *Engine) Release() int64 {
	for {
		n := e.refs.Load()
		if n <= 0 {
			e.logger.Warn("release on destroyed engine")
			return 0
		}
		if e.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				e.destroy()
			}
			return n - 1
		}
	}
}

// Refs returns the current reference count.
func (e *Engine) Refs() int64 {
	return e.refs.Load()
}

// destroy completes only once the producer has been joined. When the last
// release happens inside the producer's own notification, the remainder runs
// on a separate goroutine after the producer exits.
func (e *Engine) destroy() {
	e.Terminate()
	// A Start racing with Terminate can register after the unregister above.
	e.notifier.unregister()

	e.prodMu.Lock()
	done := e.producerDone
	e.prodMu.Unlock()

	if done != nil && e.onProducerGoroutine() {
		go func() {
			<-done
			e.finishDestroy()
		}()
		return
	}
	if done != nil {
		<-done
	}
	e.finishDestroy()
}

func (e *Engine) finishDestroy() {
	e.mu.Lock()
	e.state = StateDestroyed
	e.mu.Unlock()

	live := e.lifecycle.Release()
	e.logger.Debug("engine destroyed", "live_instances", live)
}
