package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/petermattis/goid"

	"github.com/xll-gen/rtd/internal/ir"
)

// Producer computes topic values on its own goroutines.
//
// Contract:
//   - Only the Source passed to Start is used to touch engine state
//   - Notify is never called while holding a lock the engine might need
//   - Stop is cooperative: it signals, then waits for every goroutine the
//     producer started. Stop is idempotent.
type Producer interface {
	Start(src Source) error
	Stop()
}

// Source is the engine surface a producer may use.
type Source interface {
	// UpdateTopic stores a value; false means the topic is not subscribed.
	UpdateTopic(key int32, v ir.Value) bool
	// Notify signals the host once for a batch of updates.
	Notify() error
	// ClaimDue returns topics pending for at least delay and clears their
	// pending mark.
	ClaimDue(delay time.Duration) []Pending
	// Topics returns every subscribed topic in subscription order.
	Topics() []Pending
}

// Producer start errors.
var (
	ErrProducerRunning = errors.New("producer already running")
	ErrProducerStopped = errors.New("producer stopped")
)

// producerSource is the Source handed to the engine's producer.
type producerSource struct {
	e *Engine
}

func (s producerSource) UpdateTopic(key int32, v ir.Value) bool {
	return s.e.UpdateTopic(key, v)
}

func (s producerSource) Notify() error {
	gid := goid.Get()
	s.e.enterNotify(gid)
	defer s.e.leaveNotify(gid)
	return s.e.Notify()
}

func (s producerSource) ClaimDue(delay time.Duration) []Pending {
	return s.e.registry.ClaimDue(s.e.now(), delay)
}

func (s producerSource) Topics() []Pending {
	return s.e.registry.Topics()
}

// ValueFunc computes the value for a topic. n is the number of values
// already produced for that subscription (0 on the first call).
type ValueFunc func(p Pending, n int) ir.Value

// DefaultDelay is how long a new subscription waits before its first value.
const DefaultDelay = 2 * time.Second

// DelayedProducer gives every new subscription a value once it has been
// pending for Delay, then optionally refreshes it every Interval.
//
// One notification is raised per tick in which anything changed.
type DelayedProducer struct {
	delay    time.Duration
	interval time.Duration
	tick     time.Duration
	values   ValueFunc
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// ProducerOption configures a DelayedProducer.
type ProducerOption func(*DelayedProducer)

// WithInterval refreshes topics every d after their first value.
// Zero (the default) produces a single value per subscription.
func WithInterval(d time.Duration) ProducerOption {
	return func(p *DelayedProducer) {
		p.interval = d
	}
}

// WithTick sets how often the producer looks for due topics.
// Default: a quarter of the delay, at least 10ms.
func WithTick(d time.Duration) ProducerOption {
	return func(p *DelayedProducer) {
		p.tick = d
	}
}

// WithValues sets the value function. Default: Text("Ready").
func WithValues(f ValueFunc) ProducerOption {
	return func(p *DelayedProducer) {
		p.values = f
	}
}

// WithProducerLogger sets the logger. Default: slog.Default().
func WithProducerLogger(l *slog.Logger) ProducerOption {
	return func(p *DelayedProducer) {
		p.logger = l
	}
}

// NewDelayedProducer creates a producer with the given first-value delay.
// A non-positive delay uses DefaultDelay.
func NewDelayedProducer(delay time.Duration, opts ...ProducerOption) *DelayedProducer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	p := &DelayedProducer{
		delay: delay,
		values: func(Pending, int) ir.Value {
			return ir.Text("Ready")
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tick <= 0 {
		p.tick = max(delay/4, 10*time.Millisecond)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Delay returns the first-value delay.
func (p *DelayedProducer) Delay() time.Duration {
	return p.delay
}

// Start launches the worker goroutine.
func (p *DelayedProducer) Start(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrProducerRunning
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.run(src, p.stopCh)
	return nil
}

// Stop signals the worker and waits for it to exit.
func (p *DelayedProducer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// repeat tracks a topic that is refreshed every interval.
type repeat struct {
	pending Pending
	next    time.Time
	n       int
}

func (p *DelayedProducer) run(src Source, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	repeats := make(map[int32]*repeat)
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			p.step(src, stop, now, repeats)
		}
	}
}

func (p *DelayedProducer) step(src Source, stop <-chan struct{}, now time.Time, repeats map[int32]*repeat) {
	changed := 0

	for _, t := range src.ClaimDue(p.delay) {
		if stopped(stop) {
			return
		}
		if !src.UpdateTopic(t.Key, p.values(t, 0)) {
			continue
		}
		changed++
		if p.interval > 0 {
			repeats[t.Key] = &repeat{pending: t, next: now.Add(p.interval), n: 1}
		}
	}

	for key, r := range repeats {
		if stopped(stop) {
			return
		}
		if now.Before(r.next) {
			continue
		}
		if !src.UpdateTopic(key, p.values(r.pending, r.n)) {
			// Unsubscribed.
			delete(repeats, key)
			continue
		}
		r.n++
		r.next = now.Add(p.interval)
		changed++
	}

	if changed == 0 {
		return
	}
	p.logger.Debug("producer tick", "updated", changed)
	if err := src.Notify(); err != nil {
		p.logger.Warn("notify failed", "error", err)
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// FeedProducer applies values pushed from other goroutines.
//
// Push never blocks. The worker takes everything queued since its last
// wakeup, applies it, and raises a single notification for the batch.
type FeedProducer struct {
	queue  *updateQueue
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewFeedProducer creates a feed producer. A nil logger uses slog.Default().
func NewFeedProducer(logger *slog.Logger) *FeedProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedProducer{
		queue:  newUpdateQueue(),
		logger: logger,
	}
}

// Push queues an update. Returns false once the producer has been stopped.
func (p *FeedProducer) Push(u Update) bool {
	return p.queue.Enqueue(u)
}

// Pending returns the number of queued updates.
func (p *FeedProducer) Pending() int {
	return p.queue.Len()
}

// Start launches the worker goroutine. A stopped FeedProducer cannot be
// restarted.
func (p *FeedProducer) Start(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProducerStopped
	}
	if p.running {
		return ErrProducerRunning
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.run(src, p.stopCh)
	return nil
}

// Stop signals the worker, waits for it and closes the queue.
// Updates still queued are discarded.
func (p *FeedProducer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.queue.Close()
}

func (p *FeedProducer) run(src Source, stop <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-p.queue.Wait():
		}

		applied := 0
		for _, u := range p.queue.TakeAll() {
			if stopped(stop) {
				return
			}
			if src.UpdateTopic(u.Key, u.Value) {
				applied++
			}
		}
		if applied == 0 {
			continue
		}
		if err := src.Notify(); err != nil {
			p.logger.Warn("notify failed", "error", err)
		}
	}
}
