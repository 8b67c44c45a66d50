package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/xll-gen/rtd/internal/ir"
)

// topic is one subscription. Fields are guarded by Registry.mu.
type topic struct {
	key     int32
	ordinal uint64 // subscription order, assigned once
	args    []string
	value   ir.Value
	seq     int64
	dirty   bool
	queued  bool // present in Registry.dirty
	removed bool

	// pendingSince is set on subscribe and cleared by the first update or
	// by a producer claiming the topic. Zero means not pending.
	pendingSince time.Time
}

// Pending describes a subscribed topic a producer has claimed for work.
type Pending struct {
	Key  int32
	Args []string
	// Since is when the topic was subscribed (or last claimed).
	Since time.Time
}

// Registry maps topic keys to values and tracks which topics are dirty.
//
// The dirty list holds topic pointers appended on the clean -> dirty
// transition, so Drain touches only topics that changed. Unsubscribe marks
// the topic removed instead of searching the list; Drain skips removed
// entries.
//
// Thread-safety: all methods are safe for concurrent use; they serialize on
// a single mutex and never call out while holding it.
type Registry struct {
	mu      sync.Mutex
	topics  map[int32]*topic
	dirty   []*topic
	ordinal uint64
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[int32]*topic),
	}
}

// Subscribe registers key and returns the placeholder value.
//
// Subscribing an existing key redefines it in place: it keeps its position
// in drain order, takes the new args, resets to the placeholder, drops any
// undrained update and becomes pending again. Subscribe never returns data.
// After Close it only returns the placeholder and reports false.
func (r *Registry) Subscribe(key int32, args []string, now time.Time) (ir.Value, bool) {
	placeholder := ir.Placeholder()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return placeholder, false
	}

	t, ok := r.topics[key]
	if !ok {
		r.ordinal++
		t = &topic{key: key, ordinal: r.ordinal}
		r.topics[key] = t
	}
	t.args = slices.Clone(args)
	t.value = placeholder
	t.seq = 0
	t.dirty = false
	t.pendingSince = now
	return placeholder, true
}

// Unsubscribe removes key from the value map and from dirty and pending
// tracking. Returns false if key was not subscribed.
func (r *Registry) Unsubscribe(key int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[key]
	if !ok {
		return false
	}
	delete(r.topics, key)
	t.removed = true
	t.dirty = false
	t.pendingSince = time.Time{}
	return true
}

// Update sets the value of a subscribed topic and marks it dirty.
// Returns false, without inserting, if key is not subscribed or the
// registry is closed.
func (r *Registry) Update(key int32, v ir.Value, seq int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	t, ok := r.topics[key]
	if !ok {
		return false
	}
	t.value = v
	t.seq = seq
	t.dirty = true
	t.pendingSince = time.Time{}
	if !t.queued {
		t.queued = true
		r.dirty = append(r.dirty, t)
	}
	return true
}

// Drain returns every dirty topic in subscription order and clears the
// dirty flags, all in one critical section. Returns nil when nothing is
// dirty. Drained topics stay subscribed.
func (r *Registry) Drain() Batch {
	batch, _ := r.DrainWith(nil)
	return batch
}

// DrainWith is Drain that also takes the drain's sequence number from clock
// in the same critical section, so drain seqs follow extraction order.
// The seq is 0 when nothing was drained or clock is nil.
func (r *Registry) DrainWith(clock *Clock) (Batch, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.dirty) == 0 {
		return nil, 0
	}

	live := make([]*topic, 0, len(r.dirty))
	for _, t := range r.dirty {
		t.queued = false
		if t.removed || !t.dirty {
			continue
		}
		t.dirty = false
		live = append(live, t)
	}
	clear(r.dirty)
	r.dirty = r.dirty[:0]

	if len(live) == 0 {
		return nil, 0
	}

	slices.SortFunc(live, func(a, b *topic) int {
		switch {
		case a.ordinal < b.ordinal:
			return -1
		case a.ordinal > b.ordinal:
			return 1
		}
		return 0
	})

	batch := make(Batch, len(live))
	for i, t := range live {
		batch[i] = Entry{Key: t.key, Value: t.value, Seq: t.seq}
	}
	var seq int64
	if clock != nil {
		seq = clock.Next()
	}
	return batch, seq
}

// ClaimDue returns topics that have been pending for at least delay and
// clears their pending mark, so each subscription is claimed once. Results
// are in subscription order.
func (r *Registry) ClaimDue(now time.Time, delay time.Duration) []Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	var due []*topic
	for _, t := range r.topics {
		if t.pendingSince.IsZero() || now.Sub(t.pendingSince) < delay {
			continue
		}
		due = append(due, t)
	}
	slices.SortFunc(due, func(a, b *topic) int {
		if a.ordinal < b.ordinal {
			return -1
		}
		return 1
	})

	out := make([]Pending, len(due))
	for i, t := range due {
		out[i] = Pending{Key: t.key, Args: slices.Clone(t.args), Since: t.pendingSince}
		t.pendingSince = time.Time{}
	}
	return out
}

// Topics returns every subscribed topic in subscription order, with its
// args. Producers that refresh all topics periodically use this.
func (r *Registry) Topics() []Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*topic, 0, len(r.topics))
	for _, t := range r.topics {
		all = append(all, t)
	}
	slices.SortFunc(all, func(a, b *topic) int {
		if a.ordinal < b.ordinal {
			return -1
		}
		return 1
	})

	out := make([]Pending, len(all))
	for i, t := range all {
		out[i] = Pending{Key: t.key, Args: slices.Clone(t.args), Since: t.pendingSince}
	}
	return out
}

// Lookup returns the current value of key.
func (r *Registry) Lookup(key int32) (ir.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[key]
	if !ok {
		return nil, false
	}
	return t.value, true
}

// Len returns the number of subscribed topics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// DirtyLen returns the number of topics waiting to be drained.
func (r *Registry) DirtyLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.dirty {
		if !t.removed && t.dirty {
			n++
		}
	}
	return n
}

// Close stops accepting subscriptions and updates. Existing topics are
// dropped. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, t := range r.topics {
		t.removed = true
	}
	clear(r.topics)
	clear(r.dirty)
	r.dirty = r.dirty[:0]
}
