package engine

import "sync/atomic"

// LifecycleCounter counts live engine instances in a process.
//
// It counts instances, not references: construction adds one and final
// destruction removes one, no matter how many Retain/Release calls happen in
// between. A host may unload the module only while the count is zero.
//
// The counter is injectable so tests can observe an isolated count. Hosts
// that need a single process-wide count share one counter across all
// engines (see ProcessLifecycle).
//
// Thread-safety: all methods are lock-free atomics.
type LifecycleCounter struct {
	live atomic.Int64
}

// NewLifecycleCounter creates a counter starting at zero.
func NewLifecycleCounter() *LifecycleCounter {
	return &LifecycleCounter{}
}

var processLifecycle = NewLifecycleCounter()

// ProcessLifecycle returns the counter shared by engines that were not given
// one explicitly.
func ProcessLifecycle() *LifecycleCounter {
	return processLifecycle
}

// Acquire records a newly constructed instance and returns the new count.
func (c *LifecycleCounter) Acquire() int64 {
	return c.live.Add(1)
}

// Release records a destroyed instance and returns the new count.
func (c *LifecycleCounter) Release() int64 {
	return c.live.Add(-1)
}

// Count returns the number of live instances.
func (c *LifecycleCounter) Count() int64 {
	return c.live.Load()
}

// CanUnload reports whether no instances are alive.
func (c *LifecycleCounter) CanUnload() bool {
	return c.live.Load() == 0
}
