package engine

import (
	"sync"
	"sync/atomic"
)

// Callback is the host-supplied notification target.
//
// The engine never assumes a callback outlives its own claims on it: it
// calls Retain before storing or using the callback and Release exactly once
// per Retain. UpdateNotify carries no payload; the host is expected to drain
// afterwards.
type Callback interface {
	UpdateNotify() error
	Retain()
	Release()
}

// FuncCallback adapts a function to Callback and tracks outstanding claims.
//
// It is useful for embedding the engine in Go programs, where the host is
// in-process, and for tests that assert claims are balanced.
//
// Thread-safety: safe for concurrent use.
type FuncCallback struct {
	fn       func() error
	refs     atomic.Int64
	notifies atomic.Int64

	mu       sync.Mutex
	released []int64 // refs observed after each Release
}

// NewFuncCallback creates a callback that invokes fn on every notification.
// A nil fn only counts notifications.
func NewFuncCallback(fn func() error) *FuncCallback {
	return &FuncCallback{fn: fn}
}

// UpdateNotify records the notification and calls the wrapped function.
func (c *FuncCallback) UpdateNotify() error {
	c.notifies.Add(1)
	if c.fn == nil {
		return nil
	}
	return c.fn()
}

// Retain takes a claim.
func (c *FuncCallback) Retain() {
	c.refs.Add(1)
}

// Release drops a claim.
func (c *FuncCallback) Release() {
	n := c.refs.Add(-1)
	c.mu.Lock()
	c.released = append(c.released, n)
	c.mu.Unlock()
}

// Refs returns the number of outstanding claims. Zero means every Retain
// was matched by a Release.
func (c *FuncCallback) Refs() int64 {
	return c.refs.Load()
}

// Notifies returns how many times UpdateNotify was called.
func (c *FuncCallback) Notifies() int64 {
	return c.notifies.Load()
}

// OverReleased reports whether a Release ever dropped the count below zero.
func (c *FuncCallback) OverReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.released {
		if n < 0 {
			return true
		}
	}
	return false
}
