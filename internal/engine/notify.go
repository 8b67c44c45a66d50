package engine

import "sync"

// notifier holds the single registered callback.
//
// Invariant: the notifier owns exactly one claim on the stored callback.
// Notify takes an extra private claim for the duration of delivery so that a
// concurrent Register or Unregister can release the stored claim without
// pulling the callback out from under an in-flight notification.
type notifier struct {
	mu sync.Mutex
	cb Callback
}

// register stores cb and releases the previous callback, if any.
// Registering the same callback again is safe: the new claim is taken before
// the old one is dropped.
func (n *notifier) register(cb Callback) {
	if cb != nil {
		cb.Retain()
	}

	n.mu.Lock()
	old := n.cb
	n.cb = cb
	n.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// unregister clears and releases the stored callback. Idempotent.
func (n *notifier) unregister() {
	n.mu.Lock()
	old := n.cb
	n.cb = nil
	n.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// notify delivers one notification with the lock released.
// Returns (false, nil) when no callback is registered.
func (n *notifier) notify() (bool, error) {
	n.mu.Lock()
	cb := n.cb
	if cb != nil {
		cb.Retain()
	}
	n.mu.Unlock()

	if cb == nil {
		return false, nil
	}
	defer cb.Release()
	return true, cb.UpdateNotify()
}

// registered reports whether a callback is stored.
func (n *notifier) registered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cb != nil
}
