// Package engine implements the topic update engine.
//
// A host that can only poll (it never accepts pushed data) subscribes to
// integer-keyed topics. Producers running on their own goroutines write new
// values and raise a payload-free notification; the host then drains every
// topic that changed since its last drain.
//
// COMPONENTS:
//
// Registry: topic key -> value + dirty flag. Owns the subscription set and
// the dirty list. Every operation runs under one mutex.
//
// Drain: collects dirty topics in subscription order and clears their flags
// in a single critical section. Cost is proportional to the number of dirty
// topics, not to the number of subscriptions.
//
// Notifier: holds at most one host callback. Notify copies the callback and
// takes a private claim under the lock, then delivers with the lock released.
//
// Refcount and LifecycleCounter: the engine starts with one reference. When
// the last reference is released the producer is stopped and joined, the
// callback is released, and the process-wide instance count drops by one.
//
// STATE MACHINE:
//
//	Constructed -> Started -> Terminated -> Destroyed
//
// Start may be called again to replace the callback. Terminate is idempotent.
// Mutations after Terminate are ignored and report success.
//
// ORDERING:
//
// Every UpdateTopic is stamped with a seq from Clock.Next(). A drain always
// observes the latest completed update for each topic it returns.
package engine
