package engine

// Observer receives engine lifecycle and delivery events, typically to
// journal them. Callbacks run on the goroutine that performed the operation,
// after the registry lock has been released. Implementations must not call
// back into the engine and should return quickly.
type Observer interface {
	SessionStarted(engineID string)
	TopicSubscribed(engineID string, key int32, args []string)
	TopicUnsubscribed(engineID string, key int32)
	BatchDrained(engineID string, drainSeq int64, batch Batch)
	SessionEnded(engineID string)
}

// nopObserver discards every event.
type nopObserver struct{}

func (nopObserver) SessionStarted(string)                  {}
func (nopObserver) TopicSubscribed(string, int32, []string) {}
func (nopObserver) TopicUnsubscribed(string, int32)         {}
func (nopObserver) BatchDrained(string, int64, Batch)       {}
func (nopObserver) SessionEnded(string)                     {}
