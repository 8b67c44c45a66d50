package host

import "github.com/xll-gen/rtd/internal/engine"

// UpdateEvent is the callback object the host passes to ServerStart.
//
// AddRef and Release manage the host's reference count; every AddRef made by
// this package is matched by exactly one Release.
type UpdateEvent interface {
	// UpdateNotify tells the host that RefreshData has something to return.
	UpdateNotify() error
	// HeartbeatInterval returns how often, in milliseconds, the host checks
	// that the server is alive.
	HeartbeatInterval() (int32, error)
	// SetHeartbeatInterval changes the heartbeat period in milliseconds.
	SetHeartbeatInterval(ms int32) error
	// Disconnect tells the host the server is shutting down on its own.
	Disconnect() error
	AddRef() uint32
	Release() uint32
}

// eventCallback adapts an UpdateEvent to engine.Callback.
type eventCallback struct {
	ev UpdateEvent
}

var _ engine.Callback = eventCallback{}

func (c eventCallback) UpdateNotify() error { return c.ev.UpdateNotify() }
func (c eventCallback) Retain()             { c.ev.AddRef() }
func (c eventCallback) Release()            { c.ev.Release() }
