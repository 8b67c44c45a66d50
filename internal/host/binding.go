package host

import (
	"log/slog"
	"sync"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/table"
)

// Server is the narrow capability a host needs from an RTD server.
// Every method returns nil on success; StatusOf maps errors to status codes.
type Server interface {
	ServerStart(cb UpdateEvent, res *int32) error
	ConnectData(topicID int32, args []string, getNewValues *bool, out *ir.Value) error
	RefreshData(topicCount *int32, out **table.Table) error
	DisconnectData(topicID int32) error
	Heartbeat(res *int32) error
	ServerTerminate() error
}

// Binding serves one engine to one host.
//
// Thread-safety: all methods are safe for concurrent use. The host may call
// AddRef and Release from inside UpdateNotify.
type Binding struct {
	engine            *engine.Engine
	encoder           table.Encoder
	heartbeatInterval int32
	logger            *slog.Logger

	mu    sync.Mutex
	event UpdateEvent // holds one AddRef while set
}

var _ Server = (*Binding)(nil)

// BindingOption configures a Binding.
type BindingOption func(*Binding)

// WithMaxColumns bounds the table RefreshData may allocate.
func WithMaxColumns(n int) BindingOption {
	return func(b *Binding) {
		b.encoder.MaxColumns = n
	}
}

// WithHeartbeatInterval asks the host, on ServerStart, to check the
// heartbeat every ms milliseconds. Zero leaves the host default.
func WithHeartbeatInterval(ms int32) BindingOption {
	return func(b *Binding) {
		b.heartbeatInterval = ms
	}
}

// WithBindingLogger sets the logger. Default: slog.Default().
func WithBindingLogger(l *slog.Logger) BindingOption {
	return func(b *Binding) {
		b.logger = l
	}
}

// NewBinding wraps e. The binding takes over the engine's initial
// reference: releasing the binding to zero destroys the engine.
func NewBinding(e *engine.Engine, opts ...BindingOption) *Binding {
	b := &Binding{engine: e}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("engine_id", e.ID())
	return b
}

// Engine returns the wrapped engine.
func (b *Binding) Engine() *engine.Engine {
	return b.engine
}

// ServerStart registers the host callback and reports 1 in res.
func (b *Binding) ServerStart(cb UpdateEvent, res *int32) error {
	if res == nil {
		return nilTarget("result")
	}
	if cb == nil {
		return engine.NewInvalidArgumentError("update event is nil")
	}

	if err := b.engine.Start(eventCallback{cb}); err != nil {
		return err
	}

	cb.AddRef()
	b.mu.Lock()
	old := b.event
	b.event = cb
	b.mu.Unlock()
	if old != nil {
		old.Release()
	}

	if b.heartbeatInterval > 0 {
		if err := cb.SetHeartbeatInterval(b.heartbeatInterval); err != nil {
			b.logger.Warn("set heartbeat interval failed", "interval_ms", b.heartbeatInterval, "error", err)
		}
	}

	*res = 1
	return nil
}

// ConnectData subscribes topicID and returns the placeholder in out.
// When getNewValues is non-nil it is set to true: cached values are never
// reused across connections.
func (b *Binding) ConnectData(topicID int32, args []string, getNewValues *bool, out *ir.Value) error {
	if out == nil {
		return nilTarget("value")
	}
	*out = b.engine.Subscribe(topicID, args...)
	if getNewValues != nil {
		*getNewValues = true
	}
	return nil
}

// RefreshData drains the engine and returns the encoded table.
//
// Nothing dirty: *topicCount is 0 and *out is nil. If the table cannot be
// allocated the error is returned, *topicCount is 0, and the drained topics
// stay clean.
func (b *Binding) RefreshData(topicCount *int32, out **table.Table) error {
	if topicCount == nil {
		return nilTarget("topic count")
	}
	if out == nil {
		return nilTarget("table")
	}

	batch := b.engine.Drain()
	tbl, err := b.encoder.Encode(batch)
	if err != nil {
		b.logger.Error("refresh failed; drained updates dropped", "batch_size", batch.Len(), "error", err)
		*topicCount = 0
		*out = nil
		return err
	}

	*topicCount = int32(batch.Len())
	*out = tbl
	return nil
}

// DisconnectData unsubscribes topicID. Unknown topics are ignored.
func (b *Binding) DisconnectData(topicID int32) error {
	b.engine.Unsubscribe(topicID)
	return nil
}

// Heartbeat reports 1 while the server is started, 0 otherwise.
func (b *Binding) Heartbeat(res *int32) error {
	if res == nil {
		return nilTarget("result")
	}
	if b.engine.Heartbeat() {
		*res = 1
	} else {
		*res = 0
	}
	return nil
}

// ServerTerminate stops the engine and releases the host callback.
func (b *Binding) ServerTerminate() error {
	b.engine.Terminate()
	b.releaseEvent()
	return nil
}

// Disconnect shuts the server down on its own initiative: the host is told
// through UpdateEvent.Disconnect, then the engine is terminated.
func (b *Binding) Disconnect() error {
	b.mu.Lock()
	ev := b.event
	if ev != nil {
		ev.AddRef()
	}
	b.mu.Unlock()

	var err error
	if ev != nil {
		err = ev.Disconnect()
		ev.Release()
	}
	b.engine.Terminate()
	b.releaseEvent()
	return err
}

func (b *Binding) releaseEvent() {
	b.mu.Lock()
	ev := b.event
	b.event = nil
	b.mu.Unlock()
	if ev != nil {
		ev.Release()
	}
}

// AddRef adds a reference to the server.
func (b *Binding) AddRef() uint32 {
	return uint32(b.engine.Retain())
}

// Release drops a reference. The last release destroys the engine and
// drops the binding's claim on the host callback.
func (b *Binding) Release() uint32 {
	n := b.engine.Release()
	if n == 0 {
		b.releaseEvent()
	}
	return uint32(n)
}
