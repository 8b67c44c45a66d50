package host

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/xll-gen/rtd/internal/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEvent is a host callback that counts calls and references.
type fakeEvent struct {
	refs        atomic.Int64
	notifies    atomic.Int64
	disconnects atomic.Int64
	interval    atomic.Int32
	onNotify    func()
}

func (f *fakeEvent) UpdateNotify() error {
	f.notifies.Add(1)
	if f.onNotify != nil {
		f.onNotify()
	}
	return nil
}
func (f *fakeEvent) HeartbeatInterval() (int32, error)   { return f.interval.Load(), nil }
func (f *fakeEvent) SetHeartbeatInterval(ms int32) error { f.interval.Store(ms); return nil }
func (f *fakeEvent) Disconnect() error                   { f.disconnects.Add(1); return nil }
func (f *fakeEvent) AddRef() uint32                      { return uint32(f.refs.Add(1)) }
func (f *fakeEvent) Release() uint32                     { return uint32(f.refs.Add(-1)) }

// newTestBinding returns a binding over an engine with an isolated counter.
func newTestBinding(t *testing.T, opts ...BindingOption) (*Binding, *engine.LifecycleCounter) {
	t.Helper()
	lc := engine.NewLifecycleCounter()
	e := engine.New(
		engine.WithLifecycle(lc),
		engine.WithLogger(discardLogger()),
		engine.WithIDGenerator(engine.NewFixedGenerator("binding-test")),
	)
	opts = append([]BindingOption{WithBindingLogger(discardLogger())}, opts...)
	return NewBinding(e, opts...), lc
}
