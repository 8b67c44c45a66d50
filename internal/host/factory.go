package host

import (
	"github.com/xll-gen/rtd/internal/engine"
)

// Factory creates bindings that share one lifecycle counter.
type Factory struct {
	lifecycle   *engine.LifecycleCounter
	engineOpts  []engine.EngineOption
	bindingOpts []BindingOption
}

// NewFactory creates a factory. A nil counter uses engine.ProcessLifecycle().
func NewFactory(lc *engine.LifecycleCounter, engineOpts []engine.EngineOption, bindingOpts ...BindingOption) *Factory {
	if lc == nil {
		lc = engine.ProcessLifecycle()
	}
	return &Factory{
		lifecycle:   lc,
		engineOpts:  engineOpts,
		bindingOpts: bindingOpts,
	}
}

// CreateInstance constructs a new engine and binding. extra options are
// applied after the factory's, so a per-instance producer can be attached.
func (f *Factory) CreateInstance(extra ...engine.EngineOption) *Binding {
	opts := make([]engine.EngineOption, 0, len(f.engineOpts)+len(extra)+1)
	opts = append(opts, f.engineOpts...)
	opts = append(opts, extra...)
	opts = append(opts, engine.WithLifecycle(f.lifecycle))
	return NewBinding(engine.New(opts...), f.bindingOpts...)
}

// CanUnloadNow reports whether every instance has been destroyed.
func (f *Factory) CanUnloadNow() bool {
	return f.lifecycle.CanUnload()
}

// LiveInstances returns the number of live instances.
func (f *Factory) LiveInstances() int64 {
	return f.lifecycle.Count()
}
