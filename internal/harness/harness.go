package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/host"
	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/store"
	"github.com/xll-gen/rtd/internal/table"
	"github.com/xll-gen/rtd/internal/testutil"
)

// Harness executes one scenario against a fresh server.
type Harness struct {
	binding   *host.Binding
	event     *host.Poller
	lifecycle *engine.LifecycleCounter
	store     *store.Store
	clock     *testutil.ManualClock
	logger    *slog.Logger
	instance  string
	released  bool
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against its own lifecycle counter and in-memory
// journal. An error is returned only when the scenario cannot be executed;
// unmet expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := testutil.NewFixedIDGenerator(scenario.InstanceID)
	clock := testutil.NewManualClock()
	lc := engine.NewLifecycleCounter()

	bindingOpts := []host.BindingOption{host.WithBindingLogger(logger)}
	if scenario.MaxColumns > 0 {
		bindingOpts = append(bindingOpts, host.WithMaxColumns(scenario.MaxColumns))
	}
	factory := host.NewFactory(lc, []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithIDGenerator(ids),
		engine.WithNow(clock.Now),
		engine.WithObserver(store.NewJournal(st, logger)),
	}, bindingOpts...)

	b := factory.CreateInstance()
	h := &Harness{
		binding:   b,
		event:     host.NewPoller(b, host.WithPollerLogger(logger)),
		lifecycle: lc,
		store:     st,
		clock:     clock,
		logger:    logger,
		instance:  b.Engine().ID(),
	}
	defer func() {
		if !h.released {
			b.Release()
		}
	}()

	var started int32
	if err := b.ServerStart(h.event, &started); err != nil {
		return nil, fmt.Errorf("server start: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(int64(i+1), step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	result.Notifies = h.event.Notifies()
	result.CallbackRefs = h.event.Refs()
	result.LiveInstances = lc.Count()
	result.State = b.Engine().State().String()

	state, err := st.GetSessionState(context.Background(), h.instance)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	result.Journal = &state

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// execute runs one step and appends its trace event.
func (h *Harness) execute(seq int64, step Step, result *Result) error {
	op, err := step.Op()
	if err != nil {
		return err
	}
	if h.released && op != OpRelease {
		return fmt.Errorf("%s after release", op)
	}

	ev := TraceEvent{Seq: seq, Op: op}
	// Each step is one second apart on the wall clock.
	h.clock.Advance(time.Second)

	switch op {
	case OpSubscribe:
		var v ir.Value
		var getNew bool
		if err := h.binding.ConnectData(*step.Subscribe, step.Args, &getNew, &v); err != nil {
			return fmt.Errorf("connect %d: %w", *step.Subscribe, err)
		}
		ev.Key = step.Subscribe
		ev.Args = step.Args
		ev.Value = v

	case OpUpdate:
		v, err := ir.ValueOf(step.Value)
		if err != nil {
			return err
		}
		accepted := h.binding.Engine().UpdateTopic(*step.Update, v)
		ev.Key = step.Update
		ev.Value = v
		ev.Accepted = &accepted

	case OpUnsubscribe:
		if err := h.binding.DisconnectData(*step.Unsubscribe); err != nil {
			return fmt.Errorf("disconnect %d: %w", *step.Unsubscribe, err)
		}
		ev.Key = step.Unsubscribe

	case OpNotify:
		if err := h.binding.Engine().Notify(); err != nil {
			ev.Status = host.StatusOf(err).String()
		}

	case OpRefresh:
		h.refresh(&ev, step.Refresh, result)

	case OpHeartbeat:
		var alive int32
		if err := h.binding.Heartbeat(&alive); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		ev.Alive = &alive
		if alive != *step.Heartbeat {
			result.AddError(fmt.Sprintf("step %d: heartbeat = %d, expected %d", seq, alive, *step.Heartbeat))
		}

	case OpTerminate:
		if err := h.binding.ServerTerminate(); err != nil {
			return fmt.Errorf("terminate: %w", err)
		}

	case OpRelease:
		if h.released {
			return fmt.Errorf("server already released")
		}
		refs := int64(h.binding.Release())
		h.released = refs == 0
		ev.Refs = &refs
	}

	h.logger.Debug("step executed", "seq", seq, "op", op)
	result.Trace = append(result.Trace, ev)
	return nil
}

func (h *Harness) refresh(ev *TraceEvent, want *RefreshStep, result *Result) {
	var count int32
	var tbl *table.Table
	err := h.binding.RefreshData(&count, &tbl)

	ev.Count = &count
	ev.Table = tbl
	if err != nil {
		ev.Status = host.StatusOf(err).String()
	}

	if ev.Status != want.Status {
		got := ev.Status
		if got == "" {
			got = host.SOK.String()
		}
		result.AddError(fmt.Sprintf("step %d: refresh status %s, expected %s", ev.Seq, got, orOK(want.Status)))
		return
	}

	if want.Empty && (count != 0 || tbl != nil) {
		result.AddError(fmt.Sprintf("step %d: refresh returned %d topics, expected none", ev.Seq, count))
		return
	}
	if want.Expect == nil {
		return
	}

	var entries []engine.Entry
	if tbl != nil {
		entries, err = tbl.Entries()
		if err != nil {
			result.AddError(fmt.Sprintf("step %d: decode table: %v", ev.Seq, err))
			return
		}
	}
	if len(entries) != len(want.Expect) {
		result.AddError(fmt.Sprintf("step %d: refresh returned %d topics, expected %d", ev.Seq, len(entries), len(want.Expect)))
		return
	}
	for i, exp := range want.Expect {
		wantValue, _ := ir.ValueOf(exp.Value)
		got := entries[i]
		if got.Key != exp.Key || !ir.Equal(got.Value, wantValue) {
			result.AddError(fmt.Sprintf("step %d: column %d = (%d, %s), expected (%d, %s)",
				ev.Seq, i, got.Key, describe(got.Value), exp.Key, describe(wantValue)))
		}
	}
}

func orOK(status string) string {
	if status == "" {
		return host.SOK.String()
	}
	return status
}

// describe renders a value with its kind, e.g. text("Value1").
func describe(v ir.Value) string {
	if v == nil {
		return "<nil>"
	}
	if v.Kind() == ir.KindText {
		return fmt.Sprintf("text(%q)", v.String())
	}
	return fmt.Sprintf("%s(%s)", v.Kind(), v.String())
}
