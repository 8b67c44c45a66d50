package harness

import (
	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/store"
	"github.com/xll-gen/rtd/internal/table"
)

// TraceEvent records one executed step and what the server returned.
type TraceEvent struct {
	Seq      int64        `json:"seq"` // 1-based step number
	Op       string       `json:"op"`
	Key      *int32       `json:"key,omitempty"`
	Args     []string     `json:"args,omitempty"`
	Value    ir.Value     `json:"value,omitempty"`    // subscribe result or update value
	Accepted *bool        `json:"accepted,omitempty"` // update
	Count    *int32       `json:"count,omitempty"`    // refresh
	Table    *table.Table `json:"table,omitempty"`    // refresh
	Alive    *int32       `json:"alive,omitempty"`    // heartbeat
	Refs     *int64       `json:"refs,omitempty"`     // release
	Status   string       `json:"status,omitempty"`   // failed host call
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Notifies is how many notifications reached the host.
	Notifies int64 `json:"notifies"`

	// CallbackRefs is how many references the server still holds on the
	// host callback after the steps.
	CallbackRefs int64 `json:"callback_refs"`

	// LiveInstances is the lifecycle count after the steps.
	LiveInstances int64 `json:"live_instances"`

	// State is the engine lifecycle state after the steps.
	State string `json:"state"`

	// Journal is the session as rebuilt from the journal.
	Journal *store.SessionState `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Deliveries returns, in order, every entry returned by a refresh.
func (r *Result) Deliveries() []Delivered {
	var out []Delivered
	for _, ev := range r.Trace {
		if ev.Op != OpRefresh || ev.Table == nil {
			continue
		}
		for c := 0; c < ev.Table.Cols(); c++ {
			key, _ := ev.Table.Key(c)
			value, _ := ev.Table.At(table.RowValues, c)
			out = append(out, Delivered{Seq: ev.Seq, Key: key, Value: value})
		}
	}
	return out
}

// Delivered is one refreshed column.
type Delivered struct {
	Seq   int64 // step that refreshed it
	Key   int32
	Value ir.Value
}
