package feed

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

// Topic returns the declaration for key.
func (s *Spec) Topic(key int32) (Topic, bool) {
	for _, t := range s.Topics {
		if t.Key == key {
			return t, true
		}
	}
	return Topic{}, false
}

// Values returns a value function for the producer. Subscriptions to keys
// the feed does not declare receive #N/A. now is used by clock topics; nil
// means time.Now.
func (s *Spec) Values(now func() time.Time) engine.ValueFunc {
	if now == nil {
		now = time.Now
	}
	byKey := make(map[int32]Topic, len(s.Topics))
	for _, t := range s.Topics {
		if _, dup := byKey[t.Key]; !dup {
			byKey[t.Key] = t
		}
	}

	return func(p engine.Pending, n int) ir.Value {
		t, ok := byKey[p.Key]
		if !ok {
			return ir.ErrorCode(ir.ErrNA)
		}
		return t.value(p, n, now)
	}
}

func (t Topic) value(p engine.Pending, n int, now func() time.Time) ir.Value {
	switch t.Generator {
	case GeneratorConstant:
		if t.Value == nil {
			return ir.Absent{}
		}
		return t.Value
	case GeneratorCounter:
		step := t.Step
		if step == 0 {
			step = 1
		}
		return ir.Int(t.Start + int64(n)*step)
	case GeneratorClock:
		layout := t.Layout
		if layout == "" {
			layout = time.RFC3339
		}
		return ir.Text(now().Format(layout))
	case GeneratorEcho:
		// Subscription args win over declared args.
		args := p.Args
		if len(args) == 0 {
			args = t.Args
		}
		if len(args) == 0 {
			return ir.Text(strconv.FormatInt(int64(p.Key), 10))
		}
		return ir.Text(strings.Join(args, " "))
	default:
		return ir.ErrorCode(ir.ErrValue)
	}
}

// Producer builds a DelayedProducer that serves this feed.
func (s *Spec) Producer(logger *slog.Logger, opts ...engine.ProducerOption) *engine.DelayedProducer {
	base := []engine.ProducerOption{
		engine.WithInterval(s.Interval),
		engine.WithValues(s.Values(nil)),
	}
	if logger != nil {
		base = append(base, engine.WithProducerLogger(logger.With("feed", s.Name)))
	}
	return engine.NewDelayedProducer(s.Delay, append(base, opts...)...)
}
