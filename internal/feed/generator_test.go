package feed

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

func testSpec() *Spec {
	return &Spec{
		Name:     "t",
		Delay:    20 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Topics: []Topic{
			{Key: 1, Generator: GeneratorConstant, Value: ir.Text("Value1")},
			{Key: 2, Generator: GeneratorCounter, Start: 10, Step: 5},
			{Key: 3, Generator: GeneratorClock, Layout: "15:04"},
			{Key: 4, Generator: GeneratorEcho, Args: []string{"declared"}},
			{Key: 5, Generator: GeneratorCounter},
		},
	}
}

func TestValues(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := testSpec().Values(func() time.Time { return at })

	assert.Equal(t, ir.Text("Value1"), f(engine.Pending{Key: 1}, 0))
	assert.Equal(t, ir.Text("Value1"), f(engine.Pending{Key: 1}, 3))

	assert.Equal(t, ir.Int(10), f(engine.Pending{Key: 2}, 0))
	assert.Equal(t, ir.Int(20), f(engine.Pending{Key: 2}, 2))
	assert.Equal(t, ir.Int(3), f(engine.Pending{Key: 5}, 3), "step defaults to 1")

	assert.Equal(t, ir.Text("09:30"), f(engine.Pending{Key: 3}, 0))

	assert.Equal(t, ir.Text("declared"), f(engine.Pending{Key: 4}, 0))
	assert.Equal(t, ir.Text("IBM Last"), f(engine.Pending{Key: 4, Args: []string{"IBM", "Last"}}, 0))

	assert.Equal(t, ir.ErrorCode(ir.ErrNA), f(engine.Pending{Key: 99}, 0))
}

func TestValues_EchoWithoutArgs(t *testing.T) {
	spec := &Spec{Topics: []Topic{{Key: 42, Generator: GeneratorEcho}}}
	assert.Equal(t, ir.Text("42"), spec.Values(nil)(engine.Pending{Key: 42}, 0))
}

func TestSpec_Topic(t *testing.T) {
	topic, ok := testSpec().Topic(2)
	require.True(t, ok)
	assert.Equal(t, GeneratorCounter, topic.Generator)

	_, ok = testSpec().Topic(9)
	assert.False(t, ok)
}

func TestProducer_ServesEngine(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := testSpec().Producer(logger, engine.WithTick(5*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, p.Delay())

	e := engine.New(
		engine.WithLifecycle(engine.NewLifecycleCounter()),
		engine.WithLogger(logger),
		engine.WithProducer(p),
	)
	defer e.Release()

	cb := engine.NewFuncCallback(nil)
	require.NoError(t, e.Start(cb))
	e.Subscribe(1)
	e.Subscribe(2)

	got := map[int32]ir.Value{}
	require.Eventually(t, func() bool {
		for _, entry := range e.Drain() {
			got[entry.Key] = entry.Value
		}
		v, ok := got[2].(ir.Int)
		return got[1] != nil && ok && v >= 15
	}, 2*time.Second, 5*time.Millisecond, "counter should advance every interval")

	assert.Equal(t, ir.Text("Value1"), got[1])
	assert.Positive(t, cb.Notifies())
}
