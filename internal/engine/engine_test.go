package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/ir"
)

func TestEngine_New(t *testing.T) {
	e, lc := newTestEngine(t)

	assert.Equal(t, "engine-test", e.ID())
	assert.Equal(t, StateConstructed, e.State())
	assert.Equal(t, int64(1), e.Refs())
	assert.Equal(t, int64(1), lc.Count())
	assert.False(t, e.Heartbeat())
}

func TestEngine_SubscribeUpdateDrain(t *testing.T) {
	e, _ := newTestEngine(t)
	cb := NewFuncCallback(nil)
	require.NoError(t, e.Start(cb))

	assert.Equal(t, ir.ErrGettingData, e.Subscribe(101))
	assert.Equal(t, ir.ErrGettingData, e.Subscribe(102))

	require.True(t, e.UpdateTopic(101, ir.Text("Value1")))
	require.True(t, e.UpdateTopic(102, ir.Real(123.45)))
	require.NoError(t, e.Notify())
	assert.Equal(t, int64(1), cb.Notifies())

	batch := e.Drain()
	require.Len(t, batch, 2)
	assert.Equal(t, []int32{101, 102}, batch.Keys())
	assert.Equal(t, []ir.Value{ir.Text("Value1"), ir.Real(123.45)}, batch.Values())
	assert.Less(t, batch[0].Seq, batch[1].Seq)

	assert.Nil(t, e.Drain())
}

func TestEngine_UpdateNilStoresAbsent(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Subscribe(1)
	e.UpdateTopic(1, nil)

	batch := e.Drain()
	require.Len(t, batch, 1)
	assert.Equal(t, ir.Absent{}, batch[0].Value)
}

func TestEngine_UnsubscribedPendingTopicExcluded(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Subscribe(1)
	e.Subscribe(2)
	e.UpdateTopic(1, ir.Int(1))
	e.UpdateTopic(2, ir.Int(2))

	e.Unsubscribe(2)
	e.Unsubscribe(404) // unknown: no-op

	assert.Equal(t, []int32{1}, e.Drain().Keys())
}

func TestEngine_StartNilCallbackIsInvalid(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Start(nil)
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.Equal(t, StateConstructed, e.State(), "no state change")
}

func TestEngine_StartSupersedesCallback(t *testing.T) {
	e, _ := newTestEngine(t)
	first := NewFuncCallback(nil)
	second := NewFuncCallback(nil)

	require.NoError(t, e.Start(first))
	require.NoError(t, e.Start(second))
	assert.Equal(t, int64(0), first.Refs())
	assert.Equal(t, int64(1), second.Refs())

	require.NoError(t, e.Notify())
	assert.Equal(t, int64(0), first.Notifies())
	assert.Equal(t, int64(1), second.Notifies())
}

func TestEngine_TerminateIsIdempotent(t *testing.T) {
	e, lc := newTestEngine(t)
	cb := NewFuncCallback(nil)
	require.NoError(t, e.Start(cb))
	assert.True(t, e.Heartbeat())

	e.Terminate()
	e.Terminate()

	assert.Equal(t, StateTerminated, e.State())
	assert.Equal(t, int64(0), cb.Refs(), "callback released at terminate")
	assert.False(t, cb.OverReleased())
	assert.False(t, e.Heartbeat())
	assert.Equal(t, int64(1), lc.Count(), "terminate does not destroy")
}

func TestEngine_TerminateBeforeStart(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Terminate()
	assert.Equal(t, StateTerminated, e.State())
}

func TestEngine_OperationsAfterTerminateAreNoops(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Subscribe(1)
	e.UpdateTopic(1, ir.Int(1))
	e.Terminate()

	cb := NewFuncCallback(nil)
	assert.NoError(t, e.Start(cb), "start after terminate reports success")
	assert.Equal(t, int64(0), cb.Refs(), "and takes no claim")
	assert.Equal(t, StateTerminated, e.State())

	assert.Equal(t, ir.ErrGettingData, e.Subscribe(2))
	assert.Equal(t, 0, e.Len())
	assert.False(t, e.UpdateTopic(1, ir.Int(2)))
	e.Unsubscribe(1)
	assert.NoError(t, e.Notify())
	assert.Nil(t, e.Drain())
}

func TestEngine_ReleaseToZeroDestroys(t *testing.T) {
	obs := &recordingObserver{}
	e, lc := newTestEngine(t, WithObserver(obs))
	cb := NewFuncCallback(nil)
	require.NoError(t, e.Start(cb))

	assert.Equal(t, int64(2), e.Retain())
	assert.Equal(t, int64(1), e.Release())
	assert.Equal(t, StateStarted, e.State())

	assert.Equal(t, int64(0), e.Release())
	assert.Equal(t, StateDestroyed, e.State())
	assert.Equal(t, int64(0), cb.Refs())
	assert.Equal(t, int64(0), lc.Count())

	// Over-release and retain after destruction are ignored.
	assert.Equal(t, int64(0), e.Release())
	assert.Equal(t, int64(0), e.Retain())
	assert.Equal(t, int64(0), lc.Count(), "counter decremented exactly once")

	assert.Equal(t, []string{"start", "end"}, obs.Events())
}

func TestEngine_DestroyWithoutTerminateReleasesCallback(t *testing.T) {
	e, _ := newTestEngine(t)
	cb := NewFuncCallback(nil)
	require.NoError(t, e.Start(cb))

	e.Release()
	assert.Equal(t, int64(0), cb.Refs())
	assert.False(t, cb.OverReleased())
}

func TestEngine_ReleaseInsideCallback(t *testing.T) {
	e, lc := newTestEngine(t)
	cb := NewFuncCallback(func() error {
		e.Release()
		return nil
	})
	require.NoError(t, e.Start(cb))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Notify()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("release inside callback deadlocked")
	}
	assert.Equal(t, StateDestroyed, e.State())
	assert.Equal(t, int64(0), lc.Count())
	assert.Equal(t, int64(0), cb.Refs())
}

func TestEngine_ObserverEvents(t *testing.T) {
	obs := &recordingObserver{}
	e, _ := newTestEngine(t, WithObserver(obs))

	e.Subscribe(1)
	e.UpdateTopic(1, ir.Int(1))
	e.Drain()
	e.Drain() // empty: not reported
	e.Unsubscribe(1)
	e.Unsubscribe(1) // unknown: not reported
	e.Terminate()

	assert.Equal(t, []string{"start", "sub", "drain", "unsub", "end"}, obs.Events())
	require.Len(t, obs.drains, 1)
	assert.Equal(t, []int32{1}, obs.drains[0].Keys())
}

func TestEngine_PendingTimestampsUseInjectedClock(t *testing.T) {
	clk := newFakeClock()
	e, _ := newTestEngine(t, WithNow(clk.Now))
	src := producerSource{e}

	e.Subscribe(10, "AAPL")
	assert.Empty(t, src.ClaimDue(time.Second))

	clk.Advance(time.Second)
	due := src.ClaimDue(time.Second)
	require.Len(t, due, 1)
	assert.Equal(t, []string{"AAPL"}, due[0].Args)
}

func TestEngine_ConcurrentProducersAndPoller(t *testing.T) {
	e, lc := newTestEngine(t)
	var notified sync.WaitGroup
	cb := NewFuncCallback(nil)
	require.NoError(t, e.Start(cb))

	const keys = 20
	for k := int32(0); k < keys; k++ {
		e.Subscribe(k)
	}

	stop := make(chan struct{})
	for p := 0; p < 4; p++ {
		notified.Add(1)
		go func(p int) {
			defer notified.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				e.UpdateTopic(int32((i+p)%keys), ir.Int(int64(i)))
				if i%10 == 0 {
					_ = e.Notify()
				}
				if i%50 == 0 {
					e.Retain()
					e.Release()
				}
			}
		}(p)
	}

	latest := make(map[int32]int64)
	deadline := time.After(150 * time.Millisecond)
poll:
	for {
		select {
		case <-deadline:
			break poll
		default:
		}
		for _, entry := range e.Drain() {
			// Seqs for a key only move forward across drains.
			assert.Greater(t, entry.Seq, latest[entry.Key])
			latest[entry.Key] = entry.Seq
		}
	}
	close(stop)
	notified.Wait()

	e.Release()
	assert.Equal(t, int64(0), lc.Count())
	assert.Equal(t, int64(0), cb.Refs())
}

func TestEngine_WithClockContinuesSequence(t *testing.T) {
	clock := NewClockAt(100)
	obs := &recordingObserver{}
	e, _ := newTestEngine(t, WithClock(clock), WithObserver(obs))
	require.Same(t, clock, e.Clock())

	e.Subscribe(1)
	e.UpdateTopic(1, ir.Int(7))
	batch := e.Drain()
	require.Equal(t, 1, batch.Len())
	assert.Equal(t, int64(101), batch[0].Seq)
	assert.Equal(t, int64(102), clock.Current(), "the drain takes the next value")
	e.Release()
}
