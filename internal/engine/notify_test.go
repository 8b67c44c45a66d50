package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_RegisterSupersedes(t *testing.T) {
	var n notifier
	first := NewFuncCallback(nil)
	second := NewFuncCallback(nil)

	n.register(first)
	assert.Equal(t, int64(1), first.Refs())

	n.register(second)
	assert.Equal(t, int64(0), first.Refs(), "previous callback released exactly once")
	assert.Equal(t, int64(1), second.Refs())

	delivered, err := n.notify()
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, int64(0), first.Notifies())
	assert.Equal(t, int64(1), second.Notifies())

	n.unregister()
	n.unregister()
	assert.Equal(t, int64(0), second.Refs())
	assert.False(t, first.OverReleased())
	assert.False(t, second.OverReleased())
}

func TestNotifier_RegisterSameCallbackTwice(t *testing.T) {
	var n notifier
	cb := NewFuncCallback(nil)

	n.register(cb)
	n.register(cb)
	assert.Equal(t, int64(1), cb.Refs())
	assert.False(t, cb.OverReleased(), "claim must never drop below zero")

	n.unregister()
	assert.Equal(t, int64(0), cb.Refs())
}

func TestNotifier_NotifyWithoutCallback(t *testing.T) {
	var n notifier
	delivered, err := n.notify()
	assert.NoError(t, err)
	assert.False(t, delivered)
}

func TestNotifier_PrivateClaimDuringDelivery(t *testing.T) {
	var n notifier
	var cb *FuncCallback
	var during int64
	cb = NewFuncCallback(func() error {
		during = cb.Refs()
		return nil
	})

	n.register(cb)
	_, err := n.notify()
	require.NoError(t, err)

	assert.Equal(t, int64(2), during, "stored claim plus private claim")
	assert.Equal(t, int64(1), cb.Refs(), "private claim released after delivery")
}

func TestNotifier_PropagatesCallbackError(t *testing.T) {
	var n notifier
	boom := errors.New("host busy")
	cb := NewFuncCallback(func() error { return boom })

	n.register(cb)
	_, err := n.notify()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), cb.Refs())
}

func TestNotifier_UnregisterDuringDelivery(t *testing.T) {
	var n notifier
	entered := make(chan struct{})
	proceed := make(chan struct{})
	cb := NewFuncCallback(func() error {
		close(entered)
		<-proceed
		return nil
	})
	n.register(cb)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = n.notify()
	}()

	<-entered
	// The lock is not held during delivery, so unregister completes.
	n.unregister()
	assert.Equal(t, int64(1), cb.Refs(), "in-flight delivery still holds its claim")

	close(proceed)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify did not return")
	}
	assert.Equal(t, int64(0), cb.Refs())
	assert.False(t, cb.OverReleased())
}

func TestNotifier_ConcurrentRegisterAndNotify(t *testing.T) {
	var n notifier
	callbacks := make([]*FuncCallback, 8)
	for i := range callbacks {
		callbacks[i] = NewFuncCallback(nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				n.register(callbacks[j%len(callbacks)])
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = n.notify()
			}
		}()
	}
	wg.Wait()
	n.unregister()

	for i, cb := range callbacks {
		assert.Equal(t, int64(0), cb.Refs(), "callback %d claims unbalanced", i)
		assert.False(t, cb.OverReleased(), "callback %d over-released", i)
	}
}
