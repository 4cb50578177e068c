package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T) *Loop {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func idle(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Idle(ctx))
}

func TestPostRunsInOrder(t *testing.T) {
	l := run(t)

	var got []int
	for i := range 5 {
		l.Post(func() { got = append(got, i) })
	}
	idle(t, l)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPanickingTaskDoesNotStopLoop(t *testing.T) {
	l := run(t)

	ran := false
	l.Post(func() { panic("boom") })
	l.Call(func() { ran = true })
	assert.True(t, ran)
}

func TestGoPostsCompletion(t *testing.T) {
	l := run(t)

	var result string
	l.Post(func() {
		var out string
		l.Go(func() {
			time.Sleep(5 * time.Millisecond)
			out = "done"
		}, func() { result = out })
	})
	idle(t, l)
	assert.Equal(t, "done", result)
}

func TestAfterFuncCountsAsOutstanding(t *testing.T) {
	l := run(t)

	var fired atomic.Bool
	l.Call(func() {
		l.AfterFunc(10*time.Millisecond, func() { fired.Store(true) })
	})
	idle(t, l)
	assert.True(t, fired.Load())
}

func TestStoppedTimerNeverFires(t *testing.T) {
	l := run(t)

	var fired atomic.Bool
	l.Call(func() {
		timer := l.AfterFunc(5*time.Millisecond, func() { fired.Store(true) })
		time.Sleep(20 * time.Millisecond)
		timer.Stop()
	})
	idle(t, l)
	assert.False(t, fired.Load())
}

func TestTickerStops(t *testing.T) {
	l := run(t)

	var ticks atomic.Int32
	var ticker *Ticker
	l.Call(func() {
		ticker = l.Every(2*time.Millisecond, func() { ticks.Add(1) })
	})
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	l.Call(ticker.Stop)
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestIdleHonoursContext(t *testing.T) {
	l := New()
	l.Post(func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Idle(ctx), context.DeadlineExceeded)
}
