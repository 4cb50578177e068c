// Package eventloop runs callbacks one at a time on a single goroutine.
//
// Everything the preview engine does happens inside loop tasks. Blocking work
// (HTTP requests, media play attempts) runs off the loop through Go, and its
// completion is posted back as a new task. Timers and tickers also deliver
// their callbacks as tasks, so no two engine callbacks ever run concurrently.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Loop is a FIFO task queue drained by Run.
type Loop struct {
	mu       sync.Mutex
	tasks    []func()
	busy     bool
	inflight int
	wake     chan struct{}
}

// New creates a loop. Call Run to start draining it.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Run drains the queue until ctx is cancelled. Tasks still queued at that
// point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.busy = false
			l.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
			}
			continue
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.busy = true
		l.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Event loop task panicked")
		}
	}()
	fn()
}

// Post queues fn. It never blocks and is safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call posts fn and waits until it has run. It must not be called from a
// loop task.
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// Go runs work on a new goroutine and then posts done to the loop.
func (l *Loop) Go(work func(), done func()) {
	l.mu.Lock()
	l.inflight++
	l.mu.Unlock()

	go func() {
		defer l.release()
		work()
		if done != nil {
			l.Post(done)
		}
	}()
}

func (l *Loop) release() {
	l.mu.Lock()
	l.inflight--
	l.mu.Unlock()
}

// Idle blocks until the queue is empty, no task is running, and no Go work
// or armed one-shot timer is outstanding. Tickers do not count.
func (l *Loop) Idle(ctx context.Context) error {
	for {
		l.mu.Lock()
		quiet := len(l.tasks) == 0 && !l.busy && l.inflight == 0
		l.mu.Unlock()
		if quiet {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Timer is a one-shot timer whose callback runs on the loop.
type Timer struct {
	loop    *Loop
	timer   *time.Timer
	stopped bool // loop-owned
}

// AfterFunc runs fn on the loop after d. The returned timer must only be
// stopped from a loop task.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{loop: l}

	l.mu.Lock()
	l.inflight++
	l.mu.Unlock()

	t.timer = time.AfterFunc(d, func() {
		defer l.release()
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Stop cancels the timer. After Stop returns, fn will not run even if the
// underlying timer already fired and its task is queued.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	if t.timer.Stop() {
		t.loop.release()
	}
}

// Ticker runs a callback on the loop at a fixed interval.
type Ticker struct {
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
	stopped bool // loop-owned
}

// Every runs fn on the loop every d until the ticker is stopped. Ticks are
// dropped rather than queued while a previous tick is still pending.
func (l *Loop) Every(d time.Duration, fn func()) *Ticker {
	t := &Ticker{ticker: time.NewTicker(d), done: make(chan struct{})}

	go func() {
		var pending sync.Mutex
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				if !pending.TryLock() {
					continue
				}
				l.Post(func() {
					defer pending.Unlock()
					if t.stopped {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}

// Stop halts the ticker. Must be called from a loop task; a tick already
// queued will not run fn.
func (t *Ticker) Stop() {
	if t == nil {
		return
	}
	t.stopped = true
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
