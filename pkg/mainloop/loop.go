// Package mainloop is the single control goroutine that owns package
// state. Work from other goroutines reaches it through Post.
package mainloop

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
)

// Loop runs posted functions one at a time, in posting order.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}

	goid    atomic.Int64
	running atomic.Bool
}

// New creates a loop. Nothing runs until Run or Start is called.
func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Run executes posted functions on the calling goroutine until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		panic("mainloop: Run called twice")
	}
	l.goid.Store(currentGoroutineID())
	defer close(l.stopped)
	defer l.goid.Store(0)

	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.exec(fn)
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic on control loop", logger.Fields{"panic": r})
			panic(r)
		}
	}()
	fn()
}

// Post schedules fn. It never blocks and is safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// PostDelayed schedules fn after d. The returned function cancels it if
// it has not been posted yet.
func (l *Loop) PostDelayed(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Call runs fn on the loop and waits for it. It runs fn inline when
// already on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	if l.OnLoop() {
		fn()
		return nil
	}
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnLoop reports whether the caller runs on the loop goroutine.
func (l *Loop) OnLoop() bool {
	id := l.goid.Load()
	return id != 0 && id == currentGoroutineID()
}

// AssertOnLoop panics when called off the loop goroutine.
func (l *Loop) AssertOnLoop() {
	if !l.OnLoop() {
		panic("mainloop: state accessed off the control loop")
	}
}

func currentGoroutineID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
