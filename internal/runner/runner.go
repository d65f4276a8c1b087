package runner

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for a loop to exit.
const DefaultStopTimeout = time.Second

// Loop owns one restartable background goroutine.
//
// Start is a no-op while the goroutine is alive. Stop cancels it and waits
// up to the stop timeout; a goroutine that overruns is abandoned and sees a
// cancelled context on its next check.
type Loop struct {
	name        string
	stopTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped loop. A non-positive stopTimeout uses DefaultStopTimeout.
func New(name string, stopTimeout time.Duration) *Loop {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Loop{name: name, stopTimeout: stopTimeout}
}

// Start launches fn in a new goroutine and returns true, or returns false if
// a previous goroutine is still running. fn must return once ctx is done.
func (l *Loop) Start(fn func(ctx context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.aliveLocked() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		fn(ctx)
	}()
	log.Printf("%s: started", l.name)
	return true
}

// Stop signals the goroutine and waits for it to exit. It reports whether the
// goroutine finished within the stop timeout. Stopping a stopped loop is a
// no-op. An abandoned goroutine still counts as running, so Start refuses to
// launch a second one until it exits.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	if !l.aliveLocked() {
		l.mu.Unlock()
		return true
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()

	timer := time.NewTimer(l.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		log.Printf("%s: stopped", l.name)
		return true
	case <-timer.C:
		log.Printf("%s: did not stop within %s, abandoning", l.name, l.stopTimeout)
		return false
	}
}

// Running reports whether the goroutine is alive. It turns false on its own
// when fn returns, including after an abandoning Stop.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aliveLocked()
}

func (l *Loop) aliveLocked() bool {
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
