package timing

import (
	"context"
	"sync"
)

// pauseGate holds an engine loop between Pause and Continue without holding
// a lock across the two calls, so a paused loop still sees its context end.
type pauseGate struct {
	lock   sync.Mutex
	resume chan struct{}
}

func (g *pauseGate) pause() {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.resume == nil {
		g.resume = make(chan struct{})
	}
}

func (g *pauseGate) cont() {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.resume != nil {
		close(g.resume)
		g.resume = nil
	}
}

// whileRunning calls fn unless the gate is paused, in which case it returns
// the channel Continue closes. fn runs under the gate lock, so nothing fn
// takes from a queue can be scheduled after a Pause that already returned.
func (g *pauseGate) whileRunning(fn func()) <-chan struct{} {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.resume != nil {
		return g.resume
	}

	fn()

	return nil
}

// waitResume blocks until resume is closed. It returns false if the context
// is done first.
func waitResume(ctx context.Context, resume <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-resume:
		return true
	}
}
