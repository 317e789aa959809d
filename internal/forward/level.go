package forward

import (
	"sync"

	"github.com/born-ml/forwardad/internal/tensor"
)

// Level is one live forward AD nesting level.
//
// It owns the set of Grads holding a value for its index. Holding the Grad
// pointers keeps them reachable until the level has reset them.
type Level struct {
	idx uint64

	mu       sync.Mutex
	grads    map[*Grad]struct{}
	released bool
}

func newLevel(idx uint64) *Level {
	return &Level{
		idx:   idx,
		grads: make(map[*Grad]struct{}),
	}
}

// Index returns the level's index. It identifies the level only while the
// level is live.
func (l *Level) Index() uint64 {
	return l.idx
}

// Len returns the number of registered Grads.
func (l *Level) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.grads)
}

// Has reports whether g is registered with the level.
func (l *Level) Has(g *Grad) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.grads[g]
	return ok
}

// attach registers g and stores value in it.
//
// The store happens under the level lock so that it is ordered against
// drain: either it lands before drain and drain removes it, or it sees the
// level released and fails.
func (l *Level) attach(g *Grad, value *tensor.RawTensor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return unknownLevel("set", l.idx)
	}
	l.grads[g] = struct{}{}
	g.store(l.idx, value)
	return nil
}

// detach unregisters g and drops its entry. A released level has already
// done both, so detaching from it is a no-op.
func (l *Level) detach(g *Grad) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return
	}
	if _, ok := l.grads[g]; !ok {
		return
	}
	delete(l.grads, g)
	g.Forget(l.idx)
}

// drain marks the level released and resets its entry on every registered
// Grad. It returns how many Grads were reset.
func (l *Level) drain() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.released = true
	n := len(l.grads)
	for g := range l.grads {
		// Takes g's lock. Level then Grad is the only nesting allowed.
		g.Forget(l.idx)
	}
	clear(l.grads)
	return n
}
