package tex2html

import (
	"errors"
	"runtime"
	"sync"
)

// Pool sizing bounds. Every session can hold an engine subprocess, so
// the automatic size stays well below the CPU count.
const (
	MinPoolSize = 1
	MaxPoolSize = 8
)

// SessionPool hands out up to a fixed number of Sessions for batch
// conversion. Sessions are built on demand: a pool that only ever
// converts two files never pays for eight guardians. Acquire blocks
// once every session is out.
type SessionPool struct {
	capacity int
	opts     []Option

	idle chan *Session

	mu      sync.Mutex
	all     []*Session
	spawned int
	closed  bool
}

// NewSessionPool creates a pool of at most n sessions, each configured
// with opts. Values below MinPoolSize are raised to it.
func NewSessionPool(n int, opts ...Option) *SessionPool {
	if n < MinPoolSize {
		n = MinPoolSize
	}
	return &SessionPool{
		capacity: n,
		opts:     opts,
		idle:     make(chan *Session, n),
	}
}

// Acquire returns an idle session, building a new one while the pool is
// under capacity. At capacity it waits for a Release.
func (p *SessionPool) Acquire() *Session {
	select {
	case sess := <-p.idle:
		return sess
	default:
	}

	if sess := p.spawn(); sess != nil {
		return sess
	}
	return <-p.idle
}

// spawn builds one session if the pool is open and under capacity.
func (p *SessionPool) spawn() *Session {
	p.mu.Lock()
	if p.closed || p.spawned >= p.capacity {
		p.mu.Unlock()
		return nil
	}
	p.spawned++
	p.mu.Unlock()

	sess := NewSession(p.opts...)

	p.mu.Lock()
	p.all = append(p.all, sess)
	p.mu.Unlock()
	return sess
}

// Release returns a session to the pool. After Close the session is
// simply dropped; Close already owns its shutdown.
func (p *SessionPool) Release(sess *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	// idle has one slot per possible session, so this send cannot block
	// while the lock is held.
	p.idle <- sess
}

// Close rejects further releases and shuts down every session the pool
// built. Safe to call more than once.
func (p *SessionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	all := p.all
	p.all = nil
	p.mu.Unlock()

	var errs []error
	for _, sess := range all {
		if err := sess.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size reports the pool capacity.
func (p *SessionPool) Size() int {
	return p.capacity
}

// ResolvePoolSize picks a worker count: the explicit value when given,
// otherwise half the usable CPUs clamped to the pool bounds. GOMAXPROCS
// reflects container quotas through automaxprocs.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	n := runtime.GOMAXPROCS(0) / 2
	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
