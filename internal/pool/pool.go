// Package pool implements the Worker Pool (§4.5): a fixed number of
// goroutines that each pull one accepted connection at a time from a
// single-slot mailbox, guarded by a mutex and condition variable in the
// style of the teacher's hostPool (pkg/transport/transport.go), adapted
// from "pool of idle connections a caller checks out" to "pool of idle
// workers an acceptor hands work to".
package pool

import (
	"sync"

	"github.com/verifier-replay/verifier-server/internal/log"
	"github.com/verifier-replay/verifier-server/internal/session"
)

// Handler processes one accepted session to completion. It must not
// return until the connection is fully drained and closed.
type Handler func(s session.Session)

// Pool runs a fixed number of worker goroutines, each looping: wait for a
// session in the mailbox, hand it to Handler, repeat. Handing off through
// a single-slot mailbox (rather than an unbounded channel) means a slow
// acceptor naturally backpressures instead of queuing unbounded work
// (§5).
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	mailbox session.Session
	hasWork bool
	idle    int // workers waiting for work
	closed  bool

	handler Handler
	log     log.Logger
	wg      sync.WaitGroup
}

// New starts size worker goroutines that call handler for each session
// submitted via Submit.
func New(size int, handler Handler, logger log.Logger) *Pool {
	p := &Pool{handler: handler, log: logger}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		p.idle++
		p.cond.Broadcast() // wake Submit if it is waiting for an idle worker
		for !p.hasWork && !p.closed {
			p.cond.Wait()
		}
		p.idle--
		if p.closed && !p.hasWork {
			p.mu.Unlock()
			return
		}
		s := p.mailbox
		p.mailbox = nil
		p.hasWork = false
		p.mu.Unlock()
		p.cond.Broadcast() // wake Submit if it is waiting for a free slot

		if s == nil {
			continue
		}
		p.handler(s)
	}
}

// Submit hands s to the next free worker, blocking until a worker is
// ready to receive it or the pool is closed.
func (p *Pool) Submit(s session.Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for (p.hasWork || p.idle == 0) && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return false
	}
	p.mailbox = s
	p.hasWork = true
	p.cond.Broadcast()
	return true
}

// Close signals every worker to exit once idle and waits for them to
// drain. It does not forcibly terminate a worker mid-Handler.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
