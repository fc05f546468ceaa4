package asyncwork

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker is anything that can opportunistically run its pending work.
type Worker interface {
	TryWork() bool
}

// Pool dispatches the registered workers onto background goroutines once per
// frame. The owner joins them with EnsureCompletion before touching any
// state the workers read.
type Pool struct {
	log         zerolog.Logger
	parallelism int

	mu      sync.Mutex
	workers []Worker
	done    chan struct{}
	err     error
}

// NewPool returns a pool running at most parallelism workers at once
// (values below 1 mean one).
func NewPool(logger zerolog.Logger, parallelism int) *Pool {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Pool{log: logger, parallelism: parallelism}
}

// Register adds w to the set dispatched by StartBackground.
func (p *Pool) Register(w Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, w)
}

// StartBackground runs TryWork on every registered worker in the background.
// It is a no-op while a previous dispatch has not been joined.
func (p *Pool) StartBackground() {
	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return
	}
	workers := append([]Worker(nil), p.workers...)
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		g := new(errgroup.Group)
		g.SetLimit(p.parallelism)
		for _, w := range workers {
			w := w
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						p.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("asyncwork worker panic")
						err = panicError{where: "pool worker", value: r}
					}
				}()
				w.TryWork()
				return nil
			})
		}
		err := g.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}()
}

// RunSynchronous runs every registered worker on the calling goroutine.
func (p *Pool) RunSynchronous() {
	p.mu.Lock()
	workers := append([]Worker(nil), p.workers...)
	p.mu.Unlock()
	for _, w := range workers {
		w.TryWork()
	}
}

// IsDone reports whether no background dispatch is outstanding.
func (p *Pool) IsDone() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// EnsureCompletion blocks until the current dispatch has finished and
// returns the first worker failure, if any.
func (p *Pool) EnsureCompletion() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	p.err = nil
	p.done = nil
	return err
}
