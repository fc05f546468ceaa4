package asyncwork

import (
	"sync"
	"sync/atomic"
)

// ShouldAbortFunc is polled by long running work at loop granularity.
type ShouldAbortFunc func() bool

// Job is one schedulable unit of background work with an abort flag. Work
// that observes the flag stops early; whatever it produced before that point
// stays valid.
type Job struct {
	work func(ShouldAbortFunc)

	aborted atomic.Bool
	mu      sync.Mutex
	done    chan struct{}
	err     error
}

// NewJob wraps work. work receives the abort predicate to poll.
func NewJob(work func(ShouldAbortFunc)) *Job {
	return &Job{work: work}
}

// Abort asks the running work to stop at its next check.
func (j *Job) Abort() { j.aborted.Store(true) }

// IsAborted reports whether Abort was called since the last start.
func (j *Job) IsAborted() bool { return j.aborted.Load() }

// StartBackground runs the work on a new goroutine.
func (j *Job) StartBackground() error {
	done, err := j.begin()
	if err != nil {
		return err
	}
	go j.run(done)
	return nil
}

// StartSynchronous runs the work on the calling goroutine.
func (j *Job) StartSynchronous() error {
	done, err := j.begin()
	if err != nil {
		return err
	}
	j.run(done)
	return j.EnsureCompletion()
}

func (j *Job) begin() (chan struct{}, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done != nil {
		select {
		case <-j.done:
		default:
			return nil, ErrJobRunning
		}
	}
	j.aborted.Store(false)
	j.err = nil
	j.done = make(chan struct{})
	return j.done, nil
}

func (j *Job) run(done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			j.mu.Lock()
			j.err = panicError{where: "job", value: r}
			j.mu.Unlock()
		}
	}()
	j.work(j.IsAborted)
}

// IsDone reports whether the job is idle.
func (j *Job) IsDone() bool {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
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

// EnsureCompletion waits for the current run and returns a recovered panic,
// if any. A panic is reported once.
func (j *Job) EnsureCompletion() error {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.err
	j.err = nil
	return err
}
