package asyncwork

import (
	"runtime"
	"sync/atomic"
)

// TaskState is the lifecycle of a Task.
type TaskState int32

const (
	Done TaskState = iota
	WorkPending
	WorkInProgress
	SyncPending
)

func (s TaskState) String() string {
	switch s {
	case Done:
		return "done"
	case WorkPending:
		return "work_pending"
	case WorkInProgress:
		return "work_in_progress"
	case SyncPending:
		return "sync_pending"
	default:
		return "unknown"
	}
}

// Task runs work(args) at most once per Init and hands the result to onSync
// on the goroutine calling TrySync.
//
//	Done -> WorkPending -> WorkInProgress -> SyncPending -> Done
//
// Init and TrySync belong to the owning (main) goroutine. TryWork may be
// called from any number of goroutines; only the first call after Init runs.
type Task[A, R any] struct {
	state  atomic.Int32
	work   func(A) R
	onSync func(R)

	args   A
	result R
	err    error
}

// NewTask builds a task in the Done state. onSync may be nil.
func NewTask[A, R any](work func(A) R, onSync func(R)) *Task[A, R] {
	return &Task[A, R]{work: work, onSync: onSync}
}

// State returns the current lifecycle state.
func (t *Task[A, R]) State() TaskState { return TaskState(t.state.Load()) }

// Init arms the task with args. It fails with ErrTaskBusy unless the task is Done.
func (t *Task[A, R]) Init(args A) error {
	if t.State() != Done {
		return ErrTaskBusy
	}
	t.args = args
	t.err = nil
	var zero R
	t.result = zero
	t.state.Store(int32(WorkPending))
	return nil
}

// TryWork executes the pending work if no one else claimed it. It reports
// whether this call ran the work.
func (t *Task[A, R]) TryWork() bool {
	if !t.state.CompareAndSwap(int32(WorkPending), int32(WorkInProgress)) {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			t.err = panicError{where: "task", value: r}
			var zero R
			t.result = zero
		}
		var zero A
		t.args = zero
		t.state.Store(int32(SyncPending))
	}()
	t.result = t.work(t.args)
	return true
}

// TrySync collects the result of the current cycle. Pending work that no
// background goroutine picked up is run inline; work already in progress is
// waited for. The callback runs before the task returns to Done. Calling
// TrySync on a Done task is a no-op.
func (t *Task[A, R]) TrySync() error {
	t.TryWork()
	for t.State() == WorkInProgress {
		runtime.Gosched()
	}
	if t.State() != SyncPending {
		return nil
	}
	result, err := t.result, t.err
	var zero R
	t.result = zero
	t.err = nil
	if err == nil && t.onSync != nil {
		t.onSync(result)
	}
	t.state.Store(int32(Done))
	return err
}
