// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package runqueue serializes units of work onto a single dedicated
// worker goroutine. Tasks submitted from any goroutine run one at a
// time, in submission order, with optional head-of-queue insertion for
// urgent work, blocking submission for callers that need the result of
// a task, and cooperative suspend/resume of the worker between tasks.
package runqueue

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// State is the scheduling state of a queue's worker.
type State uint32

const (
	// StateSuspended means the worker is parked and will not pick up
	// pending tasks until Resume is called. A queue that has not been
	// started, or whose worker has exited, also reports StateSuspended.
	StateSuspended State = iota

	// StateSuspending means suspension has been requested but the worker
	// has not yet reached the safe point between two tasks.
	StateSuspending

	// StateRunning means the worker is executing tasks, or waiting for
	// one to be submitted.
	StateRunning
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateSuspended:
		return "SUSPENDED"
	case StateSuspending:
		return "SUSPENDING"
	case StateRunning:
		return "RUNNING"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// SuspendOutcome reports how a SuspendAndWait call concluded.
type SuspendOutcome int

const (
	// OutcomeSuspended means the worker reached StateSuspended.
	OutcomeSuspended SuspendOutcome = iota

	// OutcomeResumed means a concurrent Resume overtook the suspension
	// request before the worker parked, and the queue kept running.
	OutcomeResumed
)

// String returns the string representation of a SuspendOutcome.
func (o SuspendOutcome) String() string {
	switch o {
	case OutcomeSuspended:
		return "suspended"
	case OutcomeResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// queueSeq numbers queues created without an explicit name.
var queueSeq atomic.Uint64

// Queue runs submitted tasks one at a time, in order, on a dedicated
// worker goroutine. Any number of goroutines may submit tasks and
// drive suspend/resume concurrently; the worker alone executes task
// bodies, so tasks never race with each other.
//
// The zero value is not usable; create queues with New and launch the
// worker with Start.
type Queue struct {
	name   string       // Human-readable name used in log output
	logger *slog.Logger // Logger instance

	lockOSThread bool // Pin the worker goroutine to an OS thread

	// state holds the current State. Transitions happen under stateMu so
	// that stateCond can carry the suspend/resume waits; reads are
	// lock-free.
	state     atomic.Uint32
	stateMu   sync.Mutex
	stateCond *sync.Cond

	list *taskList // Pending tasks, with their own lock and empty-wait

	handlerMu sync.Mutex // Guards handler, held across its callbacks
	handler   RunHandler

	workerID atomic.Uint64 // Goroutine id of the worker, zero when not running
	launched atomic.Bool   // Start has been called

	readyCh chan struct{} // Closed once the worker has entered its loop
	deadCh  chan struct{} // Closed when the worker exits
	halted  atomic.Bool   // Stop has been requested
	deadErr error         // Why the worker exited; written before deadCh closes
}

// New creates a queue with the given options. The worker goroutine is
// not launched until Start is called.
func New(opts ...func(*Queue)) *Queue {
	q := &Queue{
		name:    fmt.Sprintf("runqueue-%d", queueSeq.Add(1)),
		logger:  slog.Default(),
		list:    newTaskList(),
		readyCh: make(chan struct{}),
		deadCh:  make(chan struct{}),
	}
	q.stateCond = sync.NewCond(&q.stateMu)

	// Apply configuration options
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Started reports whether the worker goroutine is running. It is false
// before Start returns and becomes false again once the worker exits,
// whether through Stop or a fatal task panic.
func (q *Queue) Started() bool {
	return q.workerID.Load() != 0
}

// State returns a snapshot of the queue's scheduling state. The value
// may be stale by the time the caller acts on it; suspend the queue
// first when a stable view is required.
func (q *Queue) State() State {
	return State(q.state.Load())
}

// Start launches the worker goroutine and blocks until it has entered
// its scheduling loop. After Start returns nil, Started reports true
// and tasks may be submitted from any goroutine. A queue starts at
// most once: Start returns ErrAlreadyStarted on every later call,
// including after Stop.
func (q *Queue) Start() error {
	if !q.launched.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go q.run()
	<-q.readyCh
	q.logger.Debug("Queue started", "queue", q.name)
	return nil
}

// Stop terminates the worker after the task it is currently running,
// if any, has finished. Pending tasks are abandoned and every blocked
// AndWait submitter is released with an error wrapping ErrNotStarted.
// Stop is terminal: a stopped queue cannot be restarted.
//
// Stop returns ErrNotStarted when the queue never started or has
// already stopped, and ErrInvalidCaller when called from a task, which
// would deadlock waiting for the worker to exit.
func (q *Queue) Stop() error {
	if id := q.workerID.Load(); id != 0 && id == goroutineID() {
		return ErrInvalidCaller
	}
	if !q.launched.Load() || q.dead() {
		return ErrNotStarted
	}
	q.halted.Store(true)

	// Wake the worker out of either of its two waits.
	q.stateMu.Lock()
	q.stateCond.Broadcast()
	q.stateMu.Unlock()
	q.list.wake()

	<-q.deadCh
	q.logger.Debug("Queue stopped", "queue", q.name)
	return nil
}

// Submit appends a task to the tail of the pending list and wakes the
// worker if it is idle. It never blocks on task execution.
func (q *Queue) Submit(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	if !q.Started() {
		return ErrNotStarted
	}
	q.list.add(newLink(t))
	return nil
}

// SubmitAndWait appends a task to the tail of the pending list and
// blocks the caller until the task has run. The wait rides the task's
// own completion signal, so a blocked caller never delays other
// submitters.
//
// SubmitAndWait returns ErrInvalidCaller when invoked from the queue's
// own worker, which could never finish the task it would be waiting
// for. If the worker exits before the task runs, the task is abandoned
// and an error wrapping ErrNotStarted is returned.
func (q *Queue) SubmitAndWait(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	if err := q.waitGuard(); err != nil {
		return err
	}
	l := newWaitLink(t)
	q.list.add(l)
	return q.await(l)
}

// SubmitUrgent inserts a task at the head of the pending list, ahead
// of every task that has not yet started. The task the worker is
// currently running is unaffected: urgent submission changes which
// task runs next, it never interrupts. Consecutive urgent submissions
// run newest first.
func (q *Queue) SubmitUrgent(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	if !q.Started() {
		return ErrNotStarted
	}
	q.list.addFirst(newLink(t))
	return nil
}

// SubmitUrgentAndWait inserts a task at the head of the pending list
// and blocks the caller until it has run. Failure modes are those of
// SubmitAndWait.
func (q *Queue) SubmitUrgentAndWait(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	if err := q.waitGuard(); err != nil {
		return err
	}
	l := newWaitLink(t)
	q.list.addFirst(l)
	return q.await(l)
}

// waitGuard rejects blocking submissions that either cannot be served
// or would deadlock the worker.
func (q *Queue) waitGuard() error {
	id := q.workerID.Load()
	if id == 0 {
		return ErrNotStarted
	}
	if id == goroutineID() {
		return ErrInvalidCaller
	}
	return nil
}

// await blocks until the link's task has run or the worker has exited.
func (q *Queue) await(l *link) error {
	select {
	case <-l.done:
		return nil
	case <-q.deadCh:
		// The task may have completed right as the worker exited.
		select {
		case <-l.done:
			return nil
		default:
		}
		return q.deadErr
	}
}

// Suspend asks the worker to stop picking up tasks once the one it is
// currently running, if any, has finished. It returns immediately; the
// queue reaches StateSuspended only when the worker parks. If the
// queue is already suspended, or a suspension is already in flight,
// Suspend is a no-op.
func (q *Queue) Suspend() error {
	if !q.Started() {
		return ErrNotStarted
	}
	q.stateMu.Lock()
	defer q.stateMu.Unlock()
	if State(q.state.Load()) == StateRunning {
		q.state.Store(uint32(StateSuspending))
		// An idle worker sits in the list's empty-wait; poke it so it
		// revisits the state machine.
		q.list.wake()
	}
	return nil
}

// SuspendAndWait requests suspension like Suspend, then blocks until
// the worker has parked or a concurrent Resume has overtaken the
// request. The outcome reports which of the two happened; losing the
// race to Resume is an expected result, not an error. When the
// outcome is OutcomeSuspended the queue is in StateSuspended and no
// task will run before Resume is called.
func (q *Queue) SuspendAndWait() (SuspendOutcome, error) {
	if !q.Started() {
		return OutcomeResumed, ErrNotStarted
	}
	q.stateMu.Lock()
	defer q.stateMu.Unlock()

	if State(q.state.Load()) == StateRunning {
		q.state.Store(uint32(StateSuspending))
		q.list.wake()
	}
	for State(q.state.Load()) == StateSuspending {
		q.stateCond.Wait()
	}
	if q.dead() {
		return OutcomeResumed, q.deadErr
	}
	if State(q.state.Load()) == StateSuspended {
		return OutcomeSuspended, nil
	}
	return OutcomeResumed, nil
}

// Resume lets a suspended or suspending queue run again. The worker
// picks up exactly where it left off; no pending task is skipped or
// repeated. Resuming a running queue is a no-op.
func (q *Queue) Resume() error {
	if !q.Started() {
		return ErrNotStarted
	}
	q.stateMu.Lock()
	defer q.stateMu.Unlock()
	if State(q.state.Load()) != StateRunning {
		q.state.Store(uint32(StateRunning))
		q.stateCond.Broadcast()
	}
	return nil
}

// Pending returns a snapshot of the tasks that have been submitted but
// not yet started, in the order the worker would run them. The
// snapshot is only stable if the caller suspends the queue first;
// otherwise the worker may already have moved on.
func (q *Queue) Pending() ([]Task, error) {
	if !q.Started() {
		return nil, ErrNotStarted
	}
	q.list.mu.Lock()
	defer q.list.mu.Unlock()
	return q.list.tasks(), nil
}

// SetHandler installs or replaces the queue's lifecycle observer. A
// nil handler removes it. SetHandler blocks while a callback on the
// previous handler is in flight.
func (q *Queue) SetHandler(h RunHandler) {
	q.handlerMu.Lock()
	q.handler = h
	q.handlerMu.Unlock()
}

// Handler returns the currently installed lifecycle observer, or nil.
func (q *Queue) Handler() RunHandler {
	q.handlerMu.Lock()
	defer q.handlerMu.Unlock()
	return q.handler
}

// dead reports whether the worker has exited.
func (q *Queue) dead() bool {
	select {
	case <-q.deadCh:
		return true
	default:
		return false
	}
}

func (q *Queue) fireTaskInvoked(t Task) {
	q.handlerMu.Lock()
	defer q.handlerMu.Unlock()
	if q.handler != nil {
		q.handler.TaskInvoked(q, t)
	}
}

func (q *Queue) fireSuspended() {
	q.handlerMu.Lock()
	defer q.handlerMu.Unlock()
	if q.handler != nil {
		q.handler.ExecutionSuspended(q)
	}
}

func (q *Queue) fireResumed() {
	q.handlerMu.Lock()
	defer q.handlerMu.Unlock()
	if q.handler != nil {
		q.handler.ExecutionResumed(q)
	}
}

// run is the worker loop. It owns all task execution and every
// transition into and out of StateSuspended.
func (q *Queue) run() {
	if q.lockOSThread {
		// Pin to an OS thread for tasks that drive thread-affine
		// resources such as cgo script engines.
		runtime.LockOSThread()
	}

	defer func() {
		if r := recover(); r != nil {
			// A panic escaping a task or a handler callback is fatal to
			// the queue. The queue stays dead; isolation is the
			// submitter's job.
			q.deadErr = fmt.Errorf("task panic: %v: %w", r, ErrNotStarted)
			q.logger.Error("Task panic, terminating worker",
				"queue", q.name,
				"panic", r,
				"stack", string(debug.Stack()))
		} else {
			q.deadErr = fmt.Errorf("queue stopped: %w", ErrNotStarted)
		}
		q.halted.Store(true)
		q.workerID.Store(0)

		// Park the queue and publish the exit in one step, so both are
		// visible by the time Stop or any released waiter returns.
		q.stateMu.Lock()
		q.state.Store(uint32(StateSuspended))
		close(q.deadCh)
		q.stateCond.Broadcast()
		q.stateMu.Unlock()
		q.list.wake()

		q.logger.Debug("Worker exited", "queue", q.name)
	}()

	// Publish the worker identity, then release the goroutine blocked
	// in Start.
	q.workerID.Store(goroutineID())
	q.stateMu.Lock()
	q.state.Store(uint32(StateRunning))
	q.stateMu.Unlock()
	close(q.readyCh)

	for {
		if q.halted.Load() {
			return
		}

		q.stateMu.Lock()
		if State(q.state.Load()) != StateRunning {
			q.state.Store(uint32(StateSuspended))
			// Wake SuspendAndWait callers before parking.
			q.stateCond.Broadcast()
			q.stateMu.Unlock()

			q.logger.Debug("Queue suspended", "queue", q.name)
			q.fireSuspended()

			q.stateMu.Lock()
			for State(q.state.Load()) != StateRunning {
				if q.halted.Load() {
					q.stateMu.Unlock()
					return
				}
				// A Resume immediately followed by another Suspend can
				// put the state back to SUSPENDING while the worker was
				// parked; reassert SUSPENDED so suspend waiters see it.
				if State(q.state.Load()) == StateSuspending {
					q.state.Store(uint32(StateSuspended))
					q.stateCond.Broadcast()
				}
				q.stateCond.Wait()
			}
			q.stateMu.Unlock()

			q.logger.Debug("Queue resumed", "queue", q.name)
			q.fireResumed()
		} else {
			q.stateMu.Unlock()
		}

		q.list.mu.Lock()
		if State(q.state.Load()) == StateSuspending {
			// A suspension request arrived while this iteration was
			// already past the state check; honor it before dequeuing.
			q.list.mu.Unlock()
			continue
		}
		l := q.list.pop()
		if l == nil {
			// A stop request that landed after the halted check at the
			// top of the loop has already done its broadcast; parking
			// now would never be woken. Stop broadcasts under this
			// mutex, so re-checking here closes the window.
			if q.halted.Load() {
				q.list.mu.Unlock()
				return
			}
			// Nothing to run. Park until a submission, a suspension
			// request or a stop request arrives.
			q.list.cond.Wait()
			q.list.mu.Unlock()
			continue
		}
		q.list.mu.Unlock()

		l.task.Run()
		l.release()
		q.fireTaskInvoked(l.task)
	}
}

// WithName sets the queue name used in log output.
func WithName(name string) func(*Queue) {
	return func(q *Queue) {
		if name != "" {
			q.name = name
		}
	}
}

// WithLogger configures the logger for the queue.
func WithLogger(logger *slog.Logger) func(*Queue) {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithHandler installs the lifecycle observer at construction time.
func WithHandler(h RunHandler) func(*Queue) {
	return func(q *Queue) {
		q.handler = h
	}
}

// WithLockOSThread pins the worker goroutine to an OS thread for the
// queue's lifetime.
func WithLockOSThread() func(*Queue) {
	return func(q *Queue) {
		q.lockOSThread = true
	}
}
