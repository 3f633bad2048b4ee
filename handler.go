// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runqueue

// RunHandler observes a queue's lifecycle. All callbacks run
// synchronously on the worker goroutine while the handler mutex is
// held, so implementations must return promptly and must not call
// back into blocking queue operations. A panic in a callback
// terminates the worker the same way a task panic does.
type RunHandler interface {
	// TaskInvoked is called after a task has run and any blocked
	// submitter has been released.
	TaskInvoked(q *Queue, t Task)

	// ExecutionSuspended is called once each time the worker parks in
	// the suspended state.
	ExecutionSuspended(q *Queue)

	// ExecutionResumed is called when the worker leaves the suspended
	// state and before it picks up the next task.
	ExecutionResumed(q *Queue)
}
