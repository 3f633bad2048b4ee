// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runqueue

// Task is an opaque unit of work executed on a queue's worker
// goroutine. Run is called with no queue locks held, and the queue
// keeps no reference to the task after Run returns. The queue assumes
// nothing about data shared between tasks; that is the submitter's
// responsibility.
type Task interface {
	Run()
}

// TaskFunc adapts an ordinary function to the Task interface.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() { f() }
