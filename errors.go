// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runqueue

import "errors"

var (
	// ErrNotStarted is returned by operations that need an active worker
	// when the queue has not been started or its worker has exited.
	ErrNotStarted = errors.New("queue not started or worker exited")

	// ErrAlreadyStarted is returned by Start when the queue has already
	// been started, including after it has been stopped.
	ErrAlreadyStarted = errors.New("queue already started")

	// ErrInvalidCaller is returned by blocking operations that would
	// deadlock the queue when called from its own worker goroutine.
	ErrInvalidCaller = errors.New("blocking call from the queue worker")

	// ErrNilTask is returned by the submission operations for a nil task.
	ErrNilTask = errors.New("nil task")
)
