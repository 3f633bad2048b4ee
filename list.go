// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runqueue

import "sync"

// link is a node of the pending list. A link created by one of the
// AndWait submissions carries a one-shot completion signal; a nil done
// channel marks a fire-and-forget submission. A link belongs to the
// list only between submission and the moment its task is popped for
// execution, and is never reused.
type link struct {
	task Task
	prev *link
	next *link
	done chan struct{}
}

func newLink(t Task) *link { return &link{task: t} }

func newWaitLink(t Task) *link {
	return &link{task: t, done: make(chan struct{})}
}

// release completes the link's handshake, waking the submitter blocked
// in await. Releasing the same link twice panics; the worker releases
// each popped link exactly once.
func (l *link) release() {
	if l.done != nil {
		close(l.done)
	}
}

// taskList is the pending list: a doubly-linked list with O(1) push,
// pop and unpop. The mutex guards every field; cond carries the
// worker's empty-list wait and is signaled on submission, suspension
// and stop. The structural methods below do not lock; callers hold mu.
type taskList struct {
	mu   sync.Mutex
	cond *sync.Cond

	head *link
	tail *link
	size int
}

func newTaskList() *taskList {
	tl := &taskList{}
	tl.cond = sync.NewCond(&tl.mu)
	return tl
}

// push appends l at the tail.
func (tl *taskList) push(l *link) {
	l.prev = tl.tail
	l.next = nil
	if tl.tail == nil {
		tl.head = l
	} else {
		tl.tail.next = l
	}
	tl.tail = l
	tl.size++
}

// unpop inserts l at the head, ahead of every pending link.
func (tl *taskList) unpop(l *link) {
	l.prev = nil
	l.next = tl.head
	if tl.head == nil {
		tl.tail = l
	} else {
		tl.head.prev = l
	}
	tl.head = l
	tl.size++
}

// pop removes and returns the head link, or nil when the list is empty.
func (tl *taskList) pop() *link {
	l := tl.head
	if l == nil {
		return nil
	}
	tl.head = l.next
	if tl.head == nil {
		tl.tail = nil
	} else {
		tl.head.prev = nil
	}
	l.prev = nil
	l.next = nil
	tl.size--
	return l
}

// tasks returns the pending tasks in execution order.
func (tl *taskList) tasks() []Task {
	out := make([]Task, 0, tl.size)
	for l := tl.head; l != nil; l = l.next {
		out = append(out, l.task)
	}
	return out
}

// add appends a submitted link and wakes the worker if it is parked on
// an empty list.
func (tl *taskList) add(l *link) {
	tl.mu.Lock()
	tl.push(l)
	tl.cond.Signal()
	tl.mu.Unlock()
}

// addFirst inserts a submitted link at the head and wakes the worker.
func (tl *taskList) addFirst(l *link) {
	tl.mu.Lock()
	tl.unpop(l)
	tl.cond.Signal()
	tl.mu.Unlock()
}

// wake pulls the worker out of an empty-list wait without adding work,
// so it can observe a state change or a stop request.
func (tl *taskList) wake() {
	tl.mu.Lock()
	tl.cond.Broadcast()
	tl.mu.Unlock()
}
