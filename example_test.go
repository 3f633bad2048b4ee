// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runqueue_test

import (
	"fmt"

	runqueue "github.com/buke/run-queue"
	quickjsengine "github.com/buke/run-queue/engines/quickjs-go"
)

// Example runs a script host over the QuickJS engine: boot a script,
// call a function defined by it, tear everything down.
func Example() {
	bootScript := &runqueue.Script{
		Name:   "hello.js",
		Source: `function hello(name) { return "Hello, " + name + "!"; }`,
	}

	host, err := runqueue.NewScriptHost(
		runqueue.WithEngine(quickjsengine.NewFactory(
			quickjsengine.WithEnableModuleImport(true),
			quickjsengine.WithCanBlock(true),
		)),
		runqueue.WithBootScripts(bootScript),
	)
	if err != nil {
		fmt.Printf("Failed to create host: %v\n", err)
		return
	}

	// Start the queue worker and boot the engine on it
	if err := host.Start(); err != nil {
		fmt.Printf("Failed to start host: %v\n", err)
		return
	}

	result, err := host.Call("hello", "World")
	if err != nil {
		fmt.Printf("Call error: %v\n", err)
		return
	}
	fmt.Printf("Result: %v\n", result)

	if err := host.Close(); err != nil {
		fmt.Printf("Failed to close host: %v\n", err)
		return
	}

	// Output:
	// Result: Hello, World!
}

// ExampleQueue_SubmitUrgent shows urgent work jumping ahead of queued
// tasks. The queue is suspended first so the pending order is fixed
// before the worker drains it.
func ExampleQueue_SubmitUrgent() {
	q := runqueue.New()
	if err := q.Start(); err != nil {
		fmt.Printf("Failed to start queue: %v\n", err)
		return
	}
	defer q.Stop()

	if _, err := q.SuspendAndWait(); err != nil {
		fmt.Printf("Failed to suspend queue: %v\n", err)
		return
	}

	q.Submit(runqueue.TaskFunc(func() { fmt.Println("render-1") }))
	q.Submit(runqueue.TaskFunc(func() { fmt.Println("render-2") }))
	q.SubmitUrgent(runqueue.TaskFunc(func() { fmt.Println("interactive") }))

	q.Resume()
	// Block until the backlog has drained.
	q.SubmitAndWait(runqueue.TaskFunc(func() {}))

	// Output:
	// interactive
	// render-1
	// render-2
}
