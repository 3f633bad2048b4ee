// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runqueue

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrNoEngine is returned by script operations when the host has no
// live engine, for example after a failed Reload.
var ErrNoEngine = errors.New("script engine not available")

// Script is a named piece of source code. The name identifies the
// script in engine errors and stack traces.
type Script struct {
	Name   string // Script name for debugging purposes
	Source string // Script source text
}

// ScriptEngine is an embeddable script runtime. Implementations are
// not goroutine safe and are usually thread-affine; a ScriptHost
// therefore confines every engine interaction, from construction to
// Close, to its queue's worker goroutine.
type ScriptEngine interface {
	// Eval evaluates a script for its side effects on the engine's
	// global environment.
	Eval(script *Script) error

	// Call invokes a global function by name and returns its result
	// converted to plain Go values.
	Call(fn string, args ...any) (any, error)

	// Close closes the engine and releases resources.
	Close() error
}

// EngineFactory creates a ScriptEngine instance. The factory itself
// runs on the queue worker, so the engine is born on the goroutine
// that will drive it.
type EngineFactory func() (ScriptEngine, error)

// ScriptHost binds a ScriptEngine to a Queue, turning the queue into a
// single-threaded scripting pipeline: boot scripts, calls and teardown
// all run on the worker, serialized with any other tasks submitted to
// the same queue.
type ScriptHost struct {
	queue       *Queue
	queueOpts   []func(*Queue)
	factory     EngineFactory // Script engine factory function
	callTimeout time.Duration // Bound on Eval/Call waits, zero waits forever
	logger      *slog.Logger  // Logger instance

	bootScripts atomic.Pointer[[]*Script] // Boot scripts, replaceable via Reload

	// engine is confined to the worker goroutine: written and read only
	// from inside queue tasks.
	engine ScriptEngine
}

// NewScriptHost creates a script host with the given options. An
// engine factory is required. The underlying queue is created here,
// pinned to an OS thread, but not started until Start.
func NewScriptHost(opts ...func(*ScriptHost)) (*ScriptHost, error) {
	h := &ScriptHost{
		logger: slog.Default(),
	}

	// Apply configuration options
	for _, opt := range opts {
		opt(h)
	}

	// Script engine factory is required
	if h.factory == nil {
		return nil, fmt.Errorf("script engine factory must be provided")
	}

	// cgo engines rely on thread-local state; keep the worker on one
	// OS thread.
	h.queue = New(append(h.queueOpts, WithLockOSThread())...)
	return h, nil
}

// getBootScripts returns the current boot scripts (no copy, read-only).
func (h *ScriptHost) getBootScripts() []*Script {
	p := h.bootScripts.Load()
	if p == nil {
		return nil
	}
	return *p
}

// setBootScripts atomically replaces the boot scripts.
func (h *ScriptHost) setBootScripts(scripts []*Script) {
	if len(scripts) == 0 {
		h.bootScripts.Store(nil)
		return
	}

	// Immutable copy taken once during write
	copied := make([]*Script, len(scripts))
	copy(copied, scripts)
	h.bootScripts.Store(&copied)
}

// initEngine creates the engine and evaluates the boot scripts in
// order. Runs on the worker.
func (h *ScriptHost) initEngine() error {
	engine, err := h.factory()
	if err != nil {
		return fmt.Errorf("failed to create script engine: %w", err)
	}
	for _, s := range h.getBootScripts() {
		if err := engine.Eval(s); err != nil {
			if cerr := engine.Close(); cerr != nil {
				h.logger.Error("Failed to close script engine",
					"queue", h.queue.Name(),
					"error", cerr)
			}
			return fmt.Errorf("boot script %q: %w", s.Name, err)
		}
	}
	h.engine = engine
	return nil
}

// closeEngine closes and clears the engine. Runs on the worker.
func (h *ScriptHost) closeEngine() error {
	if h.engine == nil {
		return nil
	}
	err := h.engine.Close()
	h.engine = nil
	return err
}

// Start launches the queue worker, creates the engine on it and runs
// the boot scripts in order. If the engine cannot be created or a boot
// script fails, the queue is stopped again and Start returns the
// failure.
func (h *ScriptHost) Start() error {
	if err := h.queue.Start(); err != nil {
		return err
	}
	var initErr error
	if err := h.queue.SubmitAndWait(TaskFunc(func() { initErr = h.initEngine() })); err != nil {
		return err
	}
	if initErr != nil {
		if err := h.queue.Stop(); err != nil {
			h.logger.Error("Failed to stop queue after boot failure",
				"queue", h.queue.Name(),
				"error", err)
		}
		return initErr
	}
	h.logger.Debug("Script host started", "queue", h.queue.Name())
	return nil
}

// Eval evaluates a script on the worker and blocks until it has run.
func (h *ScriptHost) Eval(script *Script) error {
	if script == nil {
		return fmt.Errorf("nil script")
	}
	var evalErr error
	if err := h.wait(TaskFunc(func() {
		if h.engine == nil {
			evalErr = ErrNoEngine
			return
		}
		evalErr = h.engine.Eval(script)
	}), false); err != nil {
		return err
	}
	return evalErr
}

// Call invokes a global function on the worker and blocks for its
// result.
func (h *ScriptHost) Call(fn string, args ...any) (any, error) {
	return h.call(fn, args, false)
}

// CallUrgent is Call with head-of-queue submission: the call runs
// ahead of every pending task, right after the one currently
// executing. Use it for interactive work that must not sit behind a
// long backlog.
func (h *ScriptHost) CallUrgent(fn string, args ...any) (any, error) {
	return h.call(fn, args, true)
}

func (h *ScriptHost) call(fn string, args []any, urgent bool) (any, error) {
	var (
		result  any
		callErr error
	)
	if err := h.wait(TaskFunc(func() {
		if h.engine == nil {
			callErr = ErrNoEngine
			return
		}
		result, callErr = h.engine.Call(fn, args...)
	}), urgent); err != nil {
		return nil, err
	}
	return result, callErr
}

// Reload tears down the engine on the worker and builds a fresh one.
// When scripts are given they replace the boot scripts first;
// otherwise the existing ones are evaluated again. On failure the host
// is left without an engine (script operations return ErrNoEngine) and
// Reload may be retried.
func (h *ScriptHost) Reload(scripts ...*Script) error {
	if len(scripts) > 0 {
		h.setBootScripts(scripts)
	}
	var reloadErr error
	if err := h.wait(TaskFunc(func() {
		if err := h.closeEngine(); err != nil {
			h.logger.Error("Failed to close script engine",
				"queue", h.queue.Name(),
				"error", err)
		}
		reloadErr = h.initEngine()
	}), false); err != nil {
		return err
	}
	return reloadErr
}

// Queue returns the underlying queue, for submitting plain tasks to
// the same pipeline and for suspending it around bulk mutations.
func (h *ScriptHost) Queue() *Queue { return h.queue }

// Close tears down the engine on the worker, ahead of pending work,
// then stops the queue. Pending tasks are abandoned.
func (h *ScriptHost) Close() error {
	var closeErr error
	if err := h.queue.SubmitUrgentAndWait(TaskFunc(func() { closeErr = h.closeEngine() })); err != nil {
		// Worker already gone; nothing left to tear down.
		return h.queue.Stop()
	}
	if err := h.queue.Stop(); err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close script engine: %w", closeErr)
	}
	h.logger.Debug("Script host closed", "queue", h.queue.Name())
	return nil
}

// wait submits the task with the blocking submission matching urgent,
// bounded by the configured call timeout. A timed-out task is
// abandoned, not canceled: it still runs in its turn on the worker,
// only the wait is released.
func (h *ScriptHost) wait(t Task, urgent bool) error {
	submit := h.queue.SubmitAndWait
	if urgent {
		submit = h.queue.SubmitUrgentAndWait
	}
	if h.callTimeout <= 0 {
		return submit(t)
	}
	// The submission happens on a helper goroutine, which would defeat
	// the queue's caller checks; apply them here first.
	if err := h.queue.waitGuard(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- submit(t) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(h.callTimeout):
		return fmt.Errorf("call timed out after %s", h.callTimeout)
	}
}

// WithEngine configures the script engine factory.
func WithEngine(factory EngineFactory) func(*ScriptHost) {
	return func(h *ScriptHost) {
		h.factory = factory
	}
}

// WithBootScripts configures the scripts evaluated, in order, whenever
// the engine is created or re-created.
func WithBootScripts(scripts ...*Script) func(*ScriptHost) {
	return func(h *ScriptHost) {
		if len(scripts) > 0 {
			h.setBootScripts(scripts)
		}
	}
}

// WithCallTimeout bounds how long Eval, Call and Reload block. Zero
// waits indefinitely.
func WithCallTimeout(timeout time.Duration) func(*ScriptHost) {
	return func(h *ScriptHost) {
		if timeout > 0 {
			h.callTimeout = timeout
		}
	}
}

// WithHostLogger configures the logger for the host itself; the
// underlying queue keeps its own, configurable through
// WithQueueOptions(WithLogger(...)).
func WithHostLogger(logger *slog.Logger) func(*ScriptHost) {
	return func(h *ScriptHost) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithQueueOptions forwards options to the host's underlying queue.
func WithQueueOptions(opts ...func(*Queue)) func(*ScriptHost) {
	return func(h *ScriptHost) {
		h.queueOpts = append(h.queueOpts, opts...)
	}
}
