// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package gojaengine adapts the goja JavaScript engine to the
// runqueue.ScriptEngine interface. goja is pure Go, so this engine
// works on every platform the queue does.
package gojaengine

import (
	"fmt"

	runqueue "github.com/buke/run-queue"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// Engine implements runqueue.ScriptEngine on a goja runtime. The
// runtime is not goroutine safe; the engine relies on the script host
// to confine every call to the queue worker, and needs no locking or
// event loop of its own.
type Engine struct {
	vm *goja.Runtime

	maxCallStackSize int
	enableConsole    bool
	enableRequire    bool
	fieldNameMapper  goja.FieldNameMapper
}

var _ runqueue.ScriptEngine = (*Engine)(nil)

// NewFactory returns a runqueue.EngineFactory that creates goja
// engines with the given options.
func NewFactory(opts ...Option) runqueue.EngineFactory {
	return func() (runqueue.ScriptEngine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates a new goja engine instance.
func newEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		// Expose Go struct fields under their json tag names by default.
		fieldNameMapper: goja.TagFieldNameMapper("json", true),
	}
	for _, opt := range opts {
		opt(e)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(e.fieldNameMapper)
	if e.maxCallStackSize > 0 {
		vm.SetMaxCallStackSize(e.maxCallStackSize)
	}
	if e.enableRequire || e.enableConsole {
		// console is itself a module; the registry has to be in place
		// before it can be enabled.
		new(require.Registry).Enable(vm)
	}
	if e.enableConsole {
		console.Enable(vm)
	}

	e.vm = vm
	return e, nil
}

// Eval evaluates a script in the engine's global environment.
func (e *Engine) Eval(script *runqueue.Script) error {
	if script == nil {
		return fmt.Errorf("nil script")
	}
	if e.vm == nil {
		return fmt.Errorf("engine is closed")
	}
	if _, err := e.vm.RunScript(script.Name, script.Source); err != nil {
		return fmt.Errorf("failed to evaluate script %s: %w", script.Name, err)
	}
	return nil
}

// Call invokes a global function by name and exports its result to
// plain Go values. A settled promise is unwrapped first; goja runs
// promise jobs when the call stack empties, so a promise still pending
// here would never settle and is reported as an error.
func (e *Engine) Call(fn string, args ...any) (any, error) {
	if e.vm == nil {
		return nil, fmt.Errorf("engine is closed")
	}
	callable, ok := goja.AssertFunction(e.vm.GlobalObject().Get(fn))
	if !ok {
		return nil, fmt.Errorf("%s is not a function", fn)
	}

	gojaArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		gojaArgs[i] = e.vm.ToValue(arg)
	}

	res, err := callable(goja.Undefined(), gojaArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", fn, err)
	}

	exported := res.Export()
	if p, ok := exported.(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("js execution error: %s", p.Result().String())
		case goja.PromiseStateFulfilled:
			return p.Result().Export(), nil
		default:
			return nil, fmt.Errorf("%s returned a pending promise", fn)
		}
	}
	return exported, nil
}

// Close releases the runtime. goja has no explicit teardown; dropping
// the reference is enough.
func (e *Engine) Close() error {
	e.vm = nil
	return nil
}
