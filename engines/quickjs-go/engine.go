// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package quickjsengine adapts the QuickJS engine to the
// runqueue.ScriptEngine interface. QuickJS is cgo backed and
// thread-affine: an engine must stay on the goroutine that created it,
// which the script host guarantees by confining it to the queue
// worker.
package quickjsengine

import (
	"fmt"

	quickjs "github.com/buke/quickjs-go"
	runqueue "github.com/buke/run-queue"
)

// Option configures an Engine at construction time.
type Option func(*Engine) error

// EngineOption holds configuration options for a QuickJS engine instance.
type EngineOption struct {
	Timeout            uint64 `json:"timeout"`            // Script execution timeout in seconds (0 = no timeout)
	MemoryLimit        uint64 `json:"memoryLimit"`        // Memory limit in bytes (0 = no limit)
	GCThreshold        int64  `json:"gcThreshold"`        // GC threshold in bytes (-1 = disable, 0 = default)
	MaxStackSize       uint64 `json:"maxStackSize"`       // Stack size in bytes (0 = default)
	CanBlock           bool   `json:"canBlock"`           // Whether the runtime can block (for async operations)
	EnableModuleImport bool   `json:"enableModuleImport"` // Enable ES6 module import support
	Strip              int    `json:"strip"`              // Strip level for bytecode compilation
}

// Engine implements runqueue.ScriptEngine on a QuickJS runtime and
// context. Runtime and Ctx are exposed for advanced custom options.
type Engine struct {
	Runtime *quickjs.Runtime // QuickJS runtime instance
	Ctx     *quickjs.Context // QuickJS context instance
	Option  *EngineOption    // Engine configuration options
}

var _ runqueue.ScriptEngine = (*Engine)(nil)

// NewFactory returns a runqueue.EngineFactory that creates QuickJS
// engines with the given options.
func NewFactory(options ...Option) runqueue.EngineFactory {
	return func() (runqueue.ScriptEngine, error) {
		return newEngine(options...)
	}
}

// newEngine creates a new QuickJS engine instance with the given options.
func newEngine(options ...Option) (*Engine, error) {
	rt := quickjs.NewRuntime()
	ctx := rt.NewContext()

	engine := &Engine{
		Runtime: rt,
		Ctx:     ctx,
		Option: &EngineOption{
			MemoryLimit:        0,     // No memory limit
			GCThreshold:        -1,    // No GC threshold
			Timeout:            0,     // No timeout
			MaxStackSize:       0,     // Default stack size
			CanBlock:           false, // Blocking not allowed
			EnableModuleImport: false, // Module import disabled
			Strip:              1,     // Default strip behavior
		},
	}

	// Apply additional engine options
	for _, option := range options {
		if err := option(engine); err != nil {
			engine.Close()
			return nil, err
		}
	}

	return engine, nil
}

// Eval evaluates a script in the engine's context. Top-level await is
// supported; evaluation blocks until the result settles.
func (e *Engine) Eval(script *runqueue.Script) error {
	if script == nil {
		return fmt.Errorf("nil script")
	}
	if e.Ctx == nil {
		return fmt.Errorf("engine is closed")
	}
	ret := e.Ctx.Eval(script.Source, quickjs.EvalFileName(script.Name), quickjs.EvalAwait(true))
	defer ret.Free()
	if ret.IsException() {
		return fmt.Errorf("failed to evaluate script %s: %w", script.Name, e.Ctx.Exception())
	}
	return nil
}

// Call invokes a global function by name. The function is resolved by
// evaluating its name, so dotted paths reach into nested objects.
// Arguments and result cross the boundary through the context's
// marshaling; a returned promise is awaited first.
func (e *Engine) Call(fn string, args ...any) (any, error) {
	if e.Ctx == nil {
		return nil, fmt.Errorf("engine is closed")
	}

	fnVal := e.Ctx.Eval(fn, quickjs.EvalFileName("call.js"))
	defer fnVal.Free()
	if fnVal.IsException() {
		return nil, fmt.Errorf("failed to resolve %s: %w", fn, e.Ctx.Exception())
	}
	if !fnVal.IsFunction() {
		return nil, fmt.Errorf("%s is not a function", fn)
	}

	// Marshal the arguments to JS values
	jsArgs := make([]*quickjs.Value, 0, len(args))
	defer func() {
		for _, a := range jsArgs {
			a.Free()
		}
	}()
	for i, arg := range args {
		v, err := e.Ctx.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal argument %d: %w", i, err)
		}
		jsArgs = append(jsArgs, v)
	}

	// Call the function and await the settled result
	ret := fnVal.Execute(e.Ctx.Null(), jsArgs...).Await()
	defer ret.Free()
	if ret.IsException() {
		return nil, fmt.Errorf("failed to call %s: %w", fn, e.Ctx.Exception())
	}

	if ret.IsUndefined() || ret.IsNull() {
		return nil, nil
	}
	var result any
	if err := e.Ctx.Unmarshal(ret, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return result, nil
}

// Close releases all resources associated with the engine, including
// context and runtime.
func (e *Engine) Close() error {
	if e.Ctx != nil {
		e.Ctx.Close()
		e.Ctx = nil
	}
	if e.Runtime != nil {
		e.Runtime.Close()
		e.Runtime = nil
	}
	return nil
}
