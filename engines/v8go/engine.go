//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package v8engine adapts the V8 engine to the runqueue.ScriptEngine
// interface. V8 is cgo backed and unsupported on Windows; the package
// carries the matching build constraint.
package v8engine

import (
	"encoding/json"
	"fmt"

	runqueue "github.com/buke/run-queue"
	"github.com/tommie/v8go"
)

var (
	// Function variables so isolate and context creation can be mocked
	// in tests.
	v8NewIsolate  = v8go.NewIsolate
	v8NewContext  = v8go.NewContext
	v8NewValue    = v8go.NewValue
	jsonUnmarshal = json.Unmarshal
)

// Option configures an Engine at construction time. Options run after
// the isolate and context exist, so custom ones can reach both through
// the Engine's exported fields.
type Option func(*Engine) error

// Engine implements runqueue.ScriptEngine on a V8 isolate and context.
type Engine struct {
	// Iso is the V8 isolate, a single-threaded VM instance. Exposed to
	// allow for advanced custom options.
	Iso *v8go.Isolate

	// Ctx is the V8 context, the execution environment. Exposed to
	// allow for advanced custom options.
	Ctx *v8go.Context
}

var _ runqueue.ScriptEngine = (*Engine)(nil)

// NewFactory returns a runqueue.EngineFactory that creates V8 engines
// with the given options.
func NewFactory(opts ...Option) runqueue.EngineFactory {
	return func() (runqueue.ScriptEngine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates and initializes a new V8 engine instance.
func newEngine(opts ...Option) (*Engine, error) {
	iso := v8NewIsolate()
	if iso == nil {
		return nil, fmt.Errorf("failed to create v8 isolate")
	}

	ctx := v8NewContext(iso)
	if ctx == nil {
		iso.Dispose() // Clean up isolate if context creation fails
		return nil, fmt.Errorf("failed to create v8 context")
	}

	e := &Engine{Iso: iso, Ctx: ctx}

	// Apply user-provided options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return e, nil
}

// Eval evaluates a script in the engine's context.
func (e *Engine) Eval(script *runqueue.Script) error {
	if script == nil {
		return fmt.Errorf("nil script")
	}
	if e.Ctx == nil {
		return fmt.Errorf("engine is closed")
	}
	if _, err := e.Ctx.RunScript(script.Source, script.Name); err != nil {
		return fmt.Errorf("failed to evaluate script %s: %w", script.Name, err)
	}
	return nil
}

// Call invokes a global function by name. Primitive arguments become
// V8 values directly; structured arguments go through JSON. The result
// comes back through JSON too, the only generic bridge v8go offers. A
// returned promise is resolved first, and a rejected promise surfaces
// as an error.
func (e *Engine) Call(fn string, args ...any) (any, error) {
	if e.Ctx == nil {
		return nil, fmt.Errorf("engine is closed")
	}

	fnVal, err := e.Ctx.RunScript(fn, "call.js")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", fn, err)
	}
	if !fnVal.IsFunction() {
		return nil, fmt.Errorf("%s is not a function", fn)
	}
	v8Fn, err := fnVal.AsFunction()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", fn, err)
	}

	v8Args := make([]v8go.Valuer, len(args))
	for i, arg := range args {
		v, verr := v8NewValue(e.Iso, arg)
		if verr != nil {
			// NewValue supports primitives only; route structured
			// arguments through JSON.
			jsonArg, jsonErr := json.Marshal(arg)
			if jsonErr != nil {
				return nil, fmt.Errorf("failed to marshal argument %d: %w", i, jsonErr)
			}
			v, verr = v8go.JSONParse(e.Ctx, string(jsonArg))
			if verr != nil {
				return nil, fmt.Errorf("failed to convert argument %d: %w", i, verr)
			}
		}
		v8Args[i] = v
	}

	retVal, err := v8Fn.Call(e.Ctx.Global(), v8Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", fn, err)
	}

	// Settle a returned promise before exporting the result.
	if retVal.IsPromise() {
		promise, perr := retVal.AsPromise()
		if perr != nil {
			return nil, fmt.Errorf("failed to inspect promise from %s: %w", fn, perr)
		}
		retVal = promise.Result()
		if promise.State() == v8go.Rejected {
			return nil, fmt.Errorf("js execution error: %s", retVal.String())
		}
	}

	if retVal.IsNullOrUndefined() {
		return nil, nil
	}
	jsonBytes, err := retVal.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result to json: %w", err)
	}
	// An empty result can happen with circular references in v8go.
	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("failed to marshal result to json: result is empty")
	}
	var result any
	if err := jsonUnmarshal(jsonBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return result, nil
}

// Close releases all resources associated with the V8 engine.
func (e *Engine) Close() error {
	if e.Ctx != nil {
		e.Ctx.Close()
		e.Ctx = nil
	}
	if e.Iso != nil {
		e.Iso.Dispose()
		e.Iso = nil
	}
	return nil
}
