// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"errors"
	"testing"

	runqueue "github.com/buke/run-queue"
	"github.com/stretchr/testify/require"
)

func TestNewFactory(t *testing.T) {
	factory := NewFactory()
	require.NotNil(t, factory)

	engine, err := factory()
	require.NoError(t, err)
	require.NotNil(t, engine)
	defer engine.Close()

	_, ok := engine.(*Engine)
	require.True(t, ok)
}

func TestNewFactory_OptionError(t *testing.T) {
	expectedErr := errors.New("option failed")
	failingOption := func(e *Engine) error { return expectedErr }

	_, err := NewFactory(failingOption)()
	require.Error(t, err)
	require.ErrorIs(t, err, expectedErr)
}

func TestEngine_Eval(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "init.js",
		Source: "function add(a, b) { return a + b; }",
	}
	require.NoError(t, engine.Eval(script))
}

func TestEngine_Eval_SyntaxError(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{Name: "bad.js", Source: "function () { syntax error }"}
	err = engine.Eval(script)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.js")
}

func TestEngine_Eval_NilScript(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	require.Error(t, engine.Eval(nil))
}

func TestEngine_Call(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "add.js",
		Source: "function add(a, b) { return a + b; }",
	}
	require.NoError(t, engine.Eval(script))

	result, err := engine.Call("add", 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, result)
}

func TestEngine_Call_DottedPath(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "ns.js",
		Source: "var api = { upper: function(s) { return s.toUpperCase(); } };",
	}
	require.NoError(t, engine.Eval(script))

	// Function resolution evaluates the name, so dotted paths reach
	// into nested objects.
	result, err := engine.Call("api.upper", "quick")
	require.NoError(t, err)
	require.Equal(t, "QUICK", result)
}

func TestEngine_Call_Async(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "async.js",
		Source: `async function hello(name) { return "Hello, " + name + "!"; }`,
	}
	require.NoError(t, engine.Eval(script))

	// The returned promise is awaited before the result crosses back.
	result, err := engine.Call("hello", "QuickJS")
	require.NoError(t, err)
	require.Equal(t, "Hello, QuickJS!", result)
}

func TestEngine_Call_NotFunction(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.Eval(&runqueue.Script{Name: "v.js", Source: "var notFn = 42;"}))

	_, err = engine.Call("notFn")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a function")
}

func TestEngine_Call_Throws(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "boom.js",
		Source: `function boom() { throw new Error("boom"); }`,
	}
	require.NoError(t, engine.Eval(script))

	_, err = engine.Call("boom")
	require.Error(t, err)
}

func TestEngine_Call_UndefinedResult(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "void.js",
		Source: "function nothing() {}",
	}
	require.NoError(t, engine.Eval(script))

	result, err := engine.Call("nothing")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestEngine_Close(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)

	require.NoError(t, engine.Close())
	// Close is idempotent, and a closed engine rejects further use.
	require.NoError(t, engine.Close())

	require.Error(t, engine.Eval(&runqueue.Script{Name: "x.js", Source: "1"}))
	_, err = engine.Call("f")
	require.Error(t, err)
}
