// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"testing"

	runqueue "github.com/buke/run-queue"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

func TestWithMaxCallStackSize(t *testing.T) {
	engine, err := newEngine(WithMaxCallStackSize(128))
	require.NoError(t, err)
	defer engine.Close()

	require.Equal(t, 128, engine.maxCallStackSize)

	// Unbounded recursion must hit the configured limit instead of
	// exhausting the Go stack.
	script := &runqueue.Script{
		Name:   "recurse.js",
		Source: "function recurse() { return recurse(); }",
	}
	require.NoError(t, engine.Eval(script))
	_, err = engine.Call("recurse")
	require.Error(t, err)
}

func TestWithConsole(t *testing.T) {
	engine, err := newEngine(WithConsole())
	require.NoError(t, err)
	defer engine.Close()

	v := engine.vm.Get("console")
	require.NotNil(t, v)
	require.False(t, goja.IsUndefined(v))
}

func TestWithRequire(t *testing.T) {
	engine, err := newEngine(WithRequire())
	require.NoError(t, err)
	defer engine.Close()

	v := engine.vm.Get("require")
	require.NotNil(t, v)
	require.False(t, goja.IsUndefined(v))
}

func TestWithFieldNameMapper(t *testing.T) {
	// Uppercase mapper instead of the default json-tag mapping.
	engine, err := newEngine(WithFieldNameMapper(goja.UncapFieldNameMapper()))
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "field.js",
		Source: "function pick(v) { return v.label; }",
	}
	require.NoError(t, engine.Eval(script))

	type item struct {
		Label string `json:"name"`
	}
	result, err := engine.Call("pick", item{Label: "uncapped"})
	require.NoError(t, err)
	require.Equal(t, "uncapped", result)
}
