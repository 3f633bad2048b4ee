//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"testing"

	runqueue "github.com/buke/run-queue"
	"github.com/stretchr/testify/require"
)

func TestWithSetupScript(t *testing.T) {
	engine, err := newEngine(WithSetupScript("globalThis.answer = 42;"))
	require.NoError(t, err)
	defer engine.Close()

	script := &runqueue.Script{
		Name:   "use.js",
		Source: "function answerOf() { return answer; }",
	}
	require.NoError(t, engine.Eval(script))

	result, err := engine.Call("answerOf")
	require.NoError(t, err)
	require.Equal(t, float64(42), result)
}

func TestWithSetupScript_Empty(t *testing.T) {
	_, err := newEngine(WithSetupScript(""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "setup script cannot be empty")
}

func TestWithSetupScript_Invalid(t *testing.T) {
	_, err := newEngine(WithSetupScript("this is not javascript"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to run setup script")
}
