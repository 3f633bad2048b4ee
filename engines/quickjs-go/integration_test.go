// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"testing"

	runqueue "github.com/buke/run-queue"
	"github.com/stretchr/testify/require"
)

// TestIntegration_QuickJSHost runs a tuned QuickJS engine through a
// script host, including an engine reload.
func TestIntegration_QuickJSHost(t *testing.T) {
	host, err := runqueue.NewScriptHost(
		runqueue.WithEngine(NewFactory(
			WithMemoryLimit(64*1024*1024),
			WithCanBlock(true),
		)),
		runqueue.WithBootScripts(&runqueue.Script{
			Name:   "hello.js",
			Source: `function hello(name) { return "Hello, " + name + "!"; }`,
		}),
	)
	require.NoError(t, err)
	require.NotNil(t, host)

	require.NoError(t, host.Start())
	defer host.Close()

	result, err := host.Call("hello", "QuickJS")
	require.NoError(t, err)
	require.Equal(t, "Hello, QuickJS!", result)

	// Reload replaces the engine and its boot scripts wholesale.
	require.NoError(t, host.Reload(&runqueue.Script{
		Name:   "hola.js",
		Source: `function hello(name) { return "Hola, " + name + "!"; }`,
	}))

	result, err = host.Call("hello", "QuickJS")
	require.NoError(t, err)
	require.Equal(t, "Hola, QuickJS!", result)
}
