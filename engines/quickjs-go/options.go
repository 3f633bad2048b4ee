// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"fmt"
)

// WithGCThreshold sets the garbage collection threshold for the engine.
// Use -1 to disable automatic GC, 0 for default, or a positive value
// for a custom threshold.
func WithGCThreshold(threshold int64) Option {
	return func(e *Engine) error {
		if threshold < -1 {
			return fmt.Errorf("invalid GC threshold: %d", threshold)
		}
		e.Option.GCThreshold = threshold
		e.Runtime.SetGCThreshold(threshold)
		return nil
	}
}

// WithMemoryLimit sets the memory limit for the runtime in bytes.
// If limit is 0, there is no memory limit.
func WithMemoryLimit(limit uint64) Option {
	return func(e *Engine) error {
		e.Option.MemoryLimit = limit
		e.Runtime.SetMemoryLimit(limit)
		return nil
	}
}

// WithTimeout sets the script execution timeout in seconds.
// If timeout is 0, there is no timeout.
func WithTimeout(timeout uint64) Option {
	return func(e *Engine) error {
		e.Option.Timeout = timeout
		e.Runtime.SetExecuteTimeout(timeout)
		return nil
	}
}

// WithMaxStackSize sets the stack size for the runtime in bytes.
// If size is 0, the default stack size is used.
func WithMaxStackSize(size uint64) Option {
	return func(e *Engine) error {
		e.Option.MaxStackSize = size
		e.Runtime.SetMaxStackSize(size)
		return nil
	}
}

// WithCanBlock enables or disables blocking operations in the runtime.
func WithCanBlock(canBlock bool) Option {
	return func(e *Engine) error {
		e.Option.CanBlock = canBlock
		e.Runtime.SetCanBlock(canBlock)
		return nil
	}
}

// WithEnableModuleImport enables or disables ES6 module import support.
func WithEnableModuleImport(enable bool) Option {
	return func(e *Engine) error {
		e.Option.EnableModuleImport = enable
		e.Runtime.SetModuleImport(enable)
		return nil
	}
}

// WithStrip sets the strip level for bytecode compilation.
// 0 = no stripping, higher values strip more debug information.
func WithStrip(strip int) Option {
	return func(e *Engine) error {
		if strip < 0 || strip > 2 {
			return fmt.Errorf("invalid strip level: %d", strip)
		}
		e.Option.Strip = strip
		e.Runtime.SetStripInfo(strip)
		return nil
	}
}
