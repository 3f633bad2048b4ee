// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"github.com/dop251/goja"
)

// WithMaxCallStackSize sets the maximum call stack size for the
// runtime. A value of 0 or less means no limit.
func WithMaxCallStackSize(size int) Option {
	return func(e *Engine) {
		e.maxCallStackSize = size
	}
}

// WithConsole enables the console object (console.log, etc.) in the JS
// runtime, along with the module registry it depends on.
func WithConsole() Option {
	return func(e *Engine) {
		e.enableConsole = true
	}
}

// WithRequire enables the require() function for loading CommonJS
// modules.
func WithRequire() Option {
	return func(e *Engine) {
		e.enableRequire = true
	}
}

// WithFieldNameMapper sets the field name mapper for Go-to-JS struct
// conversions. This controls how Go struct field names are exposed in
// JavaScript; the default maps fields through their json tags.
func WithFieldNameMapper(mapper goja.FieldNameMapper) Option {
	return func(e *Engine) {
		if mapper != nil {
			e.fieldNameMapper = mapper
		}
	}
}
