//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"fmt"
)

// WithSetupScript returns an option that evaluates a script right after
// the context is created, before the engine is handed out. Useful for
// polyfills or globals that every later script expects to exist.
// The script must not be empty.
func WithSetupScript(source string) Option {
	return func(e *Engine) error {
		if source == "" {
			return fmt.Errorf("setup script cannot be empty")
		}
		if _, err := e.Ctx.RunScript(source, "setup.js"); err != nil {
			return fmt.Errorf("failed to run setup script: %w", err)
		}
		return nil
	}
}
