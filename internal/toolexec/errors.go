// Package toolexec runs the external bioinformatics tools the pipeline delegates to.
package toolexec

import (
	"fmt"
	"strings"
)

// ToolError represents an external tool that could not start or exited non-zero
type ToolError struct {
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool error: %s exited with code %d", e.Command, e.ExitCode)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// MissingToolError lists executables that could not be found on PATH
type MissingToolError struct {
	Tools []string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("required tools not found in PATH: %s", strings.Join(e.Tools, ", "))
}
