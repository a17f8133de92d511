// Package index makes sure shared alignment and search indices exist before any job runs.
package index

import "fmt"

// BuildError represents an index that could not be built
type BuildError struct {
	Name    string
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("index build error: %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("index build error: %s: %s", e.Name, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}
