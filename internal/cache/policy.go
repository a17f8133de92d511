// Package cache decides whether a stage output is reused or recomputed.
package cache

import "os"

// Policy is the cache behavior attached to a stage definition.
type Policy int

const (
	// AlwaysRecompute stages run every time and overwrite their outputs.
	AlwaysRecompute Policy = iota
	// Idempotent stages are skipped when every declared output exists.
	Idempotent
)

func (p Policy) String() string {
	switch p {
	case Idempotent:
		return "idempotent"
	case AlwaysRecompute:
		return "always-recompute"
	}
	return "unknown"
}

// ShouldRun reports whether a stage with policy p must execute given its
// resolved output paths. An idempotent stage with no declared outputs always runs.
func ShouldRun(p Policy, outputs []string) bool {
	if p != Idempotent || len(outputs) == 0 {
		return true
	}
	return !AllExist(outputs)
}

// AllExist reports whether every path exists.
func AllExist(paths []string) bool {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}
