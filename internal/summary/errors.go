// Package summary accumulates per-barcode classification counts into the
// run-wide summary ledger.
package summary

import "fmt"

// LedgerError represents a failure to create, append to or read the ledger
type LedgerError struct {
	Path    string
	Message string
	Cause   error
}

func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledger error: %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("ledger error: %s: %s", e.Path, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}
