// Package testutil provides test doubles shared by pipeline package tests.
package testutil

import (
	"context"
	"os"
	"sync"

	"github.com/jonathan/nsa-pipeline/internal/toolexec"
)

// Handler simulates one external tool. It should create whatever files the
// real tool would produce; a non-nil error fails the invocation.
type Handler func(cmd toolexec.Command) error

// FakeRunner records every command it is asked to run and dispatches it to a
// handler keyed by tool name. Commands without a handler succeed, and an
// empty file is created at cmd.Stdout when one is set.
type FakeRunner struct {
	mu       sync.Mutex
	calls    []toolexec.Command
	handlers map[string]Handler
}

// NewFakeRunner returns a runner with no handlers registered
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]Handler)}
}

// Handle registers h for commands whose Name is tool
func (f *FakeRunner) Handle(tool string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[tool] = h
}

// Run implements toolexec.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd toolexec.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	h := f.handlers[cmd.Name]
	f.mu.Unlock()

	if h != nil {
		return h(cmd)
	}
	if cmd.Stdout != "" {
		return os.WriteFile(cmd.Stdout, nil, 0644)
	}
	return nil
}

// Calls returns a copy of every recorded command in call order
func (f *FakeRunner) Calls() []toolexec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]toolexec.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns recorded commands that invoke tool directly or through a pipe
func (f *FakeRunner) CallsTo(tool string) []toolexec.Command {
	var out []toolexec.Command
	for _, c := range f.Calls() {
		if c.Name == tool || (c.Stdin != nil && c.Stdin.Name == tool) {
			out = append(out, c)
		}
	}
	return out
}

// ArgAfter returns the argument following flag in args, or "" when absent.
func ArgAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
