package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stderrTail is how many trailing bytes of stderr are kept for error messages
const stderrTail = 4 * 1024

// Command describes one blocking external invocation.
type Command struct {
	Name string
	Args []string
	Dir  string

	// Stdout, when set, receives the command's standard output (truncated first).
	Stdout string

	// Stdin, when set, is started alongside this command and its standard
	// output is piped into this command's standard input.
	Stdin *Command
}

// String renders the command as a shell-like line for logs and errors.
func (c Command) String() string {
	var sb strings.Builder
	if c.Stdin != nil {
		sb.WriteString(c.Stdin.String())
		sb.WriteString(" | ")
	}
	sb.WriteString(c.Name)
	for _, a := range c.Args {
		sb.WriteByte(' ')
		sb.WriteString(a)
	}
	if c.Stdout != "" {
		sb.WriteString(" > ")
		sb.WriteString(c.Stdout)
	}
	return sb.String()
}

// Tools returns the executables this command (and its upstream) needs.
func (c Command) Tools() []string {
	if c.Stdin != nil {
		return append(c.Stdin.Tools(), c.Name)
	}
	return []string{c.Name}
}

// Runner executes a command and blocks until it has finished.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct {
	// Timeout bounds a single invocation; zero means no limit.
	Timeout time.Duration
	// Log, when set, receives every command line before it starts.
	Log io.Writer
}

// NewExecRunner creates a runner that echoes command lines to log when log is non-nil
func NewExecRunner(log io.Writer) *ExecRunner {
	return &ExecRunner{Log: log}
}

// Run executes cmd, piping cmd.Stdin into it when set.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name is empty")
	}
	if cmd.Stdin != nil && cmd.Stdin.Stdin != nil {
		return fmt.Errorf("nested pipes are not supported: %s", cmd)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	if r.Log != nil {
		_, _ = fmt.Fprintf(r.Log, "  $ %s\n", cmd)
	}

	down := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	down.Dir = cmd.Dir
	downErr := &tailBuffer{limit: stderrTail}
	down.Stderr = downErr

	if cmd.Stdout != "" {
		f, err := os.Create(cmd.Stdout)
		if err != nil {
			return fmt.Errorf("failed to create output %s: %w", cmd.Stdout, err)
		}
		defer f.Close()
		down.Stdout = f
	}

	if cmd.Stdin == nil {
		if err := down.Run(); err != nil {
			return toolError(cmd.String(), downErr.String(), err)
		}
		return nil
	}

	up := exec.CommandContext(ctx, cmd.Stdin.Name, cmd.Stdin.Args...)
	up.Dir = cmd.Stdin.Dir
	upErr := &tailBuffer{limit: stderrTail}
	up.Stderr = upErr
	pipe, err := up.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	down.Stdin = pipe

	if err := up.Start(); err != nil {
		return toolError(cmd.Stdin.String(), "", err)
	}
	if err := down.Start(); err != nil {
		_ = up.Process.Kill()
		_ = up.Wait()
		return toolError(cmd.String(), "", err)
	}

	// The consumer must drain the pipe before the producer is reaped.
	downRunErr := down.Wait()
	upRunErr := up.Wait()

	// A failing consumer usually takes the producer down with SIGPIPE, so the
	// consumer's error is reported first.
	if downRunErr != nil {
		downToolErr := toolError(cmd.String(), downErr.String(), downRunErr)
		if upRunErr != nil {
			return errors.Join(downToolErr, toolError(cmd.Stdin.String(), upErr.String(), upRunErr))
		}
		return downToolErr
	}
	if upRunErr != nil {
		return toolError(cmd.Stdin.String(), upErr.String(), upRunErr)
	}
	return nil
}

func toolError(line, stderr string, err error) error {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ToolError{Command: line, ExitCode: code, Stderr: stderr, Cause: err}
}

// LookupAll resolves every named executable on PATH and reports the missing ones.
func LookupAll(names []string) error {
	seen := make(map[string]bool)
	var missing []string
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingToolError{Tools: missing}
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
