package index

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
	"github.com/jonathan/nsa-pipeline/internal/toolexec"
)

// Spec describes one shared index derived from a reference file.
type Spec struct {
	Name      string // label for logs, e.g. "minimap2 index"
	Reference string
	Path      string // returned to callers
	Marker    string // file whose presence means the index is built; defaults to Path
	Build     toolexec.Command
}

func (s Spec) marker() string {
	if s.Marker != "" {
		return s.Marker
	}
	return s.Path
}

// AlignmentIndex describes a minimap2 index of reference at path.
func AlignmentIndex(minimap2, reference, path string) Spec {
	return Spec{
		Name:      "alignment index",
		Reference: reference,
		Path:      path,
		Build:     toolexec.Command{Name: minimap2, Args: []string{"-d", path, reference}},
	}
}

// BlastDatabase describes a nucleotide BLAST database of reference at dbPath.
func BlastDatabase(makeblastdb, reference, dbPath string) Spec {
	return Spec{
		Name:      "BLAST database " + filepath.Base(dbPath),
		Reference: reference,
		Path:      dbPath,
		Marker:    artifacts.Marker(artifacts.KindBlastDB, dbPath),
		Build: toolexec.Command{
			Name: makeblastdb,
			Args: []string{"-in", reference, "-dbtype", "nucl", "-out", dbPath},
		},
	}
}

// Manager builds missing indices. It is meant to be driven once at startup,
// before any barcode job begins, so concurrent rebuilds cannot happen.
type Manager struct {
	runner toolexec.Runner
	out    io.Writer
}

// NewManager creates a manager that reports builds to out (may be nil)
func NewManager(runner toolexec.Runner, out io.Writer) *Manager {
	return &Manager{runner: runner, out: out}
}

// Ensure returns spec.Path, building the index first when its marker is absent.
// built reports whether a build took place.
func (m *Manager) Ensure(ctx context.Context, spec Spec) (path string, built bool, err error) {
	if _, err := os.Stat(spec.marker()); err == nil {
		return spec.Path, false, nil
	}
	if _, err := os.Stat(spec.Reference); err != nil {
		return "", false, &BuildError{Name: spec.Name, Message: fmt.Sprintf("reference not found: %s", spec.Reference), Cause: err}
	}
	if err := os.MkdirAll(filepath.Dir(spec.Path), 0755); err != nil {
		return "", false, &BuildError{Name: spec.Name, Message: "failed to create index directory", Cause: err}
	}

	if m.out != nil {
		_, _ = fmt.Fprintf(m.out, "Building %s from %s...\n", spec.Name, spec.Reference)
	}
	if err := m.runner.Run(ctx, spec.Build); err != nil {
		return "", false, &BuildError{Name: spec.Name, Message: "build command failed", Cause: err}
	}
	if _, err := os.Stat(spec.marker()); err != nil {
		return "", false, &BuildError{Name: spec.Name, Message: fmt.Sprintf("build finished but %s was not produced", spec.marker())}
	}
	return spec.Path, true, nil
}

// EnsureAll ensures every spec in order and stops at the first failure.
func (m *Manager) EnsureAll(ctx context.Context, specs []Spec) error {
	for _, spec := range specs {
		if _, _, err := m.Ensure(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}
