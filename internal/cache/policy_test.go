package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRun(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "merged.P.01.fastq")
	missing := filepath.Join(dir, "P.01.exp.sort.bam")
	require.NoError(t, os.WriteFile(present, []byte("@r\nA\n+\n!\n"), 0644))

	tests := []struct {
		name    string
		policy  Policy
		outputs []string
		want    bool
	}{
		{"idempotent all present", Idempotent, []string{present}, false},
		{"idempotent one missing", Idempotent, []string{present, missing}, true},
		{"idempotent no outputs", Idempotent, nil, true},
		{"recompute present", AlwaysRecompute, []string{present}, true},
		{"recompute missing", AlwaysRecompute, []string{missing}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRun(tt.policy, tt.outputs))
		})
	}
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "idempotent", Idempotent.String())
	assert.Equal(t, "always-recompute", AlwaysRecompute.String())
	assert.Equal(t, "unknown", Policy(42).String())
}
