package shortid

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9.\-_]+$`)

func TestShortID_Deterministic(t *testing.T) {
	ids := []string{
		"readA",
		"@0f3c2a91-7b1e-4c55-9f0d-3e2b1a6c8d7e runid=abc ch=12",
		"",
		"weird/\\:*?\"<>| id",
	}
	for _, id := range ids {
		first := ShortID(id)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, ShortID(id))
		}
		assert.Regexp(t, safeID, first)
	}
}

func TestShortID_KnownValueIsStableAcrossRuns(t *testing.T) {
	// The hash fragment must only depend on the input bytes.
	id := "readA"
	got := ShortID(id)
	assert.True(t, strings.HasPrefix(got, "readA_"), got)
	assert.Len(t, got, len("readA_")+DefaultHashWidth)
	assert.Equal(t, got, New(DefaultHashWidth).ShortID(id))
}

func TestShortID_DistinctInputs(t *testing.T) {
	assert.NotEqual(t, ShortID("readA"), ShortID("readB"))
}

func TestShortID_PrefixAndWidth(t *testing.T) {
	long := "0f3c2a91-7b1e-4c55-9f0d-3e2b1a6c8d7e"

	g := Generator{HashWidth: 4, PrefixLen: 8}
	got := g.ShortID(long)
	assert.Equal(t, "0f3c2a91_", got[:9])
	assert.Len(t, got, 8+1+4)

	wide := Generator{HashWidth: 40}.ShortID(long)
	assert.Len(t, wide, DefaultPrefixLen+1+MaxHashWidth)

	assert.True(t, strings.HasPrefix(ShortID("@@@"), "seq_"))
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"@read1":          "read1",
		"read 1/2":        "read_1_2",
		"abc.DEF-123":     "abc.DEF-123",
		"__x__":           "x",
		"é":               "",
		"chr1:100-200(+)": "chr1_100-200",
	}
	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestShortID_NoCollisionsWithinBound(t *testing.T) {
	const n = 20000
	width := 12
	require.Less(t, CollisionProbability(width, n), 1e-5)

	g := New(width)
	seen := make(map[string]string, n)
	for i := 0; i < n; i++ {
		full := fmt.Sprintf("read-%06d runid=deadbeef", i)
		s := g.ShortID(full)
		prev, dup := seen[s]
		require.False(t, dup, "collision between %q and %q", prev, full)
		seen[s] = full
	}
}

func TestCollisionProbability(t *testing.T) {
	assert.Equal(t, 0.0, CollisionProbability(8, 1))
	assert.Greater(t, CollisionProbability(8, 100000), 0.5)
	assert.Less(t, CollisionProbability(16, 100000), 1e-9)
	assert.Less(t, CollisionProbability(8, 1000), CollisionProbability(8, 10000))
}

func TestMaxCorpus(t *testing.T) {
	n := MaxCorpus(DefaultHashWidth, 0.01)
	assert.Greater(t, n, 5000)
	assert.Less(t, n, 15000)
	assert.LessOrEqual(t, CollisionProbability(DefaultHashWidth, n), 0.01)
	assert.Greater(t, CollisionProbability(DefaultHashWidth, n+100), 0.01)

	assert.Greater(t, MaxCorpus(12, 0.01), MaxCorpus(8, 0.01))
}
