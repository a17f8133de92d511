// Package shortid derives short, filesystem-safe identifiers from long
// sequence identifiers and records the mapping in a shared table.
package shortid

import (
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultHashWidth is the number of hex digits of the content hash kept.
	// Eight digits keep the birthday bound near 1% at ~9,000 distinct IDs.
	DefaultHashWidth = 8
	// MaxHashWidth is the full width of the 64-bit hash in hex.
	MaxHashWidth = 16
	// DefaultPrefixLen bounds the literal prefix taken from the full ID.
	DefaultPrefixLen = 12
)

// Generator computes short IDs. The zero value uses the defaults.
type Generator struct {
	HashWidth int
	PrefixLen int
}

// New returns a generator keeping hashWidth hex digits (clamped to 1..16).
func New(hashWidth int) Generator {
	return Generator{HashWidth: hashWidth, PrefixLen: DefaultPrefixLen}
}

func (g Generator) width() int {
	switch {
	case g.HashWidth <= 0:
		return DefaultHashWidth
	case g.HashWidth > MaxHashWidth:
		return MaxHashWidth
	}
	return g.HashWidth
}

func (g Generator) prefixLen() int {
	if g.PrefixLen <= 0 {
		return DefaultPrefixLen
	}
	return g.PrefixLen
}

// ShortID returns sanitize(fullID)[:prefixLen] + "_" + hash(fullID)[:width].
// It depends only on fullID and the generator's widths.
func (g Generator) ShortID(fullID string) string {
	prefix := Sanitize(fullID)
	if n := g.prefixLen(); len(prefix) > n {
		prefix = strings.TrimRight(prefix[:n], "_")
	}
	if prefix == "" {
		prefix = "seq"
	}
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(fullID))
	return prefix + "_" + sum[:g.width()]
}

// ShortID computes a short ID with the default generator.
func ShortID(fullID string) string {
	return Generator{}.ShortID(fullID)
}

// Sanitize keeps ASCII letters, digits, '.' and '-'; every other rune becomes
// '_'. Leading and trailing underscores are dropped.
func Sanitize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return strings.Trim(sb.String(), "_")
}

// CollisionProbability approximates the chance that n distinct IDs share at
// least one hash fragment of width hex digits (birthday bound).
func CollisionProbability(width, n int) float64 {
	if n < 2 {
		return 0
	}
	space := math.Pow(16, float64(width))
	pairs := float64(n) * float64(n-1) / 2
	return -math.Expm1(-pairs / space)
}

// MaxCorpus returns the largest corpus whose collision probability at width
// stays at or below p.
func MaxCorpus(width int, p float64) int {
	if p <= 0 {
		return 1
	}
	if p >= 1 {
		return math.MaxInt
	}
	space := math.Pow(16, float64(width))
	// Solve n(n-1)/2 = -space*ln(1-p) for n.
	pairs := -space * math.Log(1-p)
	n := int(math.Floor((1 + math.Sqrt(1+8*pairs)) / 2))
	for n > 1 && CollisionProbability(width, n) > p {
		n--
	}
	return n
}
