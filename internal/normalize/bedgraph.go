// Package normalize scales bedgraph coverage to reads-per-genome units.
package normalize

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonathan/nsa-pipeline/internal/seqio"
)

// MitochondrialNames are excluded from both the genome size and the
// coverage total.
var MitochondrialNames = []string{"chrmt", "chrM", "chrMT", "MT"}

// Interval is one bedgraph row.
type Interval struct {
	Chrom string
	Start int
	End   int
	Value float64
}

// Result summarizes a normalization.
type Result struct {
	GenomeSize int
	Total      float64
	Rows       int
	Dropped    int
}

func isMito(name string) bool {
	for _, m := range MitochondrialNames {
		if name == m {
			return true
		}
	}
	return false
}

// ReadBedgraph parses bedgraph rows, skipping blank, comment and track lines.
func ReadBedgraph(r io.Reader) ([]Interval, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []Interval
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "track") || strings.HasPrefix(text, "browser") {
			continue
		}
		f := strings.Fields(text)
		if len(f) < 4 {
			return nil, fmt.Errorf("bedgraph line %d: expected 4 columns, got %d", line, len(f))
		}
		start, err1 := strconv.Atoi(f[1])
		end, err2 := strconv.Atoi(f[2])
		value, err3 := strconv.ParseFloat(f[3], 64)
		if err1 != nil || err2 != nil || err3 != nil || end < start {
			return nil, fmt.Errorf("bedgraph line %d: malformed interval %q", line, text)
		}
		out = append(out, Interval{Chrom: f[0], Start: start, End: end, Value: value})
	}
	return out, s.Err()
}

// Normalize rescales each interval to value / total * genomeSize, where
// total is the per-base coverage mass over nuclear chromosomes and
// genomeSize is their combined length. Intervals on mitochondrial or
// unknown chromosomes are dropped. With no coverage every value is 0.
func Normalize(lengths []seqio.SeqLength, intervals []Interval) ([]Interval, Result) {
	known := make(map[string]int, len(lengths))
	var res Result
	for _, l := range lengths {
		if isMito(l.Name) {
			continue
		}
		known[l.Name] = l.Length
		res.GenomeSize += l.Length
	}

	kept := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		size, ok := known[iv.Chrom]
		if !ok {
			res.Dropped++
			continue
		}
		if iv.End > size {
			iv.End = size
		}
		if iv.Start >= iv.End {
			res.Dropped++
			continue
		}
		res.Total += iv.Value * float64(iv.End-iv.Start)
		kept = append(kept, iv)
	}

	for i := range kept {
		if res.Total > 0 {
			kept[i].Value = kept[i].Value / res.Total * float64(res.GenomeSize)
		} else {
			kept[i].Value = 0
		}
	}
	res.Rows = len(kept)
	return kept, res
}

// WriteBedgraph writes intervals as tab-separated bedgraph rows.
func WriteBedgraph(w io.Writer, intervals []Interval) error {
	bw := bufio.NewWriter(w)
	for _, iv := range intervals {
		fmt.Fprintf(bw, "%s\t%d\t%d\t%s\n", iv.Chrom, iv.Start, iv.End, strconv.FormatFloat(iv.Value, 'g', -1, 64))
	}
	return bw.Flush()
}

// File normalizes the bedgraph at in against the reference FASTA at ref and
// writes the result to out.
func File(ref, in, out string) (Result, error) {
	lengths, err := seqio.ReadLengths(ref)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load reference lengths: %w", err)
	}

	src, err := os.Open(in)
	if err != nil {
		return Result{}, err
	}
	intervals, err := ReadBedgraph(src)
	src.Close()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", in, err)
	}

	normalized, res := Normalize(lengths, intervals)

	tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".tmp-*")
	if err != nil {
		return res, err
	}
	defer os.Remove(tmp.Name())
	if err := WriteBedgraph(tmp, normalized); err != nil {
		tmp.Close()
		return res, err
	}
	if err := tmp.Close(); err != nil {
		return res, err
	}
	return res, os.Rename(tmp.Name(), out)
}
