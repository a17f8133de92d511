package seqio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var readSuffixes = []string{".fastq", ".fq", ".fastq.gz", ".fq.gz"}

// MergeStats describes one MergeFASTQ call.
type MergeStats struct {
	Files int
	Reads int
	Kept  int
}

// ReadFiles lists the FASTQ files (plain or gzipped) directly under dir in
// lexical order.
func ReadFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, suffix := range readSuffixes {
			if strings.HasSuffix(e.Name(), suffix) {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// MergeFASTQ concatenates every read file under dir into out, keeping reads
// of at least minLen bases. The output is written to a temporary file and
// renamed into place, so out never holds a partial merge.
func MergeFASTQ(dir, out string, minLen int) (MergeStats, error) {
	var stats MergeStats
	files, err := ReadFiles(dir)
	if err != nil {
		return stats, fmt.Errorf("failed to list reads in %s: %w", dir, err)
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("no fastq files in %s", dir)
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".tmp-*")
	if err != nil {
		return stats, fmt.Errorf("failed to create merge output: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriterSize(tmp, 1024*1024)
	for _, path := range files {
		reads, kept, err := appendFiltered(w, path, minLen)
		stats.Reads += reads
		stats.Kept += kept
		if err != nil {
			tmp.Close()
			return stats, fmt.Errorf("failed to merge %s: %w", path, err)
		}
		stats.Files++
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return stats, fmt.Errorf("failed to write merge output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return stats, fmt.Errorf("failed to close merge output: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return stats, fmt.Errorf("failed to move merge output into place: %w", err)
	}
	return stats, nil
}

func appendFiltered(w io.Writer, path string, minLen int) (reads, kept int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, 0, err
		}
		defer gz.Close()
		r = gz
	}

	fr := NewFASTQReader(r)
	for {
		read, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return reads, kept, nil
		}
		if err != nil {
			return reads, kept, err
		}
		reads++
		if len(read.Seq) < minLen {
			continue
		}
		if err := WriteFASTQ(w, read); err != nil {
			return reads, kept, err
		}
		kept++
	}
}
