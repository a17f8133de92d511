package seqio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PositiveHeader is the first line of every positive-match table.
const PositiveHeader = "Repeatsize\tReadID\tSequence"

// SequenceRecord is one read classified as spanning the target region.
type SequenceRecord struct {
	RepeatSize int
	FullID     string
	Sequence   string
}

// ReadPositive parses a positive-match table. A header-only table yields no
// records and no error.
func ReadPositive(path string) ([]SequenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	var out []SequenceRecord
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimRight(s.Text(), "\r")
		if text == "" || (line == 1 && strings.HasPrefix(text, "Repeatsize")) {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("positive table %s:%d: expected 3 columns, got %d", path, line, len(fields))
		}
		size, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("positive table %s:%d: bad repeat size: %w", path, line, err)
		}
		out = append(out, SequenceRecord{RepeatSize: size, FullID: fields[1], Sequence: fields[2]})
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positive table %s: %w", path, err)
	}
	return out, nil
}

// CountPositive returns the number of data rows in a positive-match table.
// A missing table counts as zero.
func CountPositive(path string) (int, error) {
	recs, err := ReadPositive(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	return len(recs), err
}

// WritePositive writes a positive-match table with its header.
func WritePositive(path string, recs []SequenceRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, PositiveHeader)
	for _, r := range recs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.RepeatSize, r.FullID, r.Sequence)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
