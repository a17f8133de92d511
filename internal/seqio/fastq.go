// Package seqio reads and writes the sequence files that flow between
// pipeline stages: FASTQ reads, FASTA records and positive-match tables.
package seqio

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Read is one FASTQ record. Header excludes the leading '@'.
type Read struct {
	Header string
	Seq    string
	Qual   string
}

// ID returns the first whitespace-delimited token of the header.
func (r Read) ID() string {
	id, _, _ := strings.Cut(r.Header, " ")
	id, _, _ = strings.Cut(id, "\t")
	return id
}

// FASTQReader reads four-line FASTQ records.
type FASTQReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewFASTQReader wraps r. Long nanopore reads are accommodated up to 64MB
// per line.
func NewFASTQReader(r io.Reader) *FASTQReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	return &FASTQReader{scanner: s}
}

func (fr *FASTQReader) next() (string, bool) {
	if !fr.scanner.Scan() {
		return "", false
	}
	fr.line++
	return strings.TrimRight(fr.scanner.Text(), "\r"), true
}

// Next returns the next record or io.EOF. A truncated trailing record is an
// error.
func (fr *FASTQReader) Next() (Read, error) {
	header, ok := fr.next()
	for ok && header == "" {
		header, ok = fr.next()
	}
	if !ok {
		if err := fr.scanner.Err(); err != nil {
			return Read{}, err
		}
		return Read{}, io.EOF
	}
	if !strings.HasPrefix(header, "@") {
		return Read{}, fmt.Errorf("fastq line %d: expected '@' header, got %q", fr.line, truncate(header))
	}
	seq, ok1 := fr.next()
	plus, ok2 := fr.next()
	qual, ok3 := fr.next()
	if !ok1 || !ok2 || !ok3 {
		if err := fr.scanner.Err(); err != nil {
			return Read{}, err
		}
		return Read{}, fmt.Errorf("fastq line %d: truncated record %q", fr.line, truncate(header))
	}
	if !strings.HasPrefix(plus, "+") {
		return Read{}, fmt.Errorf("fastq line %d: expected '+' separator", fr.line-1)
	}
	return Read{Header: header[1:], Seq: seq, Qual: qual}, nil
}

// WriteFASTQ writes r in four-line form.
func WriteFASTQ(w io.Writer, r Read) error {
	_, err := fmt.Fprintf(w, "@%s\n%s\n+\n%s\n", r.Header, r.Seq, r.Qual)
	return err
}

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
