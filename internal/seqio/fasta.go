package seqio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Record is one FASTA entry. Header excludes the leading '>'.
type Record struct {
	Header string
	Seq    string
}

// Name returns the first whitespace-delimited token of the header.
func (r Record) Name() string {
	name, _, _ := strings.Cut(r.Header, " ")
	name, _, _ = strings.Cut(name, "\t")
	return name
}

// FASTAReader reads FASTA records whose sequence may span several lines.
type FASTAReader struct {
	scanner *bufio.Scanner
	header  string
	pending bool
}

// NewFASTAReader wraps r.
func NewFASTAReader(r io.Reader) *FASTAReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	return &FASTAReader{scanner: s}
}

// Next returns the next record or io.EOF.
func (fr *FASTAReader) Next() (Record, error) {
	var seq strings.Builder
	for fr.scanner.Scan() {
		line := strings.TrimRight(fr.scanner.Text(), "\r")
		if strings.HasPrefix(line, ">") {
			if fr.pending {
				rec := Record{Header: fr.header, Seq: seq.String()}
				fr.header = line[1:]
				return rec, nil
			}
			fr.header, fr.pending = line[1:], true
			continue
		}
		if !fr.pending {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return Record{}, fmt.Errorf("fasta: expected '>' header, got %q", truncate(line))
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	if err := fr.scanner.Err(); err != nil {
		return Record{}, err
	}
	if !fr.pending {
		return Record{}, io.EOF
	}
	fr.pending = false
	return Record{Header: fr.header, Seq: seq.String()}, nil
}

// WriteFASTA writes one unwrapped FASTA record.
func WriteFASTA(w io.Writer, header, seq string) error {
	_, err := fmt.Fprintf(w, ">%s\n%s\n", header, seq)
	return err
}

// WriteFASTAFile creates path holding a single record.
func WriteFASTAFile(path, header, seq string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteFASTA(f, header, seq); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FASTQToFASTA converts the reads in in to FASTA at out, keeping the full
// FASTQ header, and returns the number of records written.
func FASTQToFASTA(in, out string) (int, error) {
	src, err := os.Open(in)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".tmp-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriterSize(tmp, 1024*1024)
	fr := NewFASTQReader(src)
	n := 0
	for {
		read, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			tmp.Close()
			return n, fmt.Errorf("failed to convert %s: %w", in, err)
		}
		if err := WriteFASTA(w, read.Header, read.Seq); err != nil {
			tmp.Close()
			return n, err
		}
		n++
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), out)
}

// CountFASTA returns the number of '>' header lines in path.
func CountFASTA(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	n := 0
	for s.Scan() {
		if strings.HasPrefix(s.Text(), ">") {
			n++
		}
	}
	return n, s.Err()
}

// SeqLength is a named sequence length from a reference FASTA.
type SeqLength struct {
	Name   string
	Length int
}

// ReadLengths returns the length of every record in a FASTA file in file
// order.
func ReadLengths(path string) ([]SeqLength, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []SeqLength
	fr := NewFASTAReader(f)
	for {
		rec, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		out = append(out, SeqLength{Name: rec.Name(), Length: len(rec.Seq)})
	}
}

// TotalLength sums lengths.
func TotalLength(lengths []SeqLength) int {
	total := 0
	for _, l := range lengths {
		total += l.Length
	}
	return total
}
