package summary

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Ledger is the append-only summary CSV shared by every job in a run. The
// header is written once, when the file is created; rows are never
// rewritten or reordered.
type Ledger struct {
	mu     sync.Mutex
	path   string
	header []string
	file   *os.File
}

// OpenLedger opens the ledger at path, creating it with header when it does
// not exist yet. An existing ledger with a different header is rejected.
func OpenLedger(path string, header []string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &LedgerError{Path: path, Message: "failed to create directory", Cause: err}
	}

	existing, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	if existing != nil && !slices.Equal(existing, header) {
		return nil, &LedgerError{Path: path, Message: "existing ledger has a different header"}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &LedgerError{Path: path, Message: "failed to open", Cause: err}
	}
	l := &Ledger{path: path, header: header, file: f}
	if existing == nil {
		if err := l.write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LedgerError{Path: path, Message: "failed to open", Cause: err}
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &LedgerError{Path: path, Message: "failed to read header", Cause: err}
	}
	return header, nil
}

// Path returns the ledger location
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one row. It is safe for concurrent use.
func (l *Ledger) Append(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return &LedgerError{Path: l.path, Message: "ledger is closed"}
	}
	return l.write(row.Record())
}

// write encodes record into memory first so the file sees one write per line.
func (l *Ledger) write(record []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return &LedgerError{Path: l.path, Message: "failed to encode row", Cause: err}
	}
	w.Flush()
	if _, err := l.file.Write(buf.Bytes()); err != nil {
		return &LedgerError{Path: l.path, Message: "failed to append row", Cause: err}
	}
	return nil
}

// Close closes the ledger; later Append calls fail
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadRows parses every data row of the ledger at path.
func ReadRows(path string) (header []string, rows []Row, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &LedgerError{Path: path, Message: "failed to open", Cause: err}
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, &LedgerError{Path: path, Message: "failed to parse", Cause: err}
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	for i, rec := range records[1:] {
		row, err := ParseRow(rec)
		if err != nil {
			return nil, nil, &LedgerError{Path: path, Message: fmt.Sprintf("malformed row %d", i+1), Cause: err}
		}
		rows = append(rows, row)
	}
	return records[0], rows, nil
}
