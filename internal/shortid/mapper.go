package shortid

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Mapping pairs a short ID with the full identifier it abbreviates.
type Mapping struct {
	ShortID string
	FullID  string
}

// ConflictError reports a full ID already recorded under a different short ID
type ConflictError struct {
	FullID   string
	Existing string
	Proposed string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("short id conflict for %q: recorded as %s, got %s", e.FullID, e.Existing, e.Proposed)
}

// Mapper is the single writer of a tab-separated mapping table. Record is
// safe for concurrent use; each call appends one complete line or nothing.
type Mapper struct {
	mu   sync.Mutex
	path string
	file *os.File
	seen map[string]string
}

// OpenMapper opens (creating if needed) the table at path for appending.
// Existing rows are loaded so re-recording them is a no-op.
func OpenMapper(path string) (*Mapper, error) {
	existing, err := ReadTable(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open id map %s: %w", path, err)
	}
	m := &Mapper{path: path, file: f, seen: make(map[string]string, len(existing))}
	for _, row := range existing {
		m.seen[row.FullID] = row.ShortID
	}
	return m, nil
}

// Path returns the table location
func (m *Mapper) Path() string {
	return m.path
}

// Record appends shortID<TAB>fullID. Recording the same pair twice writes
// one line; recording a different short ID for a known full ID fails.
func (m *Mapper) Record(shortID, fullID string) error {
	if shortID == "" || fullID == "" {
		return fmt.Errorf("id map: short and full id must be non-empty")
	}
	if strings.ContainsAny(shortID+fullID, "\t\r\n") {
		return fmt.Errorf("id map: identifiers must not contain tabs or newlines: %q", fullID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return fmt.Errorf("id map %s is closed", m.path)
	}
	if prev, ok := m.seen[fullID]; ok {
		if prev == shortID {
			return nil
		}
		return &ConflictError{FullID: fullID, Existing: prev, Proposed: shortID}
	}

	// A single write per line keeps rows whole.
	if _, err := m.file.WriteString(shortID + "\t" + fullID + "\n"); err != nil {
		return fmt.Errorf("failed to append to id map %s: %w", m.path, err)
	}
	m.seen[fullID] = shortID
	return nil
}

// Len returns the number of distinct full IDs recorded
func (m *Mapper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Close closes the table; later Record calls fail
func (m *Mapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// ReadTable parses a mapping table. Malformed lines are an error.
func ReadTable(path string) ([]Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Mapping
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		parts := strings.Split(text, "\t")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("id map %s:%d: malformed line %q", path, line, text)
		}
		rows = append(rows, Mapping{ShortID: parts[0], FullID: parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read id map %s: %w", path, err)
	}
	return rows, nil
}
