package summary

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// CountDistinctQueries returns the number of distinct query IDs (first
// column) in a tabular BLAST hit table. A missing file counts as zero hits.
func CountDistinctQueries(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open hit table %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		query, _, _ := strings.Cut(line, "\t")
		seen[query] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read hit table %s: %w", path, err)
	}
	return len(seen), nil
}
