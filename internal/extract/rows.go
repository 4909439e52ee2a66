package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeRows unmarshals the JSON produced by a page extraction script.
func decodeRows[T any](raw string) ([]T, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// decodeObject unmarshals a single JSON object produced by a page script.
func decodeObject(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return fmt.Errorf("empty extraction result")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	return nil
}

// parsePrice strips currency decoration and returns the numeric value.
func parsePrice(s string) int {
	var n int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}
