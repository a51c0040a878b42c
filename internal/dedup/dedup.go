// Package dedup filters new rows against the rows already persisted.
package dedup

import (
	"strings"
)

// Key builds the identity of a row from the given column indices. Values are
// trimmed and uppercased so a re-typed cell still matches.
func Key(row []string, columns []int) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		if c >= 0 && c < len(row) {
			parts[i] = strings.ToUpper(strings.TrimSpace(row[c]))
		}
	}
	return strings.Join(parts, "_")
}

// Set is a set of row keys.
type Set struct {
	columns []int
	keys    map[string]struct{}
}

// NewSet returns an empty set keyed on the given columns.
func NewSet(columns []int) *Set {
	return &Set{columns: columns, keys: make(map[string]struct{})}
}

// Load builds a set from persisted rows. Rows too short to hold every key
// column are skipped.
func Load(rows [][]string, columns []int) *Set {
	s := NewSet(columns)
	width := 0
	for _, c := range columns {
		if c+1 > width {
			width = c + 1
		}
	}
	for _, row := range rows {
		if len(row) < width {
			continue
		}
		s.keys[Key(row, columns)] = struct{}{}
	}
	return s
}

// Len returns the number of keys held.
func (s *Set) Len() int {
	return len(s.keys)
}

// Add records the row's key and reports whether it was new.
func (s *Set) Add(row []string) bool {
	k := Key(row, s.columns)
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}
