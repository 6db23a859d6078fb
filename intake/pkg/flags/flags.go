// Package flags encodes and decodes sets of per-cell QC flags.
//
// The text form is
//
//	[ [row, column, "SEVERITY", "value", "name"], ... ]
//
// and an empty set is written as "[ ]".
package flags

import (
	"cmp"
	"slices"
	"strings"
)

// Severity of a flagged cell.
type Severity = string

const (
	SeverityAcceptable   Severity = "ACCEPTABLE"
	SeverityQuestionable Severity = "QUESTIONABLE"
	SeverityBad          Severity = "BAD"
	SeverityCritical     Severity = "CRITICAL"
)

// WOCE flag value codes.
const (
	WOCEGood         = "2"
	WOCEQuestionable = "3"
	WOCEBad          = "4"
	WOCEMissing      = "9"
)

// Entry flags one data cell.
type Entry struct {
	Row      int    `json:"row"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Value    string `json:"value"`
	Name     string `json:"name"`
}

// Compare orders entries by row, then column, then severity, then value, then name.
func (e Entry) Compare(o Entry) int {
	if c := cmp.Compare(e.Row, o.Row); c != 0 {
		return c
	}
	if c := cmp.Compare(e.Column, o.Column); c != 0 {
		return c
	}
	if c := strings.Compare(e.Severity, o.Severity); c != 0 {
		return c
	}
	if c := strings.Compare(e.Value, o.Value); c != 0 {
		return c
	}
	return strings.Compare(e.Name, o.Name)
}

// Set is an ordered set of entries. The zero value is an empty set.
type Set struct {
	entries []Entry
}

// NewSet builds a set, dropping duplicates.
func NewSet(entries ...Entry) Set {
	s := Set{entries: slices.Clone(entries)}
	slices.SortFunc(s.entries, Entry.Compare)
	s.entries = slices.CompactFunc(s.entries, func(a, b Entry) bool { return a.Compare(b) == 0 })
	return s
}

// Add inserts e, reporting whether it was not already present.
func (s *Set) Add(e Entry) bool {
	i, found := slices.BinarySearchFunc(s.entries, e, Entry.Compare)
	if found {
		return false
	}
	s.entries = slices.Insert(s.entries, i, e)
	return true
}

// Union returns a new set with the entries of both.
func (s Set) Union(o Set) Set {
	return NewSet(append(slices.Clone(s.entries), o.entries...)...)
}

func (s Set) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in set order.
func (s Set) Entries() []Entry {
	return slices.Clone(s.entries)
}

func (s Set) Equal(o Set) bool {
	return slices.Equal(s.entries, o.entries)
}

// Rows returns the distinct flagged row indices in ascending order.
func (s Set) Rows() []int {
	rows := make([]int, 0, len(s.entries))
	for _, e := range s.entries {
		if len(rows) == 0 || rows[len(rows)-1] != e.Row {
			rows = append(rows, e.Row)
		}
	}
	return rows
}
