// Package dserror provides the structured, recoverable errors reported by the dataset integrity engine.
package dserror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies dataset integrity errors for appropriate handling.
type Kind int

const (
	// KindUnknown is an unclassified error.
	KindUnknown Kind = iota
	// KindShapeMismatch indicates a row whose value count differs from the column count.
	KindShapeMismatch
	// KindTypeMismatch indicates a column declared with a kind that disagrees with the catalog.
	KindTypeMismatch
	// KindParseFailure indicates a non-missing value that could not be parsed for its column kind.
	KindParseFailure
	// KindUnresolvedColumnType indicates a column still assigned the reserved unknown type.
	KindUnresolvedColumnType
	// KindMalformedFlagSet indicates flag-set text without the outer brackets.
	KindMalformedFlagSet
	// KindMalformedFlagEntry indicates a structurally invalid flag group.
	KindMalformedFlagEntry
	// KindIdentifierMismatch indicates two metadata documents describing different datasets.
	KindIdentifierMismatch
	// KindInvalidIdentifier indicates a dataset identifier that cannot be normalized.
	KindInvalidIdentifier
)

var kindNames = map[Kind]string{
	KindUnknown:              "Unknown",
	KindShapeMismatch:        "ShapeMismatch",
	KindTypeMismatch:         "TypeMismatch",
	KindParseFailure:         "ParseFailure",
	KindUnresolvedColumnType: "UnresolvedColumnType",
	KindMalformedFlagSet:     "MalformedFlagSet",
	KindMalformedFlagEntry:   "MalformedFlagEntry",
	KindIdentifierMismatch:   "IdentifierMismatch",
	KindInvalidIdentifier:    "InvalidIdentifier",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrShapeMismatch        = &Error{Kind: KindShapeMismatch, Row: NoRow}
	ErrTypeMismatch         = &Error{Kind: KindTypeMismatch, Row: NoRow}
	ErrParseFailure         = &Error{Kind: KindParseFailure, Row: NoRow}
	ErrUnresolvedColumnType = &Error{Kind: KindUnresolvedColumnType, Row: NoRow}
	ErrMalformedFlagSet     = &Error{Kind: KindMalformedFlagSet, Row: NoRow}
	ErrMalformedFlagEntry   = &Error{Kind: KindMalformedFlagEntry, Row: NoRow}
	ErrIdentifierMismatch   = &Error{Kind: KindIdentifierMismatch, Row: NoRow}
	ErrInvalidIdentifier    = &Error{Kind: KindInvalidIdentifier, Row: NoRow}
)

// NoRow marks errors that are not tied to a data row.
const NoRow = -1

// Error is a dataset integrity error. Column and Text are optional context.
type Error struct {
	Kind   Kind
	Row    int
	Column string
	Text   string
	Msg    string
}

// New returns an error of the given kind that is not tied to a row.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Row: NoRow, Msg: fmt.Sprintf(format, args...)}
}

// AtRow returns an error of the given kind for a data row.
func AtRow(kind Kind, row int, format string, args ...any) *Error {
	return &Error{Kind: kind, Row: row, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Row != NoRow {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " in column %q", e.Column)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Text != "" {
		fmt.Fprintf(&b, " (value %q)", e.Text)
	}
	return b.String()
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Join combines errors into one, preserving each for errors.Is / errors.As. Returns nil when empty.
func Join(errs []*Error) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

// CountByKind tallies errors per kind, for summaries and metrics.
func CountByKind(errs []*Error) map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range errs {
		counts[e.Kind]++
	}
	return counts
}
