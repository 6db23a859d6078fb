// Package record builds typed per-sample records from raw row text.
//
// A Record maps every column of its catalog to a Value. Columns without data hold the
// missing sentinel for their kind, so lookups never fail for catalog columns.
package record

import (
	"encoding/binary"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/dserror"
)

// Tolerances for comparing floating point values.
const (
	AbsTolerance = 1e-6
	RelTolerance = 1e-6
)

// Record is one measurement sample.
type Record struct {
	RowIndex int

	cat    *catalog.Catalog
	values map[*catalog.ColumnDescriptor]Value
}

// New returns a record with every catalog column set to its missing sentinel.
func New(cat *catalog.Catalog, row int) *Record {
	r := &Record{
		RowIndex: row,
		cat:      cat,
		values:   make(map[*catalog.ColumnDescriptor]Value, cat.Len()),
	}
	for _, col := range cat.Columns() {
		r.values[col] = MissingValue(col)
	}
	return r
}

func (r *Record) Catalog() *catalog.Catalog {
	return r.cat
}

// Get returns the value of a catalog column.
func (r *Record) Get(col *catalog.ColumnDescriptor) (Value, bool) {
	v, ok := r.values[col]
	return v, ok
}

// Lookup returns the value of the named catalog column.
func (r *Record) Lookup(name string) (*catalog.ColumnDescriptor, Value, bool) {
	col, ok := r.cat.Lookup(name)
	if !ok {
		return nil, Value{}, false
	}
	return col, r.values[col], true
}

// Float returns the named float column's value and whether it is present and not missing.
func (r *Record) Float(name string) (float64, bool) {
	col, v, ok := r.Lookup(name)
	if !ok || IsMissing(col, v) {
		return 0, false
	}
	return v.AsFloat()
}

// Int returns the named integer column's value and whether it is present and not missing.
func (r *Record) Int(name string) (int, bool) {
	col, v, ok := r.Lookup(name)
	if !ok || IsMissing(col, v) {
		return 0, false
	}
	return v.AsInt()
}

// Char returns the named character column's value and whether it is present and not missing.
func (r *Record) Char(name string) (rune, bool) {
	col, v, ok := r.Lookup(name)
	if !ok || IsMissing(col, v) {
		return 0, false
	}
	return v.AsChar()
}

func (r *Record) SetInt(col *catalog.ColumnDescriptor, v int) error {
	return r.set(col, Int(v))
}

func (r *Record) SetChar(col *catalog.ColumnDescriptor, v rune) error {
	return r.set(col, Char(v))
}

func (r *Record) SetFloat(col *catalog.ColumnDescriptor, v float64) error {
	return r.set(col, Float(v))
}

// Clear resets a column to its missing sentinel.
func (r *Record) Clear(col *catalog.ColumnDescriptor) error {
	return r.set(col, MissingValue(col))
}

func (r *Record) set(col *catalog.ColumnDescriptor, v Value) error {
	if _, ok := r.values[col]; !ok {
		return &dserror.Error{
			Kind:   dserror.KindTypeMismatch,
			Row:    r.RowIndex,
			Column: col.Name,
			Msg:    "column is not part of the record's catalog",
		}
	}
	if v.kind != col.Kind {
		return &dserror.Error{
			Kind:   dserror.KindTypeMismatch,
			Row:    r.RowIndex,
			Column: col.Name,
			Msg:    "cannot store " + v.kind.String() + " value in " + col.Kind.String() + " column",
		}
	}
	r.values[col] = sanitize(col, v)
	return nil
}

// Columns returns the record's columns in catalog order.
func (r *Record) Columns() []*catalog.ColumnDescriptor {
	return r.cat.Columns()
}

// Equal compares two records ignoring QC flag columns. Floats compare within tolerance,
// longitudes modulo 360 degrees, and a missing second equals zero seconds.
func (r *Record) Equal(o *Record) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	for col, va := range r.values {
		if col.QCFlag {
			continue
		}
		vb, ok := o.values[col]
		if !ok {
			vb = MissingValue(col)
		}
		if !valuesEqual(col, va, vb) {
			return false
		}
	}
	for col, vb := range o.values {
		if col.QCFlag {
			continue
		}
		if _, ok := r.values[col]; ok {
			continue
		}
		if !valuesEqual(col, MissingValue(col), vb) {
			return false
		}
	}
	return true
}

func valuesEqual(col *catalog.ColumnDescriptor, a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind != catalog.KindFloat {
		return a == b
	}

	x, y := a.f, b.f
	if col.Name == catalog.ColSecond {
		if x == FloatMissing {
			x = 0
		}
		if y == FloatMissing {
			y = 0
		}
	}
	missX, missY := x == FloatMissing, y == FloatMissing
	if missX || missY {
		return missX == missY
	}
	if col.Longitude {
		return LongitudesEqual(x, y)
	}
	return scalar.EqualWithinAbsOrRel(x, y, AbsTolerance, RelTolerance)
}

// LongitudesEqual compares two longitudes in degrees within tolerance, treating values that
// differ by a multiple of 360 as equal. The relative tolerance scales with the raw magnitudes
// so the result does not depend on sign.
func LongitudesEqual(a, b float64) bool {
	if scalar.EqualWithinAbsOrRel(a, b, AbsTolerance, RelTolerance) {
		return true
	}
	d := math.Abs(math.Remainder(a-b, 360))
	return d <= max(AbsTolerance, RelTolerance*max(math.Abs(a), math.Abs(b)))
}

// Hash is consistent with Equal. It covers only non-missing integer and character values of
// non-flag columns, since floats compare within a tolerance.
func (r *Record) Hash() uint64 {
	cols := make([]*catalog.ColumnDescriptor, 0, len(r.values))
	for col, v := range r.values {
		if col.QCFlag || col.Kind == catalog.KindFloat || IsMissing(col, v) {
			continue
		}
		cols = append(cols, col)
	}
	slices.SortFunc(cols, func(a, b *catalog.ColumnDescriptor) int {
		return strings.Compare(a.Name, b.Name)
	})

	h := xxhash.New()
	var buf [8]byte
	for _, col := range cols {
		_, _ = h.WriteString(col.Name)
		v := r.values[col]
		switch v.kind {
		case catalog.KindInt:
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(v.i)))
		case catalog.KindChar:
			binary.LittleEndian.PutUint64(buf[:], uint64(v.c))
		}
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
