package record

import (
	"math"
	"strconv"
	"unicode"

	"github.com/oceanco2/intake/intake/pkg/catalog"
)

// Missing-value sentinels.
const (
	IntMissing     = -999
	FloatMissing   = -1.0e34
	CharMissing    = ' '
	FlagNotChecked = '?'
	RegionGlobal   = 'Z'
)

// Value is a single typed cell: an integer, a single character or a float.
type Value struct {
	kind catalog.Kind
	i    int
	c    rune
	f    float64
}

func Int(v int) Value       { return Value{kind: catalog.KindInt, i: v} }
func Char(v rune) Value     { return Value{kind: catalog.KindChar, c: v} }
func Float(v float64) Value { return Value{kind: catalog.KindFloat, f: v} }

func (v Value) Kind() catalog.Kind { return v.kind }

// AsInt returns the integer and whether the value is an integer.
func (v Value) AsInt() (int, bool) { return v.i, v.kind == catalog.KindInt }

// AsChar returns the character and whether the value is a character.
func (v Value) AsChar() (rune, bool) { return v.c, v.kind == catalog.KindChar }

// AsFloat returns the float and whether the value is a float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == catalog.KindFloat }

// Number returns the value as a float64 for range checks. Characters are not numbers.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case catalog.KindInt:
		return float64(v.i), true
	case catalog.KindFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) String() string {
	switch v.kind {
	case catalog.KindInt:
		return strconv.Itoa(v.i)
	case catalog.KindChar:
		return string(v.c)
	case catalog.KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
	return ""
}

// MissingValue returns the missing sentinel for a column.
func MissingValue(col *catalog.ColumnDescriptor) Value {
	switch col.Kind {
	case catalog.KindInt:
		return Int(IntMissing)
	case catalog.KindChar:
		switch {
		case col.QCFlag:
			return Char(FlagNotChecked)
		case col.Name == catalog.ColRegionID:
			return Char(RegionGlobal)
		}
		return Char(CharMissing)
	case catalog.KindFloat:
		return Float(FloatMissing)
	}
	return Value{}
}

// IsMissing reports whether v is the missing sentinel for col.
func IsMissing(col *catalog.ColumnDescriptor, v Value) bool {
	return v == MissingValue(col)
}

// sanitize applies the missing-sentinel rule: absent or invalid values become the column's sentinel.
func sanitize(col *catalog.ColumnDescriptor, v Value) Value {
	switch v.kind {
	case catalog.KindInt:
		if v.i == IntMissing {
			return MissingValue(col)
		}
	case catalog.KindChar:
		if v.c == 0 || v.c == CharMissing || !unicode.IsPrint(v.c) {
			return MissingValue(col)
		}
	case catalog.KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) || v.f == FloatMissing {
			return MissingValue(col)
		}
	default:
		return MissingValue(col)
	}
	return v
}
