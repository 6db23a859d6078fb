package record

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/dserror"
	"github.com/oceanco2/intake/intake/pkg/flags"
)

// MissingToken is the text that marks a missing value, compared case-insensitively.
const MissingToken = "NaN"

type BuilderConfig struct {
	Logger  *slog.Logger
	Catalog *catalog.Catalog
}

func (cfg *BuilderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	return nil
}

// Builder turns raw rows into records against a catalog.
type Builder struct {
	log *slog.Logger
	cfg BuilderConfig
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// BuildResult holds the records built from the rows that had the right shape, and every error
// encountered. Bad cells leave the missing sentinel in place and do not stop the row.
type BuildResult struct {
	Records []*Record
	Errors  []*dserror.Error

	// Columns holds the catalog descriptor used for each input column, or nil when the
	// column was skipped.
	Columns []*catalog.ColumnDescriptor

	badCells []cell
}

type cell struct {
	row, col int
}

// Err joins all errors, or returns nil when there were none.
func (res *BuildResult) Err() error {
	return dserror.Join(res.Errors)
}

// ColumnErrors returns the errors that apply to whole columns rather than single rows.
func (res *BuildResult) ColumnErrors() []*dserror.Error {
	var out []*dserror.Error
	for _, e := range res.Errors {
		if e.Row == dserror.NoRow {
			out = append(out, e)
		}
	}
	return out
}

// ParseFlags returns a BAD flag for every cell whose text could not be parsed.
func (res *BuildResult) ParseFlags() flags.Set {
	entries := make([]flags.Entry, 0, len(res.badCells))
	for _, c := range res.badCells {
		entries = append(entries, flags.Entry{
			Row:      c.row,
			Column:   c.col,
			Severity: flags.SeverityBad,
			Value:    flags.WOCEBad,
			Name:     "parse",
		})
	}
	return flags.NewSet(entries...)
}

// Build parses rows whose cells line up with cols. Columns of the unassigned kind are rejected,
// columns unknown to the catalog are skipped, and columns declared with a kind that differs from
// the catalog are rejected and skipped.
func (b *Builder) Build(cols []*catalog.ColumnDescriptor, rows [][]string) *BuildResult {
	res := &BuildResult{
		Records: make([]*Record, 0, len(rows)),
		Columns: b.resolveColumns(cols),
	}
	for i, col := range cols {
		if res.Columns[i] != nil {
			continue
		}
		switch {
		case col == nil || col.Kind == catalog.KindUnknown:
			name := ""
			if col != nil {
				name = col.Name
			}
			res.Errors = append(res.Errors, &dserror.Error{
				Kind:   dserror.KindUnresolvedColumnType,
				Row:    dserror.NoRow,
				Column: name,
				Msg:    "column " + strconv.Itoa(i) + " has no assigned type",
			})
		default:
			if reg, ok := b.cfg.Catalog.Lookup(col.Name); ok {
				res.Errors = append(res.Errors, &dserror.Error{
					Kind:   dserror.KindTypeMismatch,
					Row:    dserror.NoRow,
					Column: col.Name,
					Msg:    "declared " + col.Kind.String() + " but catalog has " + reg.Kind.String(),
				})
			}
		}
	}

	for rowIdx, row := range rows {
		if len(row) != len(cols) {
			res.Errors = append(res.Errors, dserror.AtRow(dserror.KindShapeMismatch, rowIdx,
				"expected %d values, got %d", len(cols), len(row)))
			continue
		}
		rec := New(b.cfg.Catalog, rowIdx)
		for colIdx, col := range res.Columns {
			if col == nil {
				continue
			}
			v, err := ParseValue(col, row[colIdx])
			if err != nil {
				err.Row = rowIdx
				res.Errors = append(res.Errors, err)
				res.badCells = append(res.badCells, cell{row: rowIdx, col: colIdx})
				continue
			}
			rec.values[col] = sanitize(col, v)
		}
		res.Records = append(res.Records, rec)
	}

	b.log.Debug("record: built records",
		"rows", len(rows),
		"records", len(res.Records),
		"errors", len(res.Errors))
	return res
}

// resolveColumns maps each declared column to its catalog descriptor, or nil when the column
// cannot be used.
func (b *Builder) resolveColumns(cols []*catalog.ColumnDescriptor) []*catalog.ColumnDescriptor {
	out := make([]*catalog.ColumnDescriptor, len(cols))
	for i, col := range cols {
		if col == nil || col.Kind == catalog.KindUnknown {
			continue
		}
		reg, ok := b.cfg.Catalog.Lookup(col.Name)
		if !ok || reg.Kind != col.Kind {
			continue
		}
		out[i] = reg
	}
	return out
}

// ParseValue parses raw text for a column. Blank text and the missing token give the column's
// missing sentinel.
func ParseValue(col *catalog.ColumnDescriptor, raw string) (Value, *dserror.Error) {
	text := strings.TrimSpace(raw)
	if text == "" || strings.EqualFold(text, MissingToken) {
		return MissingValue(col), nil
	}

	fail := func(msg string) *dserror.Error {
		return &dserror.Error{
			Kind:   dserror.KindParseFailure,
			Row:    dserror.NoRow,
			Column: col.Name,
			Text:   raw,
			Msg:    msg,
		}
	}

	switch col.Kind {
	case catalog.KindInt:
		if n, err := strconv.Atoi(text); err == nil {
			return Int(n), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return Value{}, fail("not an integer")
		}
		return Int(int(f)), nil
	case catalog.KindChar:
		if utf8.RuneCountInString(text) != 1 {
			return Value{}, fail("expected exactly one character")
		}
		r, _ := utf8.DecodeRuneInString(text)
		if !unicode.IsPrint(r) {
			return Value{}, fail("not a printable character")
		}
		return Char(r), nil
	case catalog.KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return Value{}, fail("not a finite number")
		}
		return Float(f), nil
	}
	return Value{}, fail("column has no assigned type")
}
