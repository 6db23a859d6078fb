package record

import (
	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/flags"
)

// RangeFlagName names flags raised for out-of-range values.
const RangeFlagName = "range"

// CheckBounds flags every non-missing numeric value that lies outside its column's bounds.
// cols gives the input column order used for the flag column index; nil entries are skipped.
func CheckBounds(cols []*catalog.ColumnDescriptor, records []*Record) flags.Set {
	var entries []flags.Entry
	for _, rec := range records {
		for colIdx, col := range cols {
			if col == nil || col.Bounds == nil {
				continue
			}
			v, ok := rec.values[col]
			if !ok || IsMissing(col, v) {
				continue
			}
			n, ok := v.Number()
			if !ok || col.Bounds.Contains(n) {
				continue
			}
			entries = append(entries, flags.Entry{
				Row:      rec.RowIndex,
				Column:   colIdx,
				Severity: flags.SeverityQuestionable,
				Value:    flags.WOCEQuestionable,
				Name:     RangeFlagName,
			})
		}
	}
	return flags.NewSet(entries...)
}

// CheckBounds flags out-of-range values of the built records.
func (res *BuildResult) CheckBounds() flags.Set {
	return CheckBounds(res.Columns, res.Records)
}
