// Package metadata merges descriptive metadata documents uploaded for the same dataset.
//
// A field is either resolved to one value or conflicted between two. Conflicts are an ordinary
// merge outcome awaiting human resolution, not an error.
package metadata

import (
	"maps"
	"slices"
	"strings"
)

// ConflictMarker is how a conflicted field is rendered for collaborators that only exchange strings.
const ConflictMarker = "%%CONFLICT%%"

// Well-known field names.
const (
	FieldExpocode      = "expocode"
	FieldDatasetName   = "dataset_name"
	FieldPlatformName  = "platform_name"
	FieldPlatformType  = "platform_type"
	FieldInvestigators = "investigators"
	FieldOrganizations = "organizations"
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	FieldWestLon       = "west_lon"
	FieldEastLon       = "east_lon"
	FieldSouthLat      = "south_lat"
	FieldNorthLat      = "north_lat"
)

// RequiredFields must be present, non-blank and unconflicted for a document to be acceptable.
var RequiredFields = []string{
	FieldExpocode,
	FieldDatasetName,
	FieldPlatformName,
	FieldInvestigators,
	FieldOrganizations,
	FieldStartDate,
	FieldEndDate,
	FieldWestLon,
	FieldEastLon,
	FieldSouthLat,
	FieldNorthLat,
}

// Field is a metadata value: Resolved(v) or Conflicted(a, b).
type Field struct {
	value      string
	other      string
	conflicted bool
}

func Resolved(v string) Field {
	return Field{value: v}
}

func Conflicted(a, b string) Field {
	return Field{value: a, other: b, conflicted: true}
}

func (f Field) IsConflicted() bool {
	return f.conflicted
}

// Blank reports whether a resolved field holds only whitespace.
func (f Field) Blank() bool {
	return !f.conflicted && strings.TrimSpace(f.value) == ""
}

// Value returns the resolved value, or ConflictMarker for a conflicted field.
func (f Field) Value() string {
	if f.conflicted {
		return ConflictMarker
	}
	return f.value
}

// Alternatives returns the two disagreeing values of a conflicted field.
func (f Field) Alternatives() (a, b string, ok bool) {
	return f.value, f.other, f.conflicted
}

// Document is a set of named metadata fields. Names are case-insensitive.
type Document struct {
	fields map[string]Field
}

func NewDocument() *Document {
	return &Document{fields: make(map[string]Field)}
}

// FromStrings builds a document from a plain field map. A value equal to ConflictMarker
// becomes a conflicted field whose alternatives are unknown.
func FromStrings(values map[string]string) *Document {
	d := NewDocument()
	for name, v := range values {
		if v == ConflictMarker {
			d.Set(name, Conflicted("", ""))
			continue
		}
		d.Set(name, Resolved(v))
	}
	return d
}

func (d *Document) Set(name string, f Field) {
	d.fields[canonicalName(name)] = f
}

func (d *Document) Get(name string) (Field, bool) {
	f, ok := d.fields[canonicalName(name)]
	return f, ok
}

// Value returns the string form of a field, empty when absent.
func (d *Document) Value(name string) string {
	f, ok := d.Get(name)
	if !ok {
		return ""
	}
	return f.Value()
}

func (d *Document) Delete(name string) {
	delete(d.fields, canonicalName(name))
}

func (d *Document) Len() int {
	return len(d.fields)
}

// Names returns the field names in sorted order.
func (d *Document) Names() []string {
	return slices.Sorted(maps.Keys(d.fields))
}

// Strings renders the document as a plain field map.
func (d *Document) Strings() map[string]string {
	out := make(map[string]string, len(d.fields))
	for name, f := range d.fields {
		out[name] = f.Value()
	}
	return out
}

func (d *Document) Clone() *Document {
	return &Document{fields: maps.Clone(d.fields)}
}

// Equal reports whether both documents hold the same fields with the same values and conflicts.
func (d *Document) Equal(o *Document) bool {
	return maps.Equal(d.fields, o.fields)
}

// Conflicts returns the names of conflicted fields in sorted order.
func (d *Document) Conflicts() []string {
	var out []string
	for _, name := range d.Names() {
		if d.fields[name].conflicted {
			out = append(out, name)
		}
	}
	return out
}

// Missing returns the required fields that are absent or blank.
func (d *Document) Missing() []string {
	return d.MissingOf(RequiredFields)
}

// MissingOf returns the given fields that are absent or blank.
func (d *Document) MissingOf(required []string) []string {
	var out []string
	for _, name := range required {
		f, ok := d.Get(name)
		if !ok || f.Blank() {
			out = append(out, canonicalName(name))
		}
	}
	return out
}

// Acceptable reports whether every required field is present, non-blank and not conflicted.
func (d *Document) Acceptable() bool {
	return d.AcceptableFor(RequiredFields)
}

func (d *Document) AcceptableFor(required []string) bool {
	for _, name := range required {
		f, ok := d.Get(name)
		if !ok || f.Blank() || f.conflicted {
			return false
		}
	}
	return true
}

func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
