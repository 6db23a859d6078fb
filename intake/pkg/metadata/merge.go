package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oceanco2/intake/intake/pkg/dserror"
	"github.com/oceanco2/intake/intake/pkg/expocode"
)

// ExcludedFields are recomputed from the data rather than asserted by contributors. A merge
// copies them from the primary document.
var ExcludedFields = map[string]bool{
	FieldExpocode:  true,
	FieldStartDate: true,
	FieldEndDate:   true,
	FieldWestLon:   true,
	FieldEastLon:   true,
	FieldSouthLat:  true,
	FieldNorthLat:  true,
}

// Merge combines two documents describing the same dataset into a new one. Neither input is
// modified. A blank value never conflicts: the other side's value is kept, and only two
// differing non-blank values become a conflict.
func Merge(primary, secondary *Document) (*Document, error) {
	pCode, err := identifier(primary, "primary")
	if err != nil {
		return nil, err
	}
	sCode, err := identifier(secondary, "secondary")
	if err != nil {
		return nil, err
	}
	if pCode.Code != sCode.Code {
		e := dserror.New(dserror.KindIdentifierMismatch, "primary %s differs from secondary %s", pCode.Code, sCode.Code)
		e.Column = FieldExpocode
		return nil, e
	}

	out := NewDocument()
	for name, pf := range primary.fields {
		if ExcludedFields[name] {
			out.fields[name] = pf
			continue
		}
		sf, ok := secondary.fields[name]
		if !ok {
			out.fields[name] = pf
			continue
		}
		out.fields[name] = mergeField(pf, sf)
	}
	for name, sf := range secondary.fields {
		if ExcludedFields[name] {
			continue
		}
		if _, ok := primary.fields[name]; ok {
			continue
		}
		out.fields[name] = sf
	}
	return out, nil
}

func mergeField(p, s Field) Field {
	switch {
	case p.conflicted:
		return p
	case s.conflicted:
		return s
	case s.Blank():
		return p
	case p.Blank():
		return s
	case strings.TrimSpace(p.value) == strings.TrimSpace(s.value):
		return p
	}
	return Conflicted(p.value, s.value)
}

// MergeAll folds documents left to right with the first as primary.
func MergeAll(docs ...*Document) (*Document, error) {
	if len(docs) == 0 {
		return nil, errors.New("no documents to merge")
	}
	if _, err := identifier(docs[0], "primary"); err != nil {
		return nil, err
	}
	merged := docs[0].Clone()
	for i, d := range docs[1:] {
		next, err := Merge(merged, d)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		merged = next
	}
	return merged, nil
}

func identifier(d *Document, which string) (expocode.Expocode, error) {
	f, ok := d.Get(FieldExpocode)
	if !ok || f.IsConflicted() {
		e := dserror.New(dserror.KindInvalidIdentifier, "%s document has no usable expocode", which)
		e.Column = FieldExpocode
		return expocode.Expocode{}, e
	}
	code, err := expocode.Normalize(f.Value())
	if err != nil {
		return expocode.Expocode{}, fmt.Errorf("%s document: %w", which, err)
	}
	return code, nil
}
