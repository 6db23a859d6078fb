package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the value kind of a data column.
type Kind int

const (
	// KindUnknown is the reserved unassigned kind. Columns still carrying it are rejected.
	KindUnknown Kind = iota
	KindInt
	KindChar
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INTEGER"
	case KindChar:
		return "CHAR"
	case KindFloat:
		return "DOUBLE"
	default:
		return "UNKNOWN"
	}
}

// ParseKind parses the column type names used in column definitions.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTEGER", "INT":
		return KindInt, nil
	case "CHAR", "CHARACTER":
		return KindChar, nil
	case "DOUBLE", "FLOAT":
		return KindFloat, nil
	case "UNKNOWN", "":
		return KindUnknown, nil
	}
	return KindUnknown, fmt.Errorf("invalid column kind %q", s)
}

// Role records where the values of a column come from.
type Role int

const (
	RoleFileData Role = iota
	RoleFileMetadata
	RoleUser
)

func (r Role) String() string {
	switch r {
	case RoleFileMetadata:
		return "file-metadata"
	case RoleUser:
		return "user"
	default:
		return "file-data"
	}
}

// ParseRole parses a role name; empty means file data.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "file-data":
		return RoleFileData, nil
	case "file-metadata":
		return RoleFileMetadata, nil
	case "user":
		return RoleUser, nil
	}
	return RoleFileData, fmt.Errorf("invalid column role %q", s)
}

// Bounds is an inclusive acceptable range for a column's values.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// ColumnDescriptor identifies a data field. Descriptors are immutable once a Catalog owns them;
// records refer to them by pointer.
type ColumnDescriptor struct {
	Name        string
	Kind        Kind
	Role        Role
	Bounds      *Bounds
	QCFlag      bool
	Longitude   bool
	Units       string
	Description string
}

func (c *ColumnDescriptor) String() string {
	return c.Name + ":" + c.Kind.String()
}

// Unknown is the reserved descriptor for columns the contributor has not assigned a type to.
var Unknown = &ColumnDescriptor{Name: "unknown", Kind: KindUnknown}

// Catalog is the ordered, name-indexed set of known column descriptors.
type Catalog struct {
	columns []*ColumnDescriptor
	byName  map[string]*ColumnDescriptor
}

// New builds a catalog, taking ownership of copies of the given descriptors.
func New(cols ...ColumnDescriptor) (*Catalog, error) {
	c := &Catalog{
		columns: make([]*ColumnDescriptor, 0, len(cols)),
		byName:  make(map[string]*ColumnDescriptor, len(cols)),
	}
	for i := range cols {
		col := cols[i]
		col.Name = canonicalName(col.Name)
		if col.Name == "" {
			return nil, fmt.Errorf("column %d: name is required", i)
		}
		if col.Kind == KindUnknown {
			return nil, fmt.Errorf("column %q: kind is required", col.Name)
		}
		if _, dup := c.byName[col.Name]; dup {
			return nil, fmt.Errorf("column %q: duplicate name", col.Name)
		}
		if col.QCFlag && col.Kind != KindChar {
			return nil, fmt.Errorf("column %q: qc flag columns must be CHAR", col.Name)
		}
		if col.Longitude && col.Kind != KindFloat {
			return nil, fmt.Errorf("column %q: longitude columns must be DOUBLE", col.Name)
		}
		if col.Bounds != nil {
			if col.Bounds.Min > col.Bounds.Max {
				return nil, fmt.Errorf("column %q: bounds min %v exceeds max %v", col.Name, col.Bounds.Min, col.Bounds.Max)
			}
			b := *col.Bounds
			col.Bounds = &b
		}
		c.columns = append(c.columns, &col)
		c.byName[col.Name] = &col
	}
	return c, nil
}

// Columns returns the descriptors in catalog order. The slice must not be modified.
func (c *Catalog) Columns() []*ColumnDescriptor {
	return c.columns
}

func (c *Catalog) Len() int {
	return len(c.columns)
}

// Lookup finds a descriptor by name, case-insensitively.
func (c *Catalog) Lookup(name string) (*ColumnDescriptor, bool) {
	col, ok := c.byName[canonicalName(name)]
	return col, ok
}

// ParseColumnDef turns a "name:KIND" definition, as supplied by contributors when assigning
// column types, into a declared descriptor. A bare "name" resolves to the catalog descriptor
// when known and to Unknown otherwise.
func (c *Catalog) ParseColumnDef(def string) (*ColumnDescriptor, error) {
	name, kindStr, hasKind := strings.Cut(def, ":")
	name = canonicalName(name)
	if name == "" {
		return nil, fmt.Errorf("invalid column definition %q: name is required", def)
	}
	registered, known := c.byName[name]
	if !hasKind {
		if known {
			return registered, nil
		}
		return Unknown, nil
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return nil, fmt.Errorf("invalid column definition %q: %w", def, err)
	}
	if kind == KindUnknown {
		return Unknown, nil
	}
	if known && registered.Kind == kind {
		return registered, nil
	}
	return &ColumnDescriptor{Name: name, Kind: kind}, nil
}

// ParseColumnDefs parses a header of column definitions.
func (c *Catalog) ParseColumnDefs(defs []string) ([]*ColumnDescriptor, error) {
	cols := make([]*ColumnDescriptor, 0, len(defs))
	var errs []error
	for _, def := range defs {
		col, err := c.ParseColumnDef(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cols = append(cols, col)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cols, nil
}

func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
