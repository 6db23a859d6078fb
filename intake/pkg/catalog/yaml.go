package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlCatalog struct {
	Columns []yamlColumn `yaml:"columns"`
}

type yamlColumn struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"`
	Role        string      `yaml:"role"`
	Units       string      `yaml:"units"`
	Description string      `yaml:"description"`
	QCFlag      bool        `yaml:"qc_flag"`
	Longitude   bool        `yaml:"longitude"`
	Bounds      *yamlBounds `yaml:"bounds"`
}

type yamlBounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// LoadYAML builds a catalog from a YAML document of the form
//
//	columns:
//	  - name: longitude
//	    kind: DOUBLE
//	    role: file-data
//	    longitude: true
//	    bounds: {min: -540, max: 540}
func LoadYAML(r io.Reader) (*Catalog, error) {
	var doc yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(doc.Columns) == 0 {
		return nil, fmt.Errorf("catalog has no columns")
	}

	cols := make([]ColumnDescriptor, 0, len(doc.Columns))
	for i, yc := range doc.Columns {
		kind, err := ParseKind(yc.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %d (%s): %w", i, yc.Name, err)
		}
		role, err := ParseRole(yc.Role)
		if err != nil {
			return nil, fmt.Errorf("column %d (%s): %w", i, yc.Name, err)
		}
		col := ColumnDescriptor{
			Name:        yc.Name,
			Kind:        kind,
			Role:        role,
			Units:       yc.Units,
			Description: yc.Description,
			QCFlag:      yc.QCFlag,
			Longitude:   yc.Longitude,
		}
		if yc.Bounds != nil {
			col.Bounds = &Bounds{Min: yc.Bounds.Min, Max: yc.Bounds.Max}
		}
		cols = append(cols, col)
	}
	return New(cols...)
}
