package models

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// FieldInfo describes one field for display, matching the catalog YAML structure.
type FieldInfo struct {
	Name        Field          `yaml:"name" json:"name"`
	Label       string         `yaml:"label" json:"label"`
	Help        string         `yaml:"help" json:"help"`
	Input       string         `yaml:"input" json:"input"`
	Unit        string         `yaml:"unit,omitempty" json:"unit,omitempty"`
	Step        float64        `yaml:"step,omitempty" json:"step,omitempty"`
	ScaleLabels map[int]string `yaml:"scale_labels,omitempty" json:"scaleLabels,omitempty"`
	// HigherIsBetter drives the change indicator when two assessments are compared.
	HigherIsBetter bool `yaml:"higher_is_better" json:"higherIsBetter"`
}

// Catalog holds display metadata for every assessment field.
type Catalog struct {
	Fields []FieldInfo `yaml:"fields"`

	byName map[Field]FieldInfo
}

// DefaultCatalog parses the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads and parses a catalog file, for deployments that relabel fields.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML and checks it covers exactly the assessment fields.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog YAML: %w", err)
	}

	catalog.byName = make(map[Field]FieldInfo, len(catalog.Fields))
	for _, info := range catalog.Fields {
		if !IsField(string(info.Name)) {
			return nil, fmt.Errorf("catalog: %w: %q", ErrUnknownField, info.Name)
		}
		if _, dup := catalog.byName[info.Name]; dup {
			return nil, fmt.Errorf("catalog: field %q listed twice", info.Name)
		}
		catalog.byName[info.Name] = info
	}
	for _, f := range AllFields() {
		if _, ok := catalog.byName[f]; !ok {
			return nil, fmt.Errorf("catalog: missing field %q", f)
		}
	}
	return &catalog, nil
}

// Info returns the metadata for f.
func (c *Catalog) Info(f Field) (FieldInfo, bool) {
	info, ok := c.byName[f]
	return info, ok
}

// Label returns the display label for f, falling back to the wire name.
func (c *Catalog) Label(f Field) string {
	if info, ok := c.byName[f]; ok && info.Label != "" {
		return info.Label
	}
	return string(f)
}
