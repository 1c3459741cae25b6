package valuation

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// tableDocument is the on-disk YAML layout used for export, import and the
// optional seed file:
//
//	coefficients:
//	  - age: 65
//	    percentage: 44
type tableDocument struct {
	Coefficients []yamlEntry `yaml:"coefficients"`
}

type yamlEntry struct {
	Age        int     `yaml:"age"`
	Percentage float64 `yaml:"percentage"`
}

// MarshalYAML renders the table as a YAML document.
func MarshalYAML(t *Table) ([]byte, error) {
	doc := tableDocument{Coefficients: make([]yamlEntry, 0, t.Len())}
	for _, e := range t.Entries() {
		doc.Coefficients = append(doc.Coefficients, yamlEntry{Age: e.Age, Percentage: e.Percentage.InexactFloat64()})
	}
	return yaml.Marshal(doc)
}

// UnmarshalYAML parses and validates a YAML table document.
func UnmarshalYAML(data []byte) (*Table, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse coefficient table: %w", err)
	}
	entries := make([]Entry, len(doc.Coefficients))
	for i, e := range doc.Coefficients {
		entries[i] = Entry{Age: e.Age, Percentage: decimal.NewFromFloat(e.Percentage)}
	}
	return NewTable(entries)
}

// ReadYAML reads a table document from r.
func ReadYAML(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read coefficient table: %w", err)
	}
	return UnmarshalYAML(data)
}
