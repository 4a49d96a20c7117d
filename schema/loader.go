package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table is one declared table: its fields plus any table-level indexes.
type Table struct {
	Name    string
	Fields  []Field
	Indexes []IndexDefinition
}

type yamlFile struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name    string      `yaml:"name"`
	Fields  []yamlField `yaml:"fields"`
	Indexes []yamlIndex `yaml:"indexes"`
}

type yamlField struct {
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"`
	Length    int     `yaml:"length"`
	Precision int     `yaml:"precision"`
	Required  bool    `yaml:"required"`
	Unique    bool    `yaml:"unique"`
	Indexed   bool    `yaml:"indexed"`
	Default   *string `yaml:"default"`
}

type yamlIndex struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
	Type    string   `yaml:"type"`
	Where   string   `yaml:"where"`
}

// LoadTables reads the declared schema from a YAML file.
func LoadTables(filename string) ([]Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var yf yamlFile
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return nil, fmt.Errorf("unmarshalling YAML: %w", err)
	}

	var tables []Table
	for _, t := range yf.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("schema file contains a table with no name")
		}
		table := Table{Name: t.Name}
		for _, f := range t.Fields {
			table.Fields = append(table.Fields, Field{
				Name:      f.Name,
				Type:      f.Type,
				Length:    f.Length,
				Precision: f.Precision,
				Required:  f.Required,
				Unique:    f.Unique,
				Indexed:   f.Indexed,
				Default:   f.Default,
			})
		}
		for _, idx := range t.Indexes {
			table.Indexes = append(table.Indexes, IndexDefinition{
				Name:    idx.Name,
				Table:   t.Name,
				Columns: idx.Columns,
				Unique:  idx.Unique,
				Type:    idx.Type,
				Where:   idx.Where,
			})
		}
		tables = append(tables, table)
	}

	return tables, nil
}

// FileProvider answers declared-field lookups from a loaded schema file.
type FileProvider struct {
	tables map[string]Table
	order  []string
}

func NewFileProvider(filename string) (*FileProvider, error) {
	tables, err := LoadTables(filename)
	if err != nil {
		return nil, err
	}
	p := &FileProvider{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		p.tables[t.Name] = t
		p.order = append(p.order, t.Name)
	}
	return p, nil
}

func (p *FileProvider) DeclaredTable(name string) (Table, error) {
	t, ok := p.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("table %q not declared in schema file", name)
	}
	return t, nil
}

// TableNames returns declared tables in declaration order.
func (p *FileProvider) TableNames() []string {
	return append([]string(nil), p.order...)
}
