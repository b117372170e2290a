package dbschema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLSpec is the on-disk schema description novasql-admin's
// create-relation --schema-file flag reads: a relation name plus an
// ordered field list, one YAML document per relation.
type YAMLSpec struct {
	Name   string      `yaml:"name"`
	Fields []YAMLField `yaml:"fields"`
}

// YAMLField names a field's on-disk type by string so schema files stay
// readable without importing FieldType constants.
type YAMLField struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Width int    `yaml:"width,omitempty"`
}

func parseFieldType(s string) (FieldType, error) {
	switch s {
	case "int":
		return FieldInt, nil
	case "float":
		return FieldFloat, nil
	case "bool":
		return FieldBool, nil
	case "char":
		return FieldChar, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// ToSchema converts a parsed YAMLSpec into a Schema, validating field types.
func (s YAMLSpec) ToSchema() (Schema, error) {
	fields := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		ft, err := parseFieldType(f.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("dbschema: field %s: %w", f.Name, err)
		}
		fields[i] = Field{Name: f.Name, Type: ft, Width: f.Width}
	}
	return New(s.Name, fields)
}

// LoadYAMLSchema reads and parses a schema file from path.
func LoadYAMLSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("dbschema: read schema file: %w", err)
	}
	var spec YAMLSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Schema{}, fmt.Errorf("dbschema: parse schema file: %w", err)
	}
	return spec.ToSchema()
}
