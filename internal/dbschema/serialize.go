package dbschema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PackSchema produces the opaque byte string spec.md §6 requires the
// FileHeader to embed: round-trips through UnpackSchema to an equal Schema
// value. Grounded on the length-prefixed-field style this module already
// uses for its wire framing (server/novasqlwire/frame.go).
func (s Schema) PackSchema() []byte {
	var buf bytes.Buffer
	writeString(&buf, s.Name)
	binary.Write(&buf, binary.LittleEndian, uint16(len(s.Fields)))
	for _, f := range s.Fields {
		writeString(&buf, f.Name)
		buf.WriteByte(byte(f.Type))
		binary.Write(&buf, binary.LittleEndian, uint32(f.Width))
	}
	return buf.Bytes()
}

// UnpackSchema is the inverse of PackSchema.
func UnpackSchema(data []byte) (Schema, error) {
	r := bytes.NewReader(data)
	name, err := readString(r)
	if err != nil {
		return Schema{}, fmt.Errorf("dbschema: unpack name: %w", err)
	}
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return Schema{}, fmt.Errorf("dbschema: unpack field count: %w", err)
	}
	fields := make([]Field, n)
	for i := range fields {
		fn, err := readString(r)
		if err != nil {
			return Schema{}, fmt.Errorf("dbschema: unpack field name: %w", err)
		}
		ft, err := r.ReadByte()
		if err != nil {
			return Schema{}, fmt.Errorf("dbschema: unpack field type: %w", err)
		}
		var width uint32
		if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
			return Schema{}, fmt.Errorf("dbschema: unpack field width: %w", err)
		}
		fields[i] = Field{Name: fn, Type: FieldType(ft), Width: int(width)}
	}
	return New(name, fields)
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return "", err
	}
	return string(b), nil
}

// YAMLSpec is the on-disk shape novasql-admin reads with --schema-file
// (gopkg.in/yaml.v3), mapping directly to a Schema via ToSchema.
type YAMLSpec struct {
	Name   string      `yaml:"name"`
	Fields []YAMLField `yaml:"fields"`
}

type YAMLField struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Width int    `yaml:"width,omitempty"`
}

// ToSchema converts a YAMLSpec into a validated Schema.
func (y YAMLSpec) ToSchema() (Schema, error) {
	fields := make([]Field, len(y.Fields))
	for i, yf := range y.Fields {
		var ft FieldType
		switch yf.Type {
		case "int":
			ft = FieldInt
		case "float":
			ft = FieldFloat
		case "bool":
			ft = FieldBool
		case "char":
			ft = FieldChar
		default:
			return Schema{}, fmt.Errorf("%w: %s", ErrUnknownType, yf.Type)
		}
		fields[i] = Field{Name: yf.Name, Type: ft, Width: yf.Width}
	}
	return New(y.Name, fields)
}
