// Package dbschema implements the Schema collaborator assumed by spec.md §1:
// a named relation's field list, its packed tuple width, and pack/unpack of
// tuple byte strings. spec.md treats schema parsing as out of the storage
// core's scope, but the core needs a concrete value to compile and run
// against; this is grounded on this module's own
// internal/record/schema.go and internal/storage/rowcodec.go, simplified to
// the fixed-width-only tuple representation the slotted page layer assumes
// (spec.md §3: "size is constant per schema").
package dbschema

import (
	"errors"
	"fmt"
	"math"

	"github.com/tuannm99/novasql/internal/alias/bx"
)

// FieldType enumerates the fixed-width column types a Schema can describe.
type FieldType uint8

const (
	FieldInt FieldType = iota
	FieldFloat
	FieldBool
	FieldChar // fixed-width, zero-padded UTF-8 bytes
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldChar:
		return "char"
	default:
		return "unknown"
	}
}

// Field describes one column: its name, type, and (for FieldChar) its
// fixed byte width.
type Field struct {
	Name  string
	Type  FieldType
	Width int // only meaningful for FieldChar; Int/Float/Bool are fixed-width
}

func (f Field) size() int {
	switch f.Type {
	case FieldInt:
		return 8
	case FieldFloat:
		return 8
	case FieldBool:
		return 1
	case FieldChar:
		return f.Width
	default:
		return 0
	}
}

var (
	ErrDuplicateField  = errors.New("dbschema: duplicate field name")
	ErrSchemaMismatch  = errors.New("dbschema: tuple does not match schema size")
	ErrUnknownField    = errors.New("dbschema: unknown field")
	ErrUnknownType     = errors.New("dbschema: unknown field type")
	ErrValueTypeMismatch = errors.New("dbschema: value does not match field type")
)

// Schema is an ordered, named list of fixed-width fields plus the resulting
// packed tuple size. Field names are unique within a schema (spec.md §3).
type Schema struct {
	Name   string
	Fields []Field
	size   int
}

// New builds a Schema, validating that field names are unique and
// precomputing the packed tuple size.
func New(name string, fields []Field) (Schema, error) {
	seen := make(map[string]struct{}, len(fields))
	total := 0
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return Schema{}, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Type == FieldChar && f.Width <= 0 {
			return Schema{}, fmt.Errorf("dbschema: field %s has non-positive char width", f.Name)
		}
		total += f.size()
	}
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Schema{Name: name, Fields: cp, size: total}, nil
}

// Size returns the packed tuple width in bytes. Constant per schema.
func (s Schema) Size() int { return s.size }

// FieldNames returns the ordered list of field names.
func (s Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// IndexOf returns the position of a field by name, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// HasField reports whether name is a field of this schema.
func (s Schema) HasField(name string) bool { return s.IndexOf(name) >= 0 }

// Concat returns a new schema whose field list is the concatenation of
// lhs and rhs fields, used by Join/Union to build output schemas. Returns
// an error if field names overlap (spec.md §4.4.5: "disjoint field names").
func Concat(name string, lhs, rhs Schema) (Schema, error) {
	fields := make([]Field, 0, len(lhs.Fields)+len(rhs.Fields))
	fields = append(fields, lhs.Fields...)
	fields = append(fields, rhs.Fields...)
	return New(name, fields)
}

// Project returns a sub-schema containing only the named fields, in the
// order given.
func (s Schema) Project(name string, fieldNames []string) (Schema, error) {
	fields := make([]Field, 0, len(fieldNames))
	for _, fn := range fieldNames {
		idx := s.IndexOf(fn)
		if idx < 0 {
			return Schema{}, fmt.Errorf("%w: %s", ErrUnknownField, fn)
		}
		fields = append(fields, s.Fields[idx])
	}
	return New(name, fields)
}

// SameFields reports whether two schemas have identical field name+type
// sequences, the condition spec.md §4.4.4 requires of Union's children.
func (s Schema) SameFields(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != other.Fields[i].Name || s.Fields[i].Type != other.Fields[i].Type {
			return false
		}
	}
	return true
}

// Pack serializes an ordered slice of values into a fixed-width byte string
// of exactly s.Size() bytes, in field order.
func (s Schema) Pack(values []any) ([]byte, error) {
	if len(values) != len(s.Fields) {
		return nil, fmt.Errorf("%w: %d values for %d fields", ErrSchemaMismatch, len(values), len(s.Fields))
	}
	out := make([]byte, s.size)
	off := 0
	for i, f := range s.Fields {
		sz := f.size()
		if err := packField(f, values[i], out[off:off+sz]); err != nil {
			return nil, err
		}
		off += sz
	}
	return out, nil
}

func packField(f Field, v any, dst []byte) error {
	switch f.Type {
	case FieldInt:
		x, ok := asInt64(v)
		if !ok {
			return fmt.Errorf("%w: field %s expects int, got %T", ErrValueTypeMismatch, f.Name, v)
		}
		bx.PutU64(dst, uint64(x))
	case FieldFloat:
		x, ok := asFloat64(v)
		if !ok {
			return fmt.Errorf("%w: field %s expects float, got %T", ErrValueTypeMismatch, f.Name, v)
		}
		bx.PutU64(dst, math.Float64bits(x))
	case FieldBool:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: field %s expects bool, got %T", ErrValueTypeMismatch, f.Name, v)
		}
		if x {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case FieldChar:
		x, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: field %s expects string, got %T", ErrValueTypeMismatch, f.Name, v)
		}
		if len(x) > len(dst) {
			return fmt.Errorf("dbschema: value for field %s exceeds width %d", f.Name, f.Width)
		}
		copy(dst, x)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownType, f.Type)
	}
	return nil
}

// Unpack deserializes a byte string of exactly s.Size() bytes into an
// ordered slice of values, in field order.
func (s Schema) Unpack(data []byte) ([]any, error) {
	if len(data) != s.size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSchemaMismatch, len(data), s.size)
	}
	out := make([]any, len(s.Fields))
	off := 0
	for i, f := range s.Fields {
		sz := f.size()
		v, err := unpackField(f, data[off:off+sz])
		if err != nil {
			return nil, err
		}
		out[i] = v
		off += sz
	}
	return out, nil
}

func unpackField(f Field, src []byte) (any, error) {
	switch f.Type {
	case FieldInt:
		return int64(bx.U64(src)), nil
	case FieldFloat:
		return math.Float64frombits(bx.U64(src)), nil
	case FieldBool:
		return src[0] != 0, nil
	case FieldChar:
		end := len(src)
		for end > 0 && src[end-1] == 0 {
			end--
		}
		return string(src[:end]), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, f.Type)
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
