package dbschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func employeeSchema(t *testing.T) Schema {
	t.Helper()
	s, err := New("employee", []Field{
		{Name: "id", Type: FieldInt},
		{Name: "age", Type: FieldInt},
	})
	require.NoError(t, err)
	return s
}

func TestSchemaSizeIsConstant(t *testing.T) {
	s := employeeSchema(t)
	assert.Equal(t, 16, s.Size())
}

func TestDuplicateFieldRejected(t *testing.T) {
	_, err := New("bad", []Field{{Name: "id", Type: FieldInt}, {Name: "id", Type: FieldInt}})
	require.ErrorIs(t, err, ErrDuplicateField)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	s := employeeSchema(t)
	packed, err := s.Pack([]any{int64(1), int64(25)})
	require.NoError(t, err)
	require.Len(t, packed, s.Size())

	values, err := s.Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(25)}, values)
}

func TestCharFieldPadsAndTrims(t *testing.T) {
	s, err := New("name", []Field{{Name: "n", Type: FieldChar, Width: 8}})
	require.NoError(t, err)

	packed, err := s.Pack([]any{"hi"})
	require.NoError(t, err)
	require.Len(t, packed, 8)

	values, err := s.Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, "hi", values[0])
}

func TestProjectSubset(t *testing.T) {
	s := employeeSchema(t)
	sub, err := s.Project("ages", []string{"age"})
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, sub.FieldNames())
	assert.Equal(t, 8, sub.Size())
}

func TestConcatRejectsOverlap(t *testing.T) {
	s := employeeSchema(t)
	_, err := Concat("joined", s, s)
	require.ErrorIs(t, err, ErrDuplicateField)
}

func TestSchemaPackUnpackRoundTrip(t *testing.T) {
	s := employeeSchema(t)
	data := s.PackSchema()
	s2, err := UnpackSchema(data)
	require.NoError(t, err)
	assert.Equal(t, s.Name, s2.Name)
	assert.Equal(t, s.Fields, s2.Fields)
	assert.Equal(t, s.Size(), s2.Size())
}

func TestYAMLSpecToSchema(t *testing.T) {
	y := YAMLSpec{
		Name: "employee",
		Fields: []YAMLField{
			{Name: "id", Type: "int"},
			{Name: "age", Type: "int"},
		},
	}
	s, err := y.ToSchema()
	require.NoError(t, err)
	assert.Equal(t, employeeSchema(t), s)
}
