package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/ids"
)

func employeeSchema(t *testing.T) dbschema.Schema {
	t.Helper()
	s, err := dbschema.New("employee", []dbschema.Field{
		{Name: "id", Type: dbschema.FieldInt},
		{Name: "age", Type: dbschema.FieldInt},
	})
	require.NoError(t, err)
	return s
}

func TestCreateRelationThenRelationFile(t *testing.T) {
	fm, err := New(t.TempDir(), 4096)
	require.NoError(t, err)

	fid, err := fm.CreateRelation("employee", employeeSchema(t))
	require.NoError(t, err)
	assert.Equal(t, ids.FileId(1), fid)

	gotFid, sf, err := fm.RelationFile("employee")
	require.NoError(t, err)
	assert.Equal(t, fid, gotFid)
	assert.Equal(t, "employee", sf.Schema().Name)
}

func TestCreateRelationRejectsDuplicateName(t *testing.T) {
	fm, err := New(t.TempDir(), 4096)
	require.NoError(t, err)
	_, err = fm.CreateRelation("employee", employeeSchema(t))
	require.NoError(t, err)

	_, err = fm.CreateRelation("employee", employeeSchema(t))
	require.Error(t, err)
}

func TestRemoveRelationDeletesFile(t *testing.T) {
	dir := t.TempDir()
	fm, err := New(dir, 4096)
	require.NoError(t, err)
	_, err = fm.CreateRelation("employee", employeeSchema(t))
	require.NoError(t, err)

	require.NoError(t, fm.RemoveRelation("employee"))
	_, _, err = fm.RelationFile("employee")
	require.Error(t, err)

	_, err = fm.OpenRelation("employee")
	require.Error(t, err)
}

func TestOpenRelationReloadsSchemaAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	fm1, err := New(dir, 4096)
	require.NoError(t, err)
	_, err = fm1.CreateRelation("employee", employeeSchema(t))
	require.NoError(t, err)
	require.NoError(t, fm1.Close())

	fm2, err := New(dir, 4096)
	require.NoError(t, err)
	fid, err := fm2.OpenRelation("employee")
	require.NoError(t, err)
	assert.Equal(t, ids.FileId(1), fid)

	schema, err := fm2.RelationSchema("employee")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "age"}, schema.FieldNames())
}

func TestReadWritePageRoutesThroughFileManager(t *testing.T) {
	fm, err := New(t.TempDir(), 4096)
	require.NoError(t, err)
	_, err = fm.CreateRelation("employee", employeeSchema(t))
	require.NoError(t, err)

	_, sf, err := fm.RelationFile("employee")
	require.NoError(t, err)
	pid, err := sf.AllocatePage()
	require.NoError(t, err)

	p, err := fm.ReadPage(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, p.PageID)
}

func TestRelationsListsRegisteredNames(t *testing.T) {
	fm, err := New(t.TempDir(), 4096)
	require.NoError(t, err)
	_, err = fm.CreateRelation("employee", employeeSchema(t))
	require.NoError(t, err)
	_, err = fm.CreateRelation("department", employeeSchema(t))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"employee", "department"}, fm.Relations())
}

func TestRelationPathUsesBaseDir(t *testing.T) {
	dir := t.TempDir()
	fm, err := New(dir, 4096)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "employee.rel"), fm.relationPath("employee"))
}
