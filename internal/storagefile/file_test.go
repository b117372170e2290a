package storagefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/ids"
	"github.com/tuannm99/novasql/internal/page"
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

// fakePool is a minimal PageCache that keeps a single in-memory page view
// per pid, enough to exercise StorageFile.InsertTuple without a real
// buffer pool.
type fakePool struct {
	sf *StorageFile
}

func (fp *fakePool) GetPage(pid ids.PageId, pin bool) (*page.SlottedPage, error) {
	return fp.sf.ReadPage(pid)
}

func (fp *fakePool) WritePage(pid ids.PageId, p *page.SlottedPage) error {
	return fp.sf.WritePage(p)
}

func (fp *fakePool) UnpinPage(pid ids.PageId) error { return nil }

func TestCreateThenOpenRoundTripsHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	schema := employeeSchema(t)

	sf, err := Create(path, 1, schema, 4096)
	require.NoError(t, err)
	require.NoError(t, sf.Close())

	reopened, err := Open(path, 1)
	require.NoError(t, err)
	assert.Equal(t, schema.Name, reopened.Schema().Name)
	assert.Equal(t, schema.FieldNames(), reopened.Schema().FieldNames())
	assert.Equal(t, 0, reopened.NumPages())
}

func TestAllocatePageAppendsAndTracksFreeSpace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	sf, err := Create(path, 1, employeeSchema(t), 4096)
	require.NoError(t, err)

	pid, err := sf.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), pid.Index)
	assert.Equal(t, 1, sf.NumPages())

	p, err := sf.ReadPage(pid)
	require.NoError(t, err)
	assert.Equal(t, p.Header().FreeSpace(), sf.freeSpace[0])
}

func TestInsertTupleAllocatesOnDemandAndUpdatesFreeSpace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	schema := employeeSchema(t)
	sf, err := Create(path, 1, schema, 4096)
	require.NoError(t, err)
	pool := &fakePool{sf: sf}

	packed, err := schema.Pack([]any{int64(1), int64(30)})
	require.NoError(t, err)

	tid, err := sf.InsertTuple(pool, packed)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), tid.Page.Index)
	assert.Equal(t, 1, sf.NumPages())

	p, err := sf.ReadPage(tid.Page)
	require.NoError(t, err)
	data, err := p.GetTuple(tid)
	require.NoError(t, err)
	values, err := schema.Unpack(data)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(30)}, values)
}

func TestInsertTupleFillsFirstPageBeforeAllocatingSecond(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	schema := employeeSchema(t)
	// Small page capacity so a second page is needed quickly.
	sf, err := Create(path, 1, schema, 64)
	require.NoError(t, err)
	pool := &fakePool{sf: sf}

	packed, err := schema.Pack([]any{int64(1), int64(1)})
	require.NoError(t, err)

	p0, err := page.New(ids.PageId{File: 1, Index: 0}, 64, schema.Size())
	require.NoError(t, err)
	capacity := p0.Header().NumSlots()
	require.Greater(t, capacity, 0)

	for i := 0; i < capacity; i++ {
		_, err := sf.InsertTuple(pool, packed)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sf.NumPages())

	_, err = sf.InsertTuple(pool, packed)
	require.NoError(t, err)
	assert.Equal(t, 2, sf.NumPages())
}

func TestDirectPagesMatchesPagesThroughCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	schema := employeeSchema(t)
	sf, err := Create(path, 1, schema, 4096)
	require.NoError(t, err)
	pool := &fakePool{sf: sf}

	packed, err := schema.Pack([]any{int64(7), int64(8)})
	require.NoError(t, err)
	_, err = sf.InsertTuple(pool, packed)
	require.NoError(t, err)

	var directCount, cachedCount int
	require.NoError(t, sf.DirectPages(func(ids.PageId, *page.SlottedPage) error {
		directCount++
		return nil
	}))
	require.NoError(t, sf.Pages(pool, func(ids.PageId, *page.SlottedPage) error {
		cachedCount++
		return nil
	}))
	assert.Equal(t, directCount, cachedCount)
}

func TestReadPageRejectsOutOfRangeIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	sf, err := Create(path, 1, employeeSchema(t), 4096)
	require.NoError(t, err)

	_, err = sf.ReadPage(ids.PageId{File: 1, Index: 0})
	require.Error(t, err)
}

func TestReadPageRejectsWrongFileId(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "employee.rel")
	sf, err := Create(path, 1, employeeSchema(t), 4096)
	require.NoError(t, err)
	_, err = sf.AllocatePage()
	require.NoError(t, err)

	_, err = sf.ReadPage(ids.PageId{File: 2, Index: 0})
	require.Error(t, err)
}
