package queryexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/catalog"
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt/agg"
	"github.com/tuannm99/novasql/internal/planopt/expr"
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

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	fm, err := catalog.New(t.TempDir(), 4096)
	require.NoError(t, err)
	pool := bufferpool.NewPool(64)
	pool.SetReader(fm)
	return &Executor{Files: fm, Pool: pool}
}

func seedEmployees(t *testing.T, ex *Executor, name string, n int) {
	t.Helper()
	_, err := ex.Files.CreateRelation(name, employeeSchema(t))
	require.NoError(t, err)
	rel := Relation{Name: name, Schema: employeeSchema(t)}
	for i := 0; i < n; i++ {
		require.NoError(t, rel.Insert(ex, []any{int64(i), int64(2*i + 20)}))
	}
}

func collect(t *testing.T, ex *Executor, rel Relation) [][]any {
	t.Helper()
	var out [][]any
	require.NoError(t, rel.Scan(ex, func(values []any) error {
		out = append(out, append([]any(nil), values...))
		return nil
	}))
	return out
}

func TestTableScanReturnsRelation(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "employee", 5)

	scan, err := NewTableScan(ex, "employee")
	require.NoError(t, err)
	rel, err := scan.Execute(ex)
	require.NoError(t, err)
	assert.Len(t, collect(t, ex, rel), 5)
}

func TestSelectFiltersTuples(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "employee", 10)

	scan, err := NewTableScan(ex, "employee")
	require.NoError(t, err)
	sel := NewSelect(scan, expr.Cmp{Op: expr.Gt, Left: expr.Field{Name: "age"}, Right: expr.Lit{Value: int64(30)}})

	rel, err := sel.Execute(ex)
	require.NoError(t, err)
	rows := collect(t, ex, rel)
	for _, r := range rows {
		assert.Greater(t, r[1].(int64), int64(30))
	}
	assert.NotEmpty(t, rows)
}

func TestProjectComputesOutputFields(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "employee", 3)

	scan, err := NewTableScan(ex, "employee")
	require.NoError(t, err)
	proj, err := NewProject("ages_only", scan, []ProjectExpr{
		{OutputName: "age", Expr: expr.Field{Name: "age"}, Type: dbschema.FieldInt},
	})
	require.NoError(t, err)

	rel, err := proj.Execute(ex)
	require.NoError(t, err)
	rows := collect(t, ex, rel)
	assert.Len(t, rows, 3)
	assert.Len(t, rows[0], 1)
}

func TestUnionConcatenatesBothSides(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "a", 3)
	seedEmployees(t, ex, "b", 2)

	left, err := NewTableScan(ex, "a")
	require.NoError(t, err)
	right, err := NewTableScan(ex, "b")
	require.NoError(t, err)
	u, err := NewUnion(left, right)
	require.NoError(t, err)

	rel, err := u.Execute(ex)
	require.NoError(t, err)
	assert.Len(t, collect(t, ex, rel), 5)
}

func TestUnionRejectsMismatchedSchemas(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "a", 1)

	other, err := dbschema.New("other", []dbschema.Field{{Name: "x", Type: dbschema.FieldInt}})
	require.NoError(t, err)
	_, err = ex.Files.CreateRelation("b", other)
	require.NoError(t, err)

	left, err := NewTableScan(ex, "a")
	require.NoError(t, err)
	right, err := NewTableScan(ex, "b")
	require.NoError(t, err)

	_, err = NewUnion(left, right)
	require.Error(t, err)
}

func TestJoinNestedLoopsMatchesOnEquality(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "a", 3)
	seedEmployees(t, ex, "b", 3)

	left, err := NewTableScan(ex, "a")
	require.NoError(t, err)
	right, err := NewTableScan(ex, "b")
	require.NoError(t, err)

	// b's schema also has a field "id"; disambiguate by building RHS under
	// a projection that renames it, since Join requires disjoint names.
	renamed, err := NewProject("b_renamed", right, []ProjectExpr{
		{OutputName: "b_id", Expr: expr.Field{Name: "id"}, Type: dbschema.FieldInt},
		{OutputName: "b_age", Expr: expr.Field{Name: "age"}, Type: dbschema.FieldInt},
	})
	require.NoError(t, err)
	joinExpr := expr.Cmp{Op: expr.Eq, Left: expr.Field{Name: "id"}, Right: expr.Field{Name: "b_id"}}

	join, err := NewJoin("j1", left, renamed, NestedLoops)
	require.NoError(t, err)
	join.JoinExpr = joinExpr

	rel, err := join.Execute(ex)
	require.NoError(t, err)
	rows := collect(t, ex, rel)
	assert.Len(t, rows, 3)
}

func TestJoinHashPartitionsAndMatches(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "a", 6)
	seedEmployees(t, ex, "b", 6)

	left, err := NewTableScan(ex, "a")
	require.NoError(t, err)
	right, err := NewTableScan(ex, "b")
	require.NoError(t, err)
	renamed, err := NewProject("b_renamed", right, []ProjectExpr{
		{OutputName: "b_id", Expr: expr.Field{Name: "id"}, Type: dbschema.FieldInt},
		{OutputName: "b_age", Expr: expr.Field{Name: "age"}, Type: dbschema.FieldInt},
	})
	require.NoError(t, err)

	join, err := NewJoin("j2", left, renamed, HashJoin)
	require.NoError(t, err)
	join.LHSHashExpr = expr.Field{Name: "id"}
	join.RHSHashExpr = expr.Field{Name: "b_id"}
	join.LHSKeyField = "id"
	join.RHSKeyField = "b_id"
	join.NumBuckets = 4

	rel, err := join.Execute(ex)
	require.NoError(t, err)
	rows := collect(t, ex, rel)
	assert.Len(t, rows, 6)
}

// TestJoinBlockNestedLoopsPinsPagesWithinPoolCapacity runs a 300x300
// block-nested-loops join against a pool with only 10 frames. If the join
// ever pinned more pages at once than the pool can hold, GetPage would fail
// with dberrors.ErrPoolExhausted (every frame pinned, nothing left to evict)
// long before the join finished; completing cleanly is itself evidence the
// pin footprint stayed within capacity. Both relations' ids line up 1:1, so
// the expected result count (300) also guards against a block boundary
// silently dropping or duplicating matches.
func TestJoinBlockNestedLoopsPinsPagesWithinPoolCapacity(t *testing.T) {
	fm, err := catalog.New(t.TempDir(), 4096)
	require.NoError(t, err)
	pool := bufferpool.NewPool(10)
	pool.SetReader(fm)
	ex := &Executor{Files: fm, Pool: pool}

	seedEmployees(t, ex, "a", 300)
	seedEmployees(t, ex, "b", 300)

	left, err := NewTableScan(ex, "a")
	require.NoError(t, err)
	right, err := NewTableScan(ex, "b")
	require.NoError(t, err)
	renamed, err := NewProject("b_renamed", right, []ProjectExpr{
		{OutputName: "b_id", Expr: expr.Field{Name: "id"}, Type: dbschema.FieldInt},
		{OutputName: "b_age", Expr: expr.Field{Name: "age"}, Type: dbschema.FieldInt},
	})
	require.NoError(t, err)

	join, err := NewJoin("j3", left, renamed, BlockNestedLoops)
	require.NoError(t, err)
	join.JoinExpr = expr.Cmp{Op: expr.Eq, Left: expr.Field{Name: "id"}, Right: expr.Field{Name: "b_id"}}

	rel, err := join.Execute(ex)
	require.NoError(t, err)
	assert.Len(t, collect(t, ex, rel), 300)
	assert.Equal(t, 0, pool.PinnedFrames(), "every page the join pinned must be unpinned again once it's done with it")
}

func TestGroupByAggregatesMinMaxByParity(t *testing.T) {
	ex := newExecutor(t)
	seedEmployees(t, ex, "employee", 10)

	scan, err := NewTableScan(ex, "employee")
	require.NoError(t, err)

	gb, err := NewGroupBy("g1", scan, []string{"id"},
		[]agg.Descriptor{
			{Kind: agg.Min, InputField: "age", OutputName: "minAge"},
			{Kind: agg.Max, InputField: "age", OutputName: "maxAge"},
		},
		func(env map[string]any) []any {
			id := env["id"].(int64)
			return []any{id % 2}
		},
		4,
	)
	require.NoError(t, err)

	rel, err := gb.Execute(ex)
	require.NoError(t, err)
	rows := collect(t, ex, rel)
	require.Len(t, rows, 2)
	byGroup := map[int64][]any{}
	for _, r := range rows {
		byGroup[r[0].(int64)] = r
	}
	// even ids (0,2,4,6,8) -> ages 20,24,28,32,36; odd ids -> 22,26,30,34,38.
	assert.Equal(t, int64(20), byGroup[0][1])
	assert.Equal(t, int64(36), byGroup[0][2])
	assert.Equal(t, int64(22), byGroup[1][1])
	assert.Equal(t, int64(38), byGroup[1][2])
}
