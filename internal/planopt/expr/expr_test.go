package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmpEvalAcrossTypes(t *testing.T) {
	e := Cmp{Op: Gt, Left: Field{"age"}, Right: Lit{int64(18)}}
	ok, err := EvalBool(e, Env{"age": int64(25)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalBool(e, Env{"age": int64(10)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFieldEvalUnknownAttribute(t *testing.T) {
	_, err := Field{"missing"}.Eval(Env{})
	require.Error(t, err)
}

func TestBoolAndShortCircuits(t *testing.T) {
	e := Bool{Op: And, Terms: []Expr{
		Cmp{Op: Eq, Left: Field{"a"}, Right: Lit{int64(1)}},
		Cmp{Op: Eq, Left: Field{"b"}, Right: Lit{int64(2)}},
	}}
	ok, err := EvalBool(e, Env{"a": int64(1), "b": int64(2)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalBool(e, Env{"a": int64(0), "b": int64(2)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotNegates(t *testing.T) {
	e := Not{X: Cmp{Op: Eq, Left: Field{"a"}, Right: Lit{int64(1)}}}
	ok, err := EvalBool(e, Env{"a": int64(2)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttributesUnion(t *testing.T) {
	e := Bool{Op: Or, Terms: []Expr{
		Cmp{Op: Eq, Left: Field{"a"}, Right: Lit{int64(1)}},
		Cmp{Op: Eq, Left: Field{"b"}, Right: Field{"c"}},
	}}
	attrs := e.Attributes()
	assert.Len(t, attrs, 3)
	for _, k := range []string{"a", "b", "c"} {
		_, ok := attrs[k]
		assert.True(t, ok, k)
	}
}

func TestDecomposeCNFSplitsConjunction(t *testing.T) {
	e := Bool{Op: And, Terms: []Expr{
		Cmp{Op: Eq, Left: Field{"a"}, Right: Lit{int64(1)}},
		Bool{Op: And, Terms: []Expr{
			Cmp{Op: Eq, Left: Field{"b"}, Right: Lit{int64(2)}},
			Cmp{Op: Eq, Left: Field{"c"}, Right: Lit{int64(3)}},
		}},
	}}
	parts := DecomposeCNF(e)
	assert.Len(t, parts, 3)
}

func TestDecomposeCNFLeavesOrIntact(t *testing.T) {
	e := Bool{Op: Or, Terms: []Expr{
		Cmp{Op: Eq, Left: Field{"a"}, Right: Lit{int64(1)}},
		Cmp{Op: Eq, Left: Field{"b"}, Right: Lit{int64(2)}},
	}}
	parts := DecomposeCNF(e)
	assert.Len(t, parts, 1)
	assert.Equal(t, e, parts[0])
}

func TestSubsetOf(t *testing.T) {
	universe := map[string]struct{}{"a": {}, "b": {}}
	assert.True(t, SubsetOf(map[string]struct{}{"a": {}}, universe))
	assert.False(t, SubsetOf(map[string]struct{}{"c": {}}, universe))
}
