package queryexec

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dbschema"
)

// Union (UnionAll) requires both children to share the same fields, and
// emits every left tuple followed by every right tuple (spec.md §4.4.4).
type Union struct {
	Left, Right Operator
	schema      dbschema.Schema
}

func NewUnion(left, right Operator) (*Union, error) {
	if !left.Schema().SameFields(right.Schema()) {
		return nil, fmt.Errorf("queryexec: union children have mismatched schemas")
	}
	return &Union{Left: left, Right: right, schema: left.Schema()}, nil
}

func (u *Union) Schema() dbschema.Schema { return u.schema }

// Execute runs in the shared batch contract: fully materialize the output
// relation before returning it.
func (u *Union) Execute(ex *Executor) (Relation, error) {
	out, err := ex.CreateTemp("union", u.schema)
	if err != nil {
		return Relation{}, err
	}
	insert := func(values []any) error { return out.Insert(ex, values) }
	if err := u.Iterate(ex, insert); err != nil {
		return Relation{}, err
	}
	return out, nil
}

// Iterate is Union's pipelined path: it pulls every left tuple, then every
// right tuple, calling fn as each is produced rather than materializing the
// whole output up front first.
func (u *Union) Iterate(ex *Executor, fn func(values []any) error) error {
	left, err := u.Left.Execute(ex)
	if err != nil {
		return err
	}
	if err := left.Scan(ex, fn); err != nil {
		return err
	}
	right, err := u.Right.Execute(ex)
	if err != nil {
		return err
	}
	return right.Scan(ex, fn)
}
