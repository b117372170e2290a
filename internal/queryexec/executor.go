// Package queryexec implements the relational operator pipeline: each
// operator is configured once (constructor validates schemas/parameters)
// and later Executed against a shared Executor, producing a materialized
// Relation. Batch mode is the default for every operator; Union additionally
// supports a pipelined tuple-at-a-time path (Union.Iterate).
//
// Grounded on this module's internal/sql/executor package for the general
// "plan node executes against shared database state" shape, and on
// _examples/original_source/dbsys-hw2/Query/Operators/*.py for the exact
// per-operator algorithms (partitioning, block-nested-loops pinning,
// group-by accumulator bookkeeping).
package queryexec

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/catalog"
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/ids"
	"github.com/tuannm99/novasql/internal/planopt/expr"
)

// Executor bundles the catalog and buffer pool every operator needs to read
// its inputs and materialize its output.
type Executor struct {
	Files *catalog.FileManager
	Pool  *bufferpool.Pool
}

// Operator is any node of the relational operator pipeline.
type Operator interface {
	Schema() dbschema.Schema
	Execute(ex *Executor) (Relation, error)
}

// Relation is a materialized (or pre-existing, for TableScan) named
// relation with a known schema, scanned through the shared buffer pool.
type Relation struct {
	Name   string
	Schema dbschema.Schema
}

// CreateTemp allocates a uniquely-named relation to hold one operator's
// output, per spec.md §4.4's "temporary output relation owned by the
// operator" contract.
func (ex *Executor) CreateTemp(prefix string, schema dbschema.Schema) (Relation, error) {
	name := fmt.Sprintf("__tmp_%s_%s", prefix, uuid.NewString())
	if _, err := ex.Files.CreateRelation(name, schema); err != nil {
		return Relation{}, err
	}
	return Relation{Name: name, Schema: schema}, nil
}

// Drop removes a temporary relation. Names from CreateTemp carry a fresh
// uuid, so a new partition never collides with a relation that still exists.
func (ex *Executor) Drop(name string) error { return ex.Files.RemoveRelation(name) }

// Insert packs values per r.Schema and appends them as a new tuple.
func (r Relation) Insert(ex *Executor, values []any) error {
	_, sf, err := ex.Files.RelationFile(r.Name)
	if err != nil {
		return err
	}
	packed, err := r.Schema.Pack(values)
	if err != nil {
		return err
	}
	_, err = sf.InsertTuple(ex.Pool, packed)
	return err
}

// Scan visits every live tuple of r, unpacked into values per r.Schema.
func (r Relation) Scan(ex *Executor, fn func(values []any) error) error {
	_, sf, err := ex.Files.RelationFile(r.Name)
	if err != nil {
		return err
	}
	return sf.Tuples(ex.Pool, func(_ ids.TupleId, data []byte) error {
		values, err := r.Schema.Unpack(data)
		if err != nil {
			return err
		}
		return fn(values)
	})
}

// Env builds an evaluation environment binding r.Schema's field names to
// the given unpacked values, for expr.Expr evaluation.
func Env(schema dbschema.Schema, values []any) expr.Env {
	env := make(expr.Env, len(values))
	for i, f := range schema.Fields {
		env[f.Name] = values[i]
	}
	return env
}
