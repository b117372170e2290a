package queryexec

import "github.com/tuannm99/novasql/internal/dbschema"

// TableScan yields all pages of a named relation, through the buffer pool,
// in ascending page-index order (spec.md §4.4.1).
type TableScan struct {
	relationName string
	schema       dbschema.Schema
}

// NewTableScan looks up relationName's schema so the scan's output schema
// is known before Execute runs.
func NewTableScan(ex *Executor, relationName string) (*TableScan, error) {
	schema, err := ex.Files.RelationSchema(relationName)
	if err != nil {
		return nil, err
	}
	return &TableScan{relationName: relationName, schema: schema}, nil
}

func (t *TableScan) Schema() dbschema.Schema { return t.schema }

// Execute is a no-op: a table scan's "output" is the relation itself.
func (t *TableScan) Execute(ex *Executor) (Relation, error) {
	return Relation{Name: t.relationName, Schema: t.schema}, nil
}
