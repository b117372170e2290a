// Package planopt implements the query plan tree and the two-pass
// optimizer of spec.md §4.5: predicate/projection pushdown followed by a
// System-R-style dynamic-programming left-deep join-order search.
//
// Grounded on _examples/original_source/dbsys-hw3/Query/Optimizer.py for
// the pushdown traversal and DP join-ordering shape, and on this module's
// internal/sql/planner package for the Go idiom of a small typed plan-node
// tree with a "compile to executable operator" step.
package planopt

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt/agg"
	"github.com/tuannm99/novasql/internal/planopt/expr"
	"github.com/tuannm99/novasql/internal/queryexec"
)

// Node is one node of the logical plan tree: it knows its own output
// schema and attribute set, its children, an estimated cost/cardinality,
// and how to compile itself into an executable queryexec.Operator.
type Node interface {
	Schema() dbschema.Schema
	Children() []Node
	Attributes() map[string]struct{}
	Cost(stats Stats) Cost
	Compile(ex *queryexec.Executor) (queryexec.Operator, error)
	fmt.Stringer
}

// Cost is a pair of monotone cost components: estimated pages touched and
// estimated output cardinality (rows). Total() combines them into the
// single scalar the optimizer minimizes.
type Cost struct {
	Pages       float64
	Cardinality float64
}

// Total is I/O-weighted: page touches dominate, cardinality is a tie-break.
// Any monotone combination satisfies spec.md §4.5.2's "cost model:
// implementation-defined but must be monotone".
func (c Cost) Total() float64 { return c.Pages*1000 + c.Cardinality }

func attrsOf(schema dbschema.Schema) map[string]struct{} {
	out := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		out[f.Name] = struct{}{}
	}
	return out
}

// ScanNode is a base TableScan over a catalog relation.
type ScanNode struct {
	Relation string
	schema   dbschema.Schema
}

func NewScanNode(relation string, schema dbschema.Schema) *ScanNode {
	return &ScanNode{Relation: relation, schema: schema}
}

func (n *ScanNode) Schema() dbschema.Schema          { return n.schema }
func (n *ScanNode) Children() []Node                 { return nil }
func (n *ScanNode) Attributes() map[string]struct{}  { return attrsOf(n.schema) }
func (n *ScanNode) String() string                   { return fmt.Sprintf("Scan(%s)", n.Relation) }

func (n *ScanNode) Cost(stats Stats) Cost {
	pages := stats.Pages(n.Relation)
	return Cost{Pages: float64(pages), Cardinality: float64(stats.Tuples(n.Relation))}
}

func (n *ScanNode) Compile(ex *queryexec.Executor) (queryexec.Operator, error) {
	return queryexec.NewTableScan(ex, n.Relation)
}

// SelectNode filters its child by Pred.
type SelectNode struct {
	Child Node
	Pred  expr.Expr
}

func (n *SelectNode) Schema() dbschema.Schema         { return n.Child.Schema() }
func (n *SelectNode) Children() []Node                { return []Node{n.Child} }
func (n *SelectNode) Attributes() map[string]struct{} { return n.Child.Attributes() }
func (n *SelectNode) String() string                  { return fmt.Sprintf("Select(%s, %s)", n.Pred, n.Child) }

// selectivity is a fixed heuristic selectivity factor for any atomic
// predicate, in lieu of column statistics/histograms.
const selectivity = 0.3

func (n *SelectNode) Cost(stats Stats) Cost {
	in := n.Child.Cost(stats)
	return Cost{Pages: in.Pages, Cardinality: in.Cardinality * selectivity}
}

func (n *SelectNode) Compile(ex *queryexec.Executor) (queryexec.Operator, error) {
	child, err := n.Child.Compile(ex)
	if err != nil {
		return nil, err
	}
	return queryexec.NewSelect(child, n.Pred), nil
}

// ProjectNode computes a new schema from an ordered list of output
// expressions over its child.
type ProjectNode struct {
	Name  string
	Child Node
	Exprs []queryexec.ProjectExpr
}

func (n *ProjectNode) Schema() dbschema.Schema {
	fields := make([]dbschema.Field, len(n.Exprs))
	for i, e := range n.Exprs {
		fields[i] = dbschema.Field{Name: e.OutputName, Type: e.Type, Width: e.Width}
	}
	s, _ := dbschema.New(n.Name, fields)
	return s
}

func (n *ProjectNode) Children() []Node { return []Node{n.Child} }

func (n *ProjectNode) Attributes() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range n.Exprs {
		for a := range e.Expr.Attributes() {
			out[a] = struct{}{}
		}
	}
	return out
}

func (n *ProjectNode) String() string { return fmt.Sprintf("Project(%s)", n.Child) }

func (n *ProjectNode) Cost(stats Stats) Cost {
	in := n.Child.Cost(stats)
	return Cost{Pages: in.Pages, Cardinality: in.Cardinality}
}

func (n *ProjectNode) Compile(ex *queryexec.Executor) (queryexec.Operator, error) {
	child, err := n.Child.Compile(ex)
	if err != nil {
		return nil, err
	}
	return queryexec.NewProject(n.Name, child, n.Exprs)
}

// UnionNode is UnionAll over two same-schema children.
type UnionNode struct {
	Left, Right Node
}

func (n *UnionNode) Schema() dbschema.Schema         { return n.Left.Schema() }
func (n *UnionNode) Children() []Node                { return []Node{n.Left, n.Right} }
func (n *UnionNode) Attributes() map[string]struct{} { return n.Left.Attributes() }
func (n *UnionNode) String() string                  { return fmt.Sprintf("Union(%s, %s)", n.Left, n.Right) }

func (n *UnionNode) Cost(stats Stats) Cost {
	l, r := n.Left.Cost(stats), n.Right.Cost(stats)
	return Cost{Pages: l.Pages + r.Pages, Cardinality: l.Cardinality + r.Cardinality}
}

func (n *UnionNode) Compile(ex *queryexec.Executor) (queryexec.Operator, error) {
	left, err := n.Left.Compile(ex)
	if err != nil {
		return nil, err
	}
	right, err := n.Right.Compile(ex)
	if err != nil {
		return nil, err
	}
	return queryexec.NewUnion(left, right)
}

// JoinNode is one join of the plan tree; JoinExpr, hash fields/buckets are
// carried so the DP search can try all non-indexed methods against the
// same logical condition.
type JoinNode struct {
	ID                       string
	Left, Right              Node
	Method                   queryexec.JoinMethod
	JoinExpr                 expr.Expr
	LHSHashExpr, RHSHashExpr expr.Expr
	LHSKeyField, RHSKeyField string
	NumBuckets               int
	schema                   dbschema.Schema
}

func NewJoinNode(id string, left, right Node, joinExpr expr.Expr) (*JoinNode, error) {
	schema, err := dbschema.Concat(id, left.Schema(), right.Schema())
	if err != nil {
		return nil, err
	}
	return &JoinNode{ID: id, Left: left, Right: right, JoinExpr: joinExpr, schema: schema, Method: queryexec.NestedLoops}, nil
}

func (n *JoinNode) Schema() dbschema.Schema { return n.schema }
func (n *JoinNode) Children() []Node        { return []Node{n.Left, n.Right} }

func (n *JoinNode) Attributes() map[string]struct{} {
	out := map[string]struct{}{}
	for a := range n.Left.Attributes() {
		out[a] = struct{}{}
	}
	for a := range n.Right.Attributes() {
		out[a] = struct{}{}
	}
	return out
}

func (n *JoinNode) String() string {
	return fmt.Sprintf("Join[%v](%s, %s)", n.Method, n.Left, n.Right)
}

// joinSelectivity approximates a join's output cardinality as the product
// of its inputs scaled down, in lieu of key-distribution statistics.
const joinSelectivity = 0.1

func (n *JoinNode) Cost(stats Stats) Cost {
	l, r := n.Left.Cost(stats), n.Right.Cost(stats)
	card := l.Cardinality * r.Cardinality * joinSelectivity
	var pages float64
	switch n.Method {
	case queryexec.NestedLoops:
		pages = l.Pages + l.Cardinality*r.Pages
	case queryexec.BlockNestedLoops:
		pages = l.Pages + r.Pages*(l.Pages+1)
	case queryexec.HashJoin:
		pages = 3 * (l.Pages + r.Pages)
	default:
		pages = l.Pages + r.Pages
	}
	return Cost{Pages: pages, Cardinality: card}
}

func (n *JoinNode) Compile(ex *queryexec.Executor) (queryexec.Operator, error) {
	left, err := n.Left.Compile(ex)
	if err != nil {
		return nil, err
	}
	right, err := n.Right.Compile(ex)
	if err != nil {
		return nil, err
	}
	j, err := queryexec.NewJoin(n.ID, left, right, n.Method)
	if err != nil {
		return nil, err
	}
	j.JoinExpr = n.JoinExpr
	j.LHSHashExpr, j.RHSHashExpr = n.LHSHashExpr, n.RHSHashExpr
	j.LHSKeyField, j.RHSKeyField = n.LHSKeyField, n.RHSKeyField
	j.NumBuckets = n.NumBuckets
	return j, nil
}

// GroupByNode partitions+aggregates its child.
type GroupByNode struct {
	ID          string
	Child       Node
	GroupFields []string
	Aggregates  []agg.Descriptor
	GroupExpr   queryexec.GroupByExpr
	NumBuckets  int
}

func (n *GroupByNode) Schema() dbschema.Schema {
	fields := make([]dbschema.Field, 0, len(n.GroupFields)+len(n.Aggregates))
	childSchema := n.Child.Schema()
	for _, f := range n.GroupFields {
		idx := childSchema.IndexOf(f)
		if idx >= 0 {
			fields = append(fields, childSchema.Fields[idx])
		}
	}
	for _, a := range n.Aggregates {
		fields = append(fields, dbschema.Field{Name: a.OutputName, Type: dbschema.FieldInt})
	}
	s, _ := dbschema.New(n.ID, fields)
	return s
}

func (n *GroupByNode) Children() []Node               { return []Node{n.Child} }
func (n *GroupByNode) Attributes() map[string]struct{} { return n.Child.Attributes() }
func (n *GroupByNode) String() string                  { return fmt.Sprintf("GroupBy(%s)", n.Child) }

func (n *GroupByNode) Cost(stats Stats) Cost {
	in := n.Child.Cost(stats)
	return Cost{Pages: in.Pages * 3, Cardinality: in.Cardinality * 0.1}
}

func (n *GroupByNode) Compile(ex *queryexec.Executor) (queryexec.Operator, error) {
	child, err := n.Child.Compile(ex)
	if err != nil {
		return nil, err
	}
	return queryexec.NewGroupBy(n.ID, child, n.GroupFields, n.Aggregates, n.GroupExpr, n.NumBuckets)
}
