package novasqlwire

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt"
	"github.com/tuannm99/novasql/internal/planopt/expr"
	"github.com/tuannm99/novasql/internal/queryexec"
)

// WireExpr is a JSON-serializable mirror of expr.Expr, flattened into one
// struct so a plan can cross the wire without registering a type for every
// node kind. Only the fields relevant to Kind are populated.
type WireExpr struct {
	Kind  string      `json:"kind"` // "lit", "field", "cmp", "bool", "not"
	Value any         `json:"value,omitempty"`
	Name  string      `json:"name,omitempty"`
	Op    string      `json:"op,omitempty"`
	Left  *WireExpr   `json:"left,omitempty"`
	Right *WireExpr   `json:"right,omitempty"`
	X     *WireExpr   `json:"x,omitempty"`
	Terms []*WireExpr `json:"terms,omitempty"`
}

func (w *WireExpr) toExpr() (expr.Expr, error) {
	if w == nil {
		return nil, fmt.Errorf("novasqlwire: nil expression")
	}
	switch w.Kind {
	case "lit":
		return expr.Lit{Value: w.Value}, nil
	case "field":
		return expr.Field{Name: w.Name}, nil
	case "cmp":
		op, err := parseCmpOp(w.Op)
		if err != nil {
			return nil, err
		}
		left, err := w.Left.toExpr()
		if err != nil {
			return nil, err
		}
		right, err := w.Right.toExpr()
		if err != nil {
			return nil, err
		}
		return expr.Cmp{Op: op, Left: left, Right: right}, nil
	case "not":
		x, err := w.X.toExpr()
		if err != nil {
			return nil, err
		}
		return expr.Not{X: x}, nil
	case "bool":
		op, err := parseBoolOp(w.Op)
		if err != nil {
			return nil, err
		}
		terms := make([]expr.Expr, len(w.Terms))
		for i, t := range w.Terms {
			e, err := t.toExpr()
			if err != nil {
				return nil, err
			}
			terms[i] = e
		}
		return expr.Bool{Op: op, Terms: terms}, nil
	default:
		return nil, fmt.Errorf("novasqlwire: unknown expression kind %q", w.Kind)
	}
}

func parseCmpOp(s string) (expr.CmpOp, error) {
	switch s {
	case "=":
		return expr.Eq, nil
	case "!=":
		return expr.Ne, nil
	case "<":
		return expr.Lt, nil
	case "<=":
		return expr.Le, nil
	case ">":
		return expr.Gt, nil
	case ">=":
		return expr.Ge, nil
	default:
		return 0, fmt.Errorf("novasqlwire: unknown comparison operator %q", s)
	}
}

func parseBoolOp(s string) (expr.BoolOp, error) {
	switch s {
	case "and":
		return expr.And, nil
	case "or":
		return expr.Or, nil
	default:
		return 0, fmt.Errorf("novasqlwire: unknown boolean operator %q", s)
	}
}

// WirePlan is a JSON-serializable mirror of a planopt.Node restricted to
// the scan/select/project chain a remote caller drives the engine with —
// the join-order search and the multi-relation operators are invoked
// through novasql.Database directly, in-process, rather than over the wire.
type WirePlan struct {
	Kind   string    `json:"kind"` // "scan", "select", "project"
	Child  *WirePlan `json:"child,omitempty"`
	Pred   *WireExpr `json:"pred,omitempty"`
	Fields []string  `json:"fields,omitempty"`
}

// ToNode resolves a WirePlan into a planopt.Node, looking up the base
// relation's schema through files.
func (p *WirePlan) ToNode(files interface {
	RelationSchema(name string) (dbschema.Schema, error)
}, relation string) (planopt.Node, error) {
	if p == nil {
		return nil, fmt.Errorf("novasqlwire: nil plan")
	}
	switch p.Kind {
	case "scan":
		schema, err := files.RelationSchema(relation)
		if err != nil {
			return nil, fmt.Errorf("novasqlwire: relation schema: %w", err)
		}
		return planopt.NewScanNode(relation, schema), nil
	case "select":
		child, err := p.Child.ToNode(files, relation)
		if err != nil {
			return nil, err
		}
		pred, err := p.Pred.toExpr()
		if err != nil {
			return nil, err
		}
		return &planopt.SelectNode{Child: child, Pred: pred}, nil
	case "project":
		child, err := p.Child.ToNode(files, relation)
		if err != nil {
			return nil, err
		}
		childSchema := child.Schema()
		exprs := make([]queryexec.ProjectExpr, len(p.Fields))
		for i, name := range p.Fields {
			idx := childSchema.IndexOf(name)
			if idx < 0 {
				return nil, fmt.Errorf("novasqlwire: unknown field %q", name)
			}
			f := childSchema.Fields[idx]
			exprs[i] = queryexec.ProjectExpr{OutputName: f.Name, Expr: expr.Field{Name: f.Name}, Type: f.Type, Width: f.Width}
		}
		return &planopt.ProjectNode{Name: relation + "_proj", Child: child, Exprs: exprs}, nil
	default:
		return nil, fmt.Errorf("novasqlwire: unknown plan kind %q", p.Kind)
	}
}

// PlanRequest names the base relation a WirePlan is rooted at.
type PlanRequest struct {
	ID       string   `json:"id"`
	Relation string   `json:"relation"`
	Plan     WirePlan `json:"plan"`
}

// PlanResponse streams a batch of unpacked tuples back per frame;
// the caller keeps reading frames with the same ID until Done is true.
type PlanResponse struct {
	ID     string   `json:"id"`
	Error  string   `json:"error,omitempty"`
	Tuples [][]any  `json:"tuples,omitempty"`
	Done   bool     `json:"done"`
}
