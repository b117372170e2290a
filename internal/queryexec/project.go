package queryexec

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt/expr"
)

// ProjectExpr is one output column: its name, the expression computing it
// from the input environment, and its output type.
type ProjectExpr struct {
	OutputName string
	Expr       expr.Expr
	Type       dbschema.FieldType
	Width      int // only meaningful for dbschema.FieldChar
}

// Project evaluates an ordered set of output-field expressions against each
// input tuple's environment (spec.md §4.4.3).
type Project struct {
	Child   Operator
	Exprs   []ProjectExpr
	outType dbschema.Schema
}

func NewProject(name string, child Operator, exprs []ProjectExpr) (*Project, error) {
	fields := make([]dbschema.Field, len(exprs))
	for i, e := range exprs {
		fields[i] = dbschema.Field{Name: e.OutputName, Type: e.Type, Width: e.Width}
	}
	schema, err := dbschema.New(name, fields)
	if err != nil {
		return nil, fmt.Errorf("queryexec: project schema: %w", err)
	}
	return &Project{Child: child, Exprs: exprs, outType: schema}, nil
}

func (p *Project) Schema() dbschema.Schema { return p.outType }

func (p *Project) Execute(ex *Executor) (Relation, error) {
	in, err := p.Child.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	out, err := ex.CreateTemp("project", p.outType)
	if err != nil {
		return Relation{}, err
	}

	err = in.Scan(ex, func(values []any) error {
		env := Env(p.Child.Schema(), values)
		outValues := make([]any, len(p.Exprs))
		for i, e := range p.Exprs {
			v, err := e.Expr.Eval(env)
			if err != nil {
				return err
			}
			outValues[i] = v
		}
		return out.Insert(ex, outValues)
	})
	if err != nil {
		return Relation{}, err
	}
	return out, nil
}
