package queryexec

import (
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt/expr"
)

// Select emits every input tuple for which selectExpr evaluates true
// (spec.md §4.4.2). Output schema equals the child's schema.
type Select struct {
	Child      Operator
	SelectExpr expr.Expr
}

func NewSelect(child Operator, selectExpr expr.Expr) *Select {
	return &Select{Child: child, SelectExpr: selectExpr}
}

func (s *Select) Schema() dbschema.Schema { return s.Child.Schema() }

func (s *Select) Execute(ex *Executor) (Relation, error) {
	in, err := s.Child.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	out, err := ex.CreateTemp("select", s.Schema())
	if err != nil {
		return Relation{}, err
	}

	err = in.Scan(ex, func(values []any) error {
		ok, err := expr.EvalBool(s.SelectExpr, Env(s.Schema(), values))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return out.Insert(ex, values)
	})
	if err != nil {
		return Relation{}, err
	}
	return out, nil
}
