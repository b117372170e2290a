// Package expr implements the predicate/projection expression IR that
// replaces "expressions as strings evaluated at runtime": atoms are
// comparisons between a field reference and either a literal or another
// field reference, compounds are AND/OR/NOT over sub-expressions, parsed
// once at plan-build time instead of re-evaluated as source text per tuple.
//
// Grounded on _examples/original_source/dbsys-hw2/Query/Operators/Select.py
// and Join.py (selectExpr/joinExpr are evaluated once per tuple against an
// environment binding field name -> value) and on this module's
// internal/sql/parser AST node style (typed node structs implementing one
// shared interface) for how to shape a small expression tree in Go.
package expr

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dberrors"
)

// Env binds field names to runtime values for one (possibly concatenated)
// tuple during evaluation.
type Env map[string]any

// CmpOp is a comparison operator between two operands.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (op CmpOp) String() string {
	switch op {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "?"
	}
}

// BoolOp is a logical connective over sub-expressions.
type BoolOp int

const (
	And BoolOp = iota
	Or
)

// Expr is any node of the expression IR: literals, field references,
// comparisons, and boolean compounds all implement it.
type Expr interface {
	// Eval evaluates the expression against env.
	Eval(env Env) (any, error)
	// Attributes returns the set of field names this expression reads.
	Attributes() map[string]struct{}
	fmt.Stringer
}

// Lit is a constant value.
type Lit struct{ Value any }

func (l Lit) Eval(Env) (any, error)            { return l.Value, nil }
func (l Lit) Attributes() map[string]struct{}  { return map[string]struct{}{} }
func (l Lit) String() string                   { return fmt.Sprintf("%v", l.Value) }

// Field is a reference to a bound field name in the evaluation Env.
type Field struct{ Name string }

func (f Field) Eval(env Env) (any, error) {
	v, ok := env[f.Name]
	if !ok {
		return nil, fmt.Errorf("expr: %w: %q", dberrors.ErrEvalError, f.Name)
	}
	return v, nil
}

func (f Field) Attributes() map[string]struct{} { return map[string]struct{}{f.Name: {}} }
func (f Field) String() string                  { return f.Name }

// Cmp is an atomic predicate comparing two operands.
type Cmp struct {
	Op          CmpOp
	Left, Right Expr
}

func (c Cmp) Eval(env Env) (any, error) {
	l, err := c.Left.Eval(env)
	if err != nil {
		return nil, err
	}
	r, err := c.Right.Eval(env)
	if err != nil {
		return nil, err
	}
	return compare(c.Op, l, r)
}

func (c Cmp) Attributes() map[string]struct{} {
	return union(c.Left.Attributes(), c.Right.Attributes())
}

func (c Cmp) String() string { return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right) }

// Not negates a boolean sub-expression.
type Not struct{ X Expr }

func (n Not) Eval(env Env) (any, error) {
	v, err := n.X.Eval(env)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expr: %w: NOT of non-boolean", dberrors.ErrEvalError)
	}
	return !b, nil
}

func (n Not) Attributes() map[string]struct{} { return n.X.Attributes() }
func (n Not) String() string                  { return fmt.Sprintf("NOT %s", n.X) }

// Bool is an AND/OR compound over two or more sub-expressions.
type Bool struct {
	Op    BoolOp
	Terms []Expr
}

func (b Bool) Eval(env Env) (any, error) {
	if len(b.Terms) == 0 {
		return b.Op == And, nil
	}
	for _, t := range b.Terms {
		v, err := t.Eval(env)
		if err != nil {
			return nil, err
		}
		bv, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expr: %w: boolean compound over non-boolean term", dberrors.ErrEvalError)
		}
		if b.Op == And && !bv {
			return false, nil
		}
		if b.Op == Or && bv {
			return true, nil
		}
	}
	return b.Op == And, nil
}

func (b Bool) Attributes() map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range b.Terms {
		out = union(out, t.Attributes())
	}
	return out
}

func (b Bool) String() string {
	op := " AND "
	if b.Op == Or {
		op = " OR "
	}
	s := ""
	for i, t := range b.Terms {
		if i > 0 {
			s += op
		}
		s += t.String()
	}
	return "(" + s + ")"
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func compare(op CmpOp, l, r any) (bool, error) {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		switch op {
		case Eq:
			return lf == rf, nil
		case Ne:
			return lf != rf, nil
		case Lt:
			return lf < rf, nil
		case Le:
			return lf <= rf, nil
		case Gt:
			return lf > rf, nil
		case Ge:
			return lf >= rf, nil
		}
	}
	ls, lsok := l.(string)
	rs, rsok := r.(string)
	if lsok && rsok {
		switch op {
		case Eq:
			return ls == rs, nil
		case Ne:
			return ls != rs, nil
		case Lt:
			return ls < rs, nil
		case Le:
			return ls <= rs, nil
		case Gt:
			return ls > rs, nil
		case Ge:
			return ls >= rs, nil
		}
	}
	return false, fmt.Errorf("expr: %w: cannot compare %T with %T", dberrors.ErrEvalError, l, r)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// EvalBool evaluates e and requires the result to be a bool.
func EvalBool(e Expr, env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expr: %w: expected boolean result, got %T", dberrors.ErrEvalError, v)
	}
	return b, nil
}
