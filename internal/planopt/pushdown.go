package planopt

import (
	"github.com/tuannm99/novasql/internal/planopt/expr"
	"github.com/tuannm99/novasql/internal/queryexec"
)

// Pushdown recursively rewrites plan so that Select and Project nodes sit
// as close to their relevant base relations as the attribute sets they
// reference allow, per spec.md §4.5.1. It preserves every input's result
// multiset: pushing a predicate only relocates when it is evaluated, never
// changes which tuples satisfy it.
func Pushdown(n Node) Node {
	switch t := n.(type) {
	case *SelectNode:
		return pushdownSelect(t)
	case *ProjectNode:
		return pushdownProject(t)
	case *UnionNode:
		return &UnionNode{Left: Pushdown(t.Left), Right: Pushdown(t.Right)}
	case *JoinNode:
		cp := *t
		cp.Left = Pushdown(t.Left)
		cp.Right = Pushdown(t.Right)
		return &cp
	case *GroupByNode:
		cp := *t
		cp.Child = Pushdown(t.Child)
		return &cp
	default:
		return n
	}
}

func pushdownSelect(sel *SelectNode) Node {
	switch child := sel.Child.(type) {
	case *JoinNode:
		conjuncts := expr.DecomposeCNF(sel.Pred)
		var lhsTerms, rhsTerms, keepTerms []expr.Expr
		lhsAttrs, rhsAttrs := child.Left.Attributes(), child.Right.Attributes()

		for _, c := range conjuncts {
			attrs := c.Attributes()
			switch {
			case expr.SubsetOf(attrs, lhsAttrs):
				lhsTerms = append(lhsTerms, c)
			case expr.SubsetOf(attrs, rhsAttrs):
				rhsTerms = append(rhsTerms, c)
			default:
				keepTerms = append(keepTerms, c)
			}
		}

		newLeft := Pushdown(child.Left)
		newRight := Pushdown(child.Right)
		if len(lhsTerms) > 0 {
			newLeft = &SelectNode{Child: newLeft, Pred: expr.ConjoinAll(lhsTerms)}
		}
		if len(rhsTerms) > 0 {
			newRight = &SelectNode{Child: newRight, Pred: expr.ConjoinAll(rhsTerms)}
		}
		newJoin := *child
		newJoin.Left, newJoin.Right = newLeft, newRight

		if len(keepTerms) == 0 {
			return &newJoin
		}
		return &SelectNode{Child: &newJoin, Pred: expr.ConjoinAll(keepTerms)}

	case *UnionNode:
		return &UnionNode{
			Left:  Pushdown(&SelectNode{Child: child.Left, Pred: sel.Pred}),
			Right: Pushdown(&SelectNode{Child: child.Right, Pred: sel.Pred}),
		}

	default:
		return &SelectNode{Child: Pushdown(child), Pred: sel.Pred}
	}
}

func pushdownProject(proj *ProjectNode) Node {
	switch child := proj.Child.(type) {
	case *JoinNode:
		// Project only narrows which fields survive; the join itself still
		// has to run (it filters non-matching tuples and can duplicate
		// matching ones), so it always stays in place. When every output
		// expression reads only one side's fields, a narrower ProjectNode
		// is pushed onto that side as the join's new input instead, kept
		// wide enough to still carry the join condition's own attributes.
		lhsAttrs, rhsAttrs := child.Left.Attributes(), child.Right.Attributes()
		condAttrs := conditionAttrs(child)
		projAttrs := map[string]struct{}{}
		onlyLHS, onlyRHS := true, true
		for _, e := range proj.Exprs {
			attrs := e.Expr.Attributes()
			for a := range attrs {
				projAttrs[a] = struct{}{}
			}
			if !expr.SubsetOf(attrs, lhsAttrs) {
				onlyLHS = false
			}
			if !expr.SubsetOf(attrs, rhsAttrs) {
				onlyRHS = false
			}
		}

		newJoin := *child
		switch {
		case onlyLHS:
			needed := unionAttrs(projAttrs, condAttrs)
			newJoin.Left = Pushdown(narrowInput(child.Left, lhsAttrs, needed))
			newJoin.Right = Pushdown(child.Right)
		case onlyRHS:
			needed := unionAttrs(projAttrs, condAttrs)
			newJoin.Left = Pushdown(child.Left)
			newJoin.Right = Pushdown(narrowInput(child.Right, rhsAttrs, needed))
		default:
			newJoin.Left = Pushdown(child.Left)
			newJoin.Right = Pushdown(child.Right)
		}

		cp := *proj
		cp.Child = &newJoin
		return &cp

	case *UnionNode:
		return &UnionNode{
			Left:  Pushdown(&ProjectNode{Name: proj.Name, Child: child.Left, Exprs: proj.Exprs}),
			Right: Pushdown(&ProjectNode{Name: proj.Name, Child: child.Right, Exprs: proj.Exprs}),
		}

	default:
		cp := *proj
		cp.Child = Pushdown(child)
		return &cp
	}
}

// narrowInput wraps child in a pass-through ProjectNode restricted to
// needed, when that is a proper subset of sideAttrs — the join condition's
// own attributes are always included so the join above can still evaluate,
// even though they may not appear in the outer Project's output.
func narrowInput(child Node, sideAttrs, needed map[string]struct{}) Node {
	kept := map[string]struct{}{}
	for a := range needed {
		if _, ok := sideAttrs[a]; ok {
			kept[a] = struct{}{}
		}
	}
	if len(kept) == 0 || len(kept) >= len(sideAttrs) {
		return child
	}

	schema := child.Schema()
	exprs := make([]queryexec.ProjectExpr, 0, len(kept))
	for _, f := range schema.Fields {
		if _, ok := kept[f.Name]; !ok {
			continue
		}
		exprs = append(exprs, queryexec.ProjectExpr{OutputName: f.Name, Expr: expr.Field{Name: f.Name}, Type: f.Type, Width: f.Width})
	}
	return &ProjectNode{Name: schema.Name + "_narrow", Child: child, Exprs: exprs}
}
