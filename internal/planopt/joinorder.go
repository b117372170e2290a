package planopt

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt/expr"
	"github.com/tuannm99/novasql/internal/queryexec"
)

// PickJoinOrder finds the cheapest left-deep join order for every maximal
// run of JoinNodes in the plan, via System-R-style dynamic programming
// (spec.md §4.5.2). Non-join nodes recurse unchanged; the search only
// reorders contiguous join regions, leaving whatever sits above them (a
// Select that couldn't be pushed down, a Project, a GroupBy) in place.
func PickJoinOrder(n Node, stats Stats) (Node, error) {
	switch t := n.(type) {
	case *JoinNode:
		joins, bases := flattenJoinRegion(t)
		for i, b := range bases {
			nb, err := PickJoinOrder(b, stats)
			if err != nil {
				return nil, err
			}
			bases[i] = nb
		}
		return pickOrderDP(joins, bases, stats)
	case *SelectNode:
		child, err := PickJoinOrder(t.Child, stats)
		if err != nil {
			return nil, err
		}
		return &SelectNode{Child: child, Pred: t.Pred}, nil
	case *ProjectNode:
		child, err := PickJoinOrder(t.Child, stats)
		if err != nil {
			return nil, err
		}
		cp := *t
		cp.Child = child
		return &cp, nil
	case *UnionNode:
		left, err := PickJoinOrder(t.Left, stats)
		if err != nil {
			return nil, err
		}
		right, err := PickJoinOrder(t.Right, stats)
		if err != nil {
			return nil, err
		}
		return &UnionNode{Left: left, Right: right}, nil
	case *GroupByNode:
		child, err := PickJoinOrder(t.Child, stats)
		if err != nil {
			return nil, err
		}
		cp := *t
		cp.Child = child
		return &cp, nil
	default:
		return n, nil
	}
}

// flattenJoinRegion collects every JoinNode and every non-join "table-like"
// sub-plan (a bare TableScan, or one capped by a Select/Project directly
// above it) reachable from n without crossing a Union or GroupBy boundary.
func flattenJoinRegion(n Node) (joins []*JoinNode, bases []Node) {
	if j, ok := n.(*JoinNode); ok {
		lj, lb := flattenJoinRegion(j.Left)
		rj, rb := flattenJoinRegion(j.Right)
		joins = append(joins, j)
		joins = append(joins, lj...)
		joins = append(joins, rj...)
		bases = append(bases, lb...)
		bases = append(bases, rb...)
		return joins, bases
	}
	return nil, []Node{n}
}

// conditionAttrs returns the attribute names a join's condition actually
// references, preferring the explicit join predicate and falling back to
// the configured hash key fields.
func conditionAttrs(j *JoinNode) map[string]struct{} {
	if j.JoinExpr != nil {
		return j.JoinExpr.Attributes()
	}
	out := map[string]struct{}{}
	if j.LHSKeyField != "" {
		out[j.LHSKeyField] = struct{}{}
	}
	if j.RHSKeyField != "" {
		out[j.RHSKeyField] = struct{}{}
	}
	return out
}

func referencesAny(attrs, side map[string]struct{}) bool {
	for a := range attrs {
		if _, ok := side[a]; ok {
			return true
		}
	}
	return false
}

func unionAttrs(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// pickOrderDP runs the DP over subsets of bases, per spec.md §4.5.2.
func pickOrderDP(joins []*JoinNode, bases []Node, stats Stats) (Node, error) {
	n := len(bases)
	if n == 0 {
		return nil, fmt.Errorf("planopt: join region has no base relations")
	}
	if n == 1 {
		return bases[0], nil
	}
	if n > 20 {
		return nil, fmt.Errorf("planopt: join region too large for DP join ordering (%d relations)", n)
	}

	full := uint32(1)<<uint(n) - 1
	bestPlan := make(map[uint32]Node, 1<<uint(n))
	bestCost := make(map[uint32]float64, 1<<uint(n))

	for i, b := range bases {
		mask := uint32(1) << uint(i)
		bestPlan[mask] = b
		bestCost[mask] = b.Cost(stats).Total()
	}

	for mask := uint32(1); mask <= full; mask++ {
		if popcount32(mask) < 2 {
			continue
		}
		var chosen Node
		chosenCost := -1.0

		for r := 0; r < n; r++ {
			rBit := uint32(1) << uint(r)
			if mask&rBit == 0 {
				continue
			}
			lMask := mask &^ rBit
			if lMask == 0 {
				continue
			}
			lPlan, ok := bestPlan[lMask]
			if !ok {
				continue
			}
			rPlan := bases[r]

			lAttrs, rAttrs := lPlan.Attributes(), rPlan.Attributes()
			merged := unionAttrs(lAttrs, rAttrs)

			for _, j := range joins {
				cAttrs := conditionAttrs(j)
				if !expr.SubsetOf(cAttrs, merged) || !referencesAny(cAttrs, rAttrs) {
					continue
				}

				for _, method := range []queryexec.JoinMethod{queryexec.NestedLoops, queryexec.BlockNestedLoops, queryexec.HashJoin} {
					candidate, err := buildCandidate(j, lPlan, rPlan, method)
					if err != nil {
						continue
					}
					cost := bestCost[lMask] + candidate.Cost(stats).Total()
					if chosenCost < 0 || cost < chosenCost {
						chosenCost = cost
						chosen = candidate
					}
				}
			}
		}

		if chosen != nil {
			bestPlan[mask] = chosen
			bestCost[mask] = chosenCost
		}
	}

	plan, ok := bestPlan[full]
	if !ok {
		return nil, fmt.Errorf("planopt: no valid left-deep join order connects all %d relations", n)
	}
	return plan, nil
}

func popcount32(x uint32) int {
	n := 0
	for x != 0 {
		n += int(x & 1)
		x >>= 1
	}
	return n
}

func buildCandidate(j *JoinNode, left, right Node, method queryexec.JoinMethod) (*JoinNode, error) {
	id := fmt.Sprintf("%s_%v", j.ID, method)
	schema, err := dbschema.Concat(id, left.Schema(), right.Schema())
	if err != nil {
		return nil, err
	}
	cp := &JoinNode{ID: id, Left: left, Right: right, Method: method, JoinExpr: j.JoinExpr, schema: schema}

	if method == queryexec.HashJoin {
		lKey, rKey := j.LHSKeyField, j.RHSKeyField
		if lKey == "" || rKey == "" {
			if eqL, eqR, ok := equalityKeys(j.JoinExpr, left.Attributes(), right.Attributes()); ok {
				lKey, rKey = eqL, eqR
			} else {
				return nil, fmt.Errorf("planopt: hash join %s has no equi-join key to partition on", j.ID)
			}
		}
		cp.LHSKeyField, cp.RHSKeyField = lKey, rKey
		cp.LHSHashExpr = expr.Field{Name: lKey}
		cp.RHSHashExpr = expr.Field{Name: rKey}
		cp.NumBuckets = j.NumBuckets
		if cp.NumBuckets <= 0 {
			cp.NumBuckets = 8
		}
	}
	return cp, nil
}

// equalityKeys looks for an Eq comparison between a field on each side of
// the join, recursing through AND compounds; hash join needs exactly such a
// key to partition on.
func equalityKeys(e expr.Expr, lhsAttrs, rhsAttrs map[string]struct{}) (lKey, rKey string, ok bool) {
	switch t := e.(type) {
	case expr.Cmp:
		if t.Op != expr.Eq {
			return "", "", false
		}
		lf, lok := t.Left.(expr.Field)
		rf, rok := t.Right.(expr.Field)
		if !lok || !rok {
			return "", "", false
		}
		if _, inL := lhsAttrs[lf.Name]; inL {
			if _, inR := rhsAttrs[rf.Name]; inR {
				return lf.Name, rf.Name, true
			}
		}
		if _, inL := lhsAttrs[rf.Name]; inL {
			if _, inR := rhsAttrs[lf.Name]; inR {
				return rf.Name, lf.Name, true
			}
		}
		return "", "", false
	case expr.Bool:
		if t.Op != expr.And {
			return "", "", false
		}
		for _, term := range t.Terms {
			if lKey, rKey, ok = equalityKeys(term, lhsAttrs, rhsAttrs); ok {
				return lKey, rKey, true
			}
		}
		return "", "", false
	default:
		return "", "", false
	}
}

