package queryexec

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/ids"
	"github.com/tuannm99/novasql/internal/planopt/expr"
	"github.com/tuannm99/novasql/internal/storagefile"
)

// JoinMethod selects one of the four algorithms spec.md §4.4.5 describes.
type JoinMethod int

const (
	NestedLoops JoinMethod = iota
	BlockNestedLoops
	HashJoin
	IndexedNestedLoops // interface only; Execute returns an error if selected.
)

// Join concatenates LHS and RHS schemas (which must be disjoint) and emits
// every pair of tuples for which JoinExpr holds.
type Join struct {
	Left, Right Operator
	Method      JoinMethod
	JoinExpr    expr.Expr // required for NestedLoops/BlockNestedLoops; optional extra filter for HashJoin

	// LHSHashExpr/RHSHashExpr/LHSKeyField/RHSKeyField configure HashJoin:
	// each side's hash expression picks a partition bucket, and the key
	// fields are compared for equality once both sides' buckets are loaded.
	LHSHashExpr, RHSHashExpr expr.Expr
	LHSKeyField, RHSKeyField string
	NumBuckets               int

	id     string
	schema dbschema.Schema
}

// NewJoin validates that the two input schemas are disjoint and builds the
// concatenated output schema.
func NewJoin(id string, left, right Operator, method JoinMethod) (*Join, error) {
	schema, err := dbschema.Concat(id, left.Schema(), right.Schema())
	if err != nil {
		return nil, fmt.Errorf("queryexec: join schemas must be disjoint: %w", err)
	}
	return &Join{Left: left, Right: right, Method: method, id: id, schema: schema}, nil
}

func (j *Join) Schema() dbschema.Schema { return j.schema }

func (j *Join) Execute(ex *Executor) (Relation, error) {
	switch j.Method {
	case NestedLoops:
		return j.executeNestedLoops(ex)
	case BlockNestedLoops:
		return j.executeBlockNestedLoops(ex)
	case HashJoin:
		return j.executeHashJoin(ex)
	default:
		return Relation{}, fmt.Errorf("queryexec: join method %v not implemented (indexed join is interface-only)", j.Method)
	}
}

func concatValues(l, r []any) []any {
	out := make([]any, 0, len(l)+len(r))
	out = append(out, l...)
	out = append(out, r...)
	return out
}

func (j *Join) mergedEnv(lSchema, rSchema dbschema.Schema, lVals, rVals []any) expr.Env {
	env := Env(lSchema, lVals)
	for k, v := range Env(rSchema, rVals) {
		env[k] = v
	}
	return env
}

// executeNestedLoops is the textbook double loop: for every LHS tuple, scan
// all of RHS and test JoinExpr (spec.md §4.4.5, method "nested-loops").
func (j *Join) executeNestedLoops(ex *Executor) (Relation, error) {
	left, err := j.Left.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	right, err := j.Right.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	out, err := ex.CreateTemp("join", j.schema)
	if err != nil {
		return Relation{}, err
	}

	err = left.Scan(ex, func(lVals []any) error {
		return right.Scan(ex, func(rVals []any) error {
			ok, err := expr.EvalBool(j.JoinExpr, j.mergedEnv(left.Schema, right.Schema, lVals, rVals))
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			return out.Insert(ex, concatValues(lVals, rVals))
		})
	})
	if err != nil {
		return Relation{}, err
	}
	return out, nil
}

// lhsBlockPage holds one pinned LHS page's already-unpacked tuples, kept
// resident for as long as its block is being probed against RHS.
type lhsBlockPage struct {
	pid  ids.PageId
	vals [][]any
}

// executeBlockNestedLoops pins up to B-2 LHS pages at a time as one block
// (B = the pool's free frames; one frame is left for the RHS page being
// probed and one for the output relation's own insert; at least one LHS
// page per block), scans all of RHS
// once per block with its current page pinned, and unpins the whole block
// before moving on, per spec.md §4.4.5. Unlike executeNestedLoops, which
// scans through Relation.Scan (always unpinned), this walks pages directly
// through the buffer pool so the pin count it holds is real, not assumed.
func (j *Join) executeBlockNestedLoops(ex *Executor) (Relation, error) {
	left, err := j.Left.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	right, err := j.Right.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	out, err := ex.CreateTemp("join", j.schema)
	if err != nil {
		return Relation{}, err
	}

	_, lsf, err := ex.Files.RelationFile(left.Name)
	if err != nil {
		return Relation{}, err
	}
	_, rsf, err := ex.Files.RelationFile(right.Name)
	if err != nil {
		return Relation{}, err
	}

	blockPages := ex.Pool.FreeFrames() - 2
	if blockPages < 1 {
		blockPages = 1
	}

	for start := 0; start < lsf.NumPages(); start += blockPages {
		end := start + blockPages
		if end > lsf.NumPages() {
			end = lsf.NumPages()
		}

		block := make([]lhsBlockPage, 0, end-start)
		for i := start; i < end; i++ {
			pid, p, err := lsf.PinPage(ex.Pool, i)
			if err != nil {
				return Relation{}, err
			}
			var vals [][]any
			err = p.Iterate(func(_ ids.TupleId, data []byte) error {
				v, err := left.Schema.Unpack(data)
				if err != nil {
					return err
				}
				vals = append(vals, v)
				return nil
			})
			if err != nil {
				_ = ex.Pool.UnpinPage(pid)
				return Relation{}, err
			}
			block = append(block, lhsBlockPage{pid: pid, vals: vals})
		}

		err := j.probeBlock(ex, left.Schema, right.Schema, rsf, block, out)
		for _, b := range block {
			_ = ex.Pool.UnpinPage(b.pid)
		}
		if err != nil {
			return Relation{}, err
		}
	}

	return out, nil
}

// probeBlock scans every RHS page once, pinning it only for the duration of
// its own pass, and matches it against every tuple already pinned in block.
func (j *Join) probeBlock(ex *Executor, lSchema, rSchema dbschema.Schema, rsf *storagefile.StorageFile, block []lhsBlockPage, out Relation) error {
	for i := 0; i < rsf.NumPages(); i++ {
		rpid, rp, err := rsf.PinPage(ex.Pool, i)
		if err != nil {
			return err
		}
		err = rp.Iterate(func(_ ids.TupleId, data []byte) error {
			rVals, err := rSchema.Unpack(data)
			if err != nil {
				return err
			}
			for _, b := range block {
				for _, lVals := range b.vals {
					ok, err := expr.EvalBool(j.JoinExpr, j.mergedEnv(lSchema, rSchema, lVals, rVals))
					if err != nil {
						return err
					}
					if ok {
						if err := out.Insert(ex, concatValues(lVals, rVals)); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
		if unpinErr := ex.Pool.UnpinPage(rpid); err == nil {
			err = unpinErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asInt(v any) (int, error) {
	switch x := v.(type) {
	case int64:
		return int(x), nil
	case int:
		return x, nil
	case float64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("queryexec: %w: cannot use %T as a hash bucket", errBadBucket, v)
	}
}

var errBadBucket = fmt.Errorf("hash expression did not evaluate to a number")

// executeHashJoin runs the INIT -> PARTITION_L -> PARTITION_R -> PROBE ->
// DONE state machine of spec.md §4.4.5: partition each side by its hash
// expression into numbered temporary relations, then nested-loops join
// same-numbered buckets, filtering on key equality (and JoinExpr, if set).
// Any failure drops every partition relation created so far.
func (j *Join) executeHashJoin(ex *Executor) (Relation, error) {
	if j.NumBuckets <= 0 {
		return Relation{}, fmt.Errorf("queryexec: hash join requires NumBuckets > 0")
	}
	left, err := j.Left.Execute(ex)
	if err != nil {
		return Relation{}, err
	}
	right, err := j.Right.Execute(ex)
	if err != nil {
		return Relation{}, err
	}

	var partitions []string
	cleanup := func() {
		for _, name := range partitions {
			_ = ex.Drop(name)
		}
	}

	partitionSide := func(side string, in Relation, hashExpr expr.Expr) (map[int]Relation, error) {
		buckets := make(map[int]Relation)
		err := in.Scan(ex, func(values []any) error {
			v, err := hashExpr.Eval(Env(in.Schema, values))
			if err != nil {
				return err
			}
			raw, err := asInt(v)
			if err != nil {
				return err
			}
			bucket := ((raw % j.NumBuckets) + j.NumBuckets) % j.NumBuckets

			rel, ok := buckets[bucket]
			if !ok {
				rel, err = ex.CreateTemp(fmt.Sprintf("%s_%s_%d", j.id, side, bucket), in.Schema)
				if err != nil {
					return err
				}
				buckets[bucket] = rel
				partitions = append(partitions, rel.Name)
			}
			return rel.Insert(ex, values)
		})
		return buckets, err
	}

	lBuckets, err := partitionSide("L", left, j.LHSHashExpr)
	if err != nil {
		cleanup()
		return Relation{}, err
	}
	rBuckets, err := partitionSide("R", right, j.RHSHashExpr)
	if err != nil {
		cleanup()
		return Relation{}, err
	}

	out, err := ex.CreateTemp("join", j.schema)
	if err != nil {
		cleanup()
		return Relation{}, err
	}

	for bucket, lRel := range lBuckets {
		rRel, ok := rBuckets[bucket]
		if !ok {
			continue
		}
		err := lRel.Scan(ex, func(lVals []any) error {
			return rRel.Scan(ex, func(rVals []any) error {
				lKey := Env(lRel.Schema, lVals)[j.LHSKeyField]
				rKey := Env(rRel.Schema, rVals)[j.RHSKeyField]
				if !valuesEqual(lKey, rKey) {
					return nil
				}
				if j.JoinExpr != nil {
					ok, err := expr.EvalBool(j.JoinExpr, j.mergedEnv(lRel.Schema, rRel.Schema, lVals, rVals))
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
				}
				return out.Insert(ex, concatValues(lVals, rVals))
			})
		})
		if err != nil {
			cleanup()
			return Relation{}, err
		}
	}

	cleanup()
	return out, nil
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return as == bs
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
