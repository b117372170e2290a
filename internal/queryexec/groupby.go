package queryexec

import (
	"fmt"
	"hash/fnv"

	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt/agg"
)

// GroupByExpr maps an input tuple's environment to its group-key values,
// one per GroupSchema field, in order.
type GroupByExpr func(env map[string]any) []any

// GroupBy partitions input tuples by a hash of their group key into
// temporary relations, then aggregates each partition in memory
// (spec.md §4.4.6). There is no pipelined mode, same as joins: batch
// processing only.
type GroupBy struct {
	Child       Operator
	GroupFields []string
	Aggregates  []agg.Descriptor
	GroupExpr   GroupByExpr
	NumBuckets  int

	id     string
	schema dbschema.Schema
}

// NewGroupBy requires at least one aggregate and a child field for every
// group field, and builds groupSchema.fields ++ aggSchema.fields (one field
// per aggregate) as the output schema.
func NewGroupBy(id string, child Operator, groupFields []string, aggregates []agg.Descriptor, groupExpr GroupByExpr, numBuckets int) (*GroupBy, error) {
	if len(aggregates) == 0 {
		return nil, fmt.Errorf("queryexec: group-by needs at least one aggregate")
	}
	childSchema := child.Schema()

	fields := make([]dbschema.Field, 0, len(groupFields)+len(aggregates))
	for _, name := range groupFields {
		idx := childSchema.IndexOf(name)
		if idx < 0 {
			return nil, fmt.Errorf("queryexec: group field %q not in child schema", name)
		}
		fields = append(fields, childSchema.Fields[idx])
	}
	for _, a := range aggregates {
		fields = append(fields, dbschema.Field{Name: a.OutputName, Type: dbschema.FieldInt})
	}
	schema, err := dbschema.New(id, fields)
	if err != nil {
		return nil, fmt.Errorf("queryexec: group-by schema: %w", err)
	}

	if numBuckets <= 0 {
		numBuckets = 16
	}
	return &GroupBy{
		Child: child, GroupFields: groupFields, Aggregates: aggregates,
		GroupExpr: groupExpr, NumBuckets: numBuckets, id: id, schema: schema,
	}, nil
}

func (g *GroupBy) Schema() dbschema.Schema { return g.schema }

func defaultGroupHash(key []any, numBuckets int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return int(h.Sum32()) % numBuckets
}

type groupKey string

func keyOf(values []any) groupKey { return groupKey(fmt.Sprintf("%v", values)) }

func (g *GroupBy) Execute(ex *Executor) (Relation, error) {
	in, err := g.Child.Execute(ex)
	if err != nil {
		return Relation{}, err
	}

	var partitionNames []string
	partitions := make(map[int]Relation)
	cleanup := func() {
		for _, name := range partitionNames {
			_ = ex.Drop(name)
		}
	}

	err = in.Scan(ex, func(values []any) error {
		key := g.GroupExpr(Env(in.Schema, values))
		bucket := defaultGroupHash(key, g.NumBuckets)
		rel, ok := partitions[bucket]
		if !ok {
			rel, err = ex.CreateTemp(fmt.Sprintf("%s_bucket_%d", g.id, bucket), in.Schema)
			if err != nil {
				return err
			}
			partitions[bucket] = rel
			partitionNames = append(partitionNames, rel.Name)
		}
		return rel.Insert(ex, values)
	})
	if err != nil {
		cleanup()
		return Relation{}, err
	}

	out, err := ex.CreateTemp("groupby", g.schema)
	if err != nil {
		cleanup()
		return Relation{}, err
	}

	for _, rel := range partitions {
		accumulators := make(map[groupKey][]*agg.Accumulator)
		keyValues := make(map[groupKey][]any)

		err := rel.Scan(ex, func(values []any) error {
			env := Env(rel.Schema, values)
			key := g.GroupExpr(env)
			k := keyOf(key)
			accs, ok := accumulators[k]
			if !ok {
				accs = make([]*agg.Accumulator, len(g.Aggregates))
				for i, a := range g.Aggregates {
					accs[i] = agg.NewAccumulator(a)
				}
				accumulators[k] = accs
				keyValues[k] = key
			}
			for i, a := range g.Aggregates {
				var v float64
				if a.Kind != agg.Count {
					raw, ok := env[a.InputField]
					if !ok {
						return fmt.Errorf("queryexec: aggregate input field %q not bound", a.InputField)
					}
					f, ok := toFloat(raw)
					if !ok {
						return fmt.Errorf("queryexec: aggregate input field %q is not numeric", a.InputField)
					}
					v = f
				}
				accs[i].Step(v)
			}
			return nil
		})
		if err != nil {
			cleanup()
			return Relation{}, err
		}

		for k, accs := range accumulators {
			outValues := append([]any(nil), keyValues[k]...)
			for _, acc := range accs {
				v, err := acc.Finalize()
				if err != nil {
					cleanup()
					return Relation{}, err
				}
				switch x := v.(type) {
				case int64:
					outValues = append(outValues, x)
				case float64:
					outValues = append(outValues, int64(x))
				default:
					outValues = append(outValues, v)
				}
			}
			if err := out.Insert(ex, outValues); err != nil {
				cleanup()
				return Relation{}, err
			}
		}
	}

	cleanup()
	return out, nil
}
