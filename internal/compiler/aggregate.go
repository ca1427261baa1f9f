package compiler

import (
	"fmt"
	"strings"

	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// AggregateFunc is a Cypher aggregation function.
type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// CompileCount compiles a count of the nodes matching pred.
func (c *Compiler) CompileCount(kind *model.EntityKind, pred filter.Predicate, opts Options) (Statement, error) {
	params := make(map[string]any)
	var b strings.Builder
	if err := c.writeMatch(&b, kind, pred, opts, params); err != nil {
		return Statement{}, err
	}
	fmt.Fprintf(&b, "RETURN count(%s) AS %s", nodeAlias, ColumnCount)
	return Statement{Text: b.String(), Params: params}, nil
}

// CompileAggregate compiles fn over field for the nodes matching pred. An
// empty field is only allowed with AggCount and counts nodes.
func (c *Compiler) CompileAggregate(kind *model.EntityKind, pred filter.Predicate, fn AggregateFunc, field string, opts Options) (Statement, error) {
	var arg string
	switch {
	case field == "" && fn == AggCount:
		arg = nodeAlias
	case field == "":
		return Statement{}, types.NewCompileError("%s: %s requires a field", kind.Name, fn)
	default:
		f, ok := kind.Field(field)
		if !ok {
			return Statement{}, types.NewCompileError("%s: cannot aggregate unknown field %s", kind.Name, field)
		}
		if err := checkAggregate(kind, fn, f); err != nil {
			return Statement{}, err
		}
		arg = prop(nodeAlias, field)
	}

	params := make(map[string]any)
	var b strings.Builder
	if err := c.writeMatch(&b, kind, pred, opts, params); err != nil {
		return Statement{}, err
	}
	fmt.Fprintf(&b, "RETURN %s(%s) AS %s", fn, arg, ColumnValue)
	return Statement{Text: b.String(), Params: params}, nil
}

func checkAggregate(kind *model.EntityKind, fn AggregateFunc, f model.Field) error {
	switch fn {
	case AggCount:
		return nil
	case AggSum, AggAvg:
		if f.Type != model.TypeInt && f.Type != model.TypeFloat && f.Type != model.TypeAny {
			return types.NewCompileError("%s.%s: %s needs a numeric field", kind.Name, f.Name, fn)
		}
	case AggMin, AggMax:
		if !f.Type.Ordered() {
			return types.NewCompileError("%s.%s: %s needs an ordered field", kind.Name, f.Name, fn)
		}
	default:
		return types.NewCompileError("%s: unknown aggregate %q", kind.Name, fn)
	}
	return nil
}
