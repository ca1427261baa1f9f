package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// fragment is the value-independent rendering of a predicate.
type fragment struct {
	matches []string
	aliases []string
	where   string
}

var cypherOps = map[filter.Operator]string{
	filter.Eq:         "=",
	filter.Ne:         "<>",
	filter.Gt:         ">",
	filter.Gte:        ">=",
	filter.Lt:         "<",
	filter.Lte:        "<=",
	filter.In:         "IN",
	filter.Contains:   "CONTAINS",
	filter.StartsWith: "STARTS WITH",
	filter.EndsWith:   "ENDS WITH",
}

// render returns the fragment for pred and the values to bind to $p0..$pN.
func (c *Compiler) render(kind *model.EntityKind, pred filter.Predicate) (fragment, []any, error) {
	if pred == nil {
		return fragment{}, nil, nil
	}
	if bad, ok := pred.(*filter.Invalid); ok {
		return fragment{}, nil, bad.Err()
	}

	var key string
	if c.cache != nil {
		key = cacheKey(kind, pred)
		if frag, ok := c.cache.get(key); ok {
			return frag, filter.Values(pred), nil
		}
	}

	r := &renderer{kind: kind, hops: make(map[string]string)}
	where, err := r.predicate(pred)
	if err != nil {
		return fragment{}, nil, err
	}
	frag := fragment{matches: r.matches, aliases: r.aliases, where: where}
	c.cache.put(key, frag)
	return frag, r.values, nil
}

type renderer struct {
	kind    *model.EntityKind
	values  []any
	hops    map[string]string
	matches []string
	aliases []string

	// negated collects the hops referenced inside the innermost NOT;
	// depth numbers their aliases.
	negated map[string]*model.Relationship
	depth   int
}

func (r *renderer) bind(v any) string {
	name := paramName(len(r.values))
	r.values = append(r.values, v)
	return "$" + name
}

func (r *renderer) predicate(p filter.Predicate) (string, error) {
	switch n := p.(type) {
	case *filter.Comparison:
		return r.comparison(n)
	case *filter.AndExpr:
		return r.binary("AND", n.Left(), n.Right())
	case *filter.OrExpr:
		return r.binary("OR", n.Left(), n.Right())
	case *filter.NotExpr:
		return r.negation(n.Inner())
	case *filter.Invalid:
		return "", n.Err()
	default:
		return "", types.NewCompileError("unsupported predicate %T", p)
	}
}

// negation renders NOT inner. Hops referenced inside are quantified over
// every related node, so the negation holds only when no related node
// satisfies inner.
func (r *renderer) negation(inner filter.Predicate) (string, error) {
	saved := r.negated
	r.negated = make(map[string]*model.Relationship)
	r.depth++
	depth := r.depth
	expr, err := r.predicate(inner)
	used := r.negated
	r.negated = saved
	r.depth--
	if err != nil {
		return "", err
	}
	if len(used) == 0 {
		return "NOT (" + expr + ")", nil
	}

	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		rel := used[name]
		alias := negatedAlias(depth, rel)
		bound := alias + "_m"
		expr = fmt.Sprintf("any(%s IN [%s | %s] WHERE %s)",
			alias, edgePattern(nodeAlias, "", rel, bound+rel.TargetKind().LabelExpr()), bound, expr)
	}
	return "NOT " + expr, nil
}

func negatedAlias(depth int, rel *model.Relationship) string {
	return fmt.Sprintf("x%d_%s", depth, rel.Name)
}

func (r *renderer) binary(op string, left, right filter.Predicate) (string, error) {
	l, err := r.predicate(left)
	if err != nil {
		return "", err
	}
	rt, err := r.predicate(right)
	if err != nil {
		return "", err
	}
	return "(" + l + ") " + op + " (" + rt + ")", nil
}

func (r *renderer) comparison(c *filter.Comparison) (string, error) {
	hop, name := c.Hop()

	alias, owner := nodeAlias, r.kind
	if hop != "" {
		rel, ok := r.kind.Relationship(hop)
		if !ok {
			return "", types.NewCompileError("%s: unknown relationship %s in %s", r.kind.Name, hop, c.Path())
		}
		if r.negated != nil {
			r.negated[rel.Name] = rel
			alias = negatedAlias(r.depth, rel)
		} else {
			alias = r.hopAlias(rel)
		}
		owner = rel.TargetKind()
	}

	field, ok := owner.Field(name)
	if !ok {
		return "", types.NewCompileError("%s: unknown field %s", owner.Name, c.Path())
	}
	if err := checkOperand(owner, field, c); err != nil {
		return "", err
	}

	target := prop(alias, name)
	switch c.Op() {
	case filter.IsNull:
		if c.Value().(bool) {
			return target + " IS NULL", nil
		}
		return target + " IS NOT NULL", nil
	case filter.Contains:
		if field.Type.IsList() {
			return r.bind(c.Value()) + " IN " + target, nil
		}
	}
	return fmt.Sprintf("%s %s %s", target, cypherOps[c.Op()], r.bind(c.Value())), nil
}

// hopAlias returns the alias bound to a relationship hop, adding its
// OPTIONAL MATCH the first time the hop is seen.
func (r *renderer) hopAlias(rel *model.Relationship) string {
	if alias, ok := r.hops[rel.Name]; ok {
		return alias
	}
	alias := "h_" + rel.Name
	r.hops[rel.Name] = alias
	r.aliases = append(r.aliases, alias)
	r.matches = append(r.matches, "OPTIONAL MATCH "+edgePattern(nodeAlias, "", rel, alias+rel.TargetKind().LabelExpr()))
	return alias
}

// checkOperand rejects operator and value combinations that cannot match
// the declared field type.
func checkOperand(owner *model.EntityKind, field model.Field, c *filter.Comparison) error {
	op, v := c.Op(), c.Value()
	mismatch := func(detail string) error {
		return types.NewCompileError("%s.%s: %s %s", owner.Name, field.Name, op, detail).
			WithContext("path", c.Path())
	}

	switch op {
	case filter.IsNull:
		return nil
	case filter.Eq, filter.Ne:
		if v == nil {
			return mismatch("against null, use isnull")
		}
		if !field.Type.Accepts(v) {
			return mismatch(fmt.Sprintf("value %T does not match %s", v, field.Type))
		}
	case filter.Gt, filter.Gte, filter.Lt, filter.Lte:
		if !field.Type.Ordered() {
			return mismatch(fmt.Sprintf("not defined for %s", field.Type))
		}
		if v == nil || !field.Type.Accepts(v) {
			return mismatch(fmt.Sprintf("value %T does not match %s", v, field.Type))
		}
	case filter.In:
		if field.Type.IsList() {
			return mismatch("not defined for list fields, use contains")
		}
		for _, item := range v.([]any) {
			if item == nil || !field.Type.Accepts(item) {
				return mismatch(fmt.Sprintf("element %T does not match %s", item, field.Type))
			}
		}
	case filter.Contains:
		if field.Type.IsList() {
			if v == nil || !field.Type.Elem().Accepts(v) {
				return mismatch(fmt.Sprintf("element %T does not match %s", v, field.Type))
			}
			return nil
		}
		fallthrough
	case filter.StartsWith, filter.EndsWith:
		if field.Type != model.TypeString && field.Type != model.TypeAny {
			return mismatch(fmt.Sprintf("not defined for %s", field.Type))
		}
		if _, ok := v.(string); !ok {
			return mismatch(fmt.Sprintf("expects a string, got %T", v))
		}
	}
	return nil
}

// edgePattern renders (from)-[relVar:TYPE]->(to) honouring the declared
// direction. to is written verbatim so callers can attach labels.
func edgePattern(from, relVar string, rel *model.Relationship, to string) string {
	edge := "[" + relVar + ":" + model.Quote(rel.Edge.Type) + "]"
	switch rel.Edge.Direction {
	case model.In:
		return fmt.Sprintf("(%s)<-%s-(%s)", from, edge, to)
	case model.Both:
		return fmt.Sprintf("(%s)-%s-(%s)", from, edge, to)
	default:
		return fmt.Sprintf("(%s)-%s->(%s)", from, edge, to)
	}
}

// valueSignature describes the dynamic types of a predicate's values, so
// that cached renderings are only reused when type checks would agree.
func valueSignature(pred filter.Predicate) string {
	var b strings.Builder
	for _, v := range filter.Values(pred) {
		if list, ok := v.([]any); ok {
			b.WriteString("[")
			for _, item := range list {
				fmt.Fprintf(&b, "%T,", item)
			}
			b.WriteString("]")
		} else {
			fmt.Fprintf(&b, "%T", v)
		}
		b.WriteString(";")
	}
	return b.String()
}
