package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Field builds a comparison between the field at path and value.
func Field(path string, op Operator, value any) Predicate {
	if path == "" {
		return &Invalid{reason: "empty field path"}
	}
	if !pathPattern.MatchString(path) {
		return &Invalid{reason: fmt.Sprintf("malformed field path %q", path)}
	}
	if !op.Valid() {
		return &Invalid{reason: fmt.Sprintf("unknown operator %q on %s", op, path)}
	}

	switch op {
	case IsNull:
		b, ok := value.(bool)
		if !ok {
			return &Invalid{reason: fmt.Sprintf("%s__isnull expects a bool, got %T", path, value)}
		}
		return &Comparison{path: path, op: op, value: b}
	case In:
		list, ok := toList(value)
		if !ok {
			return &Invalid{reason: fmt.Sprintf("%s__in expects a list, got %T", path, value)}
		}
		return &Comparison{path: path, op: op, value: list}
	}

	return &Comparison{path: path, op: op, value: freeze(value)}
}

// And returns the conjunction of a and b.
func And(a, b Predicate) Predicate {
	if bad := firstInvalid("and", a, b); bad != nil {
		return bad
	}
	return &AndExpr{left: a, right: b}
}

// Or returns the disjunction of a and b.
func Or(a, b Predicate) Predicate {
	if bad := firstInvalid("or", a, b); bad != nil {
		return bad
	}
	return &OrExpr{left: a, right: b}
}

// Not returns the negation of p.
func Not(p Predicate) Predicate {
	if bad := firstInvalid("not", p); bad != nil {
		return bad
	}
	return &NotExpr{inner: p}
}

// All folds ps into a left-nested conjunction. It returns nil, meaning no
// filter, when ps is empty.
func All(ps ...Predicate) Predicate {
	return fold(And, ps)
}

// Any folds ps into a left-nested disjunction. It returns nil when ps is
// empty.
func Any(ps ...Predicate) Predicate {
	return fold(Or, ps)
}

// Where builds the conjunction of keyword lookups such as
// {"age__gt": 40, "name": "Bob"}. A key without a recognised "__op" suffix
// is an equality test. Keys are visited in sorted order so the same map
// always yields the same tree.
func Where(lookups map[string]any) Predicate {
	if len(lookups) == 0 {
		return nil
	}

	keys := make([]string, 0, len(lookups))
	for k := range lookups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ps := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		path, op := ParseLookup(k)
		ps = append(ps, Field(path, op, lookups[k]))
	}
	return All(ps...)
}

// ParseLookup splits "field__op" into its path and operator.
func ParseLookup(key string) (string, Operator) {
	if i := strings.LastIndex(key, "__"); i > 0 {
		if op := Operator(key[i+2:]); op.Valid() {
			return key[:i], op
		}
	}
	return key, Eq
}

func fold(join func(a, b Predicate) Predicate, ps []Predicate) Predicate {
	if len(ps) == 0 {
		return nil
	}
	acc := ps[0]
	if acc == nil {
		return &Invalid{reason: "nil operand"}
	}
	for _, p := range ps[1:] {
		acc = join(acc, p)
	}
	return acc
}

func firstInvalid(name string, ps ...Predicate) Predicate {
	for _, p := range ps {
		if p == nil {
			return &Invalid{reason: name + ": nil operand"}
		}
		if bad, ok := p.(*Invalid); ok {
			return bad
		}
	}
	return nil
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = freeze(rv.Index(i).Interface())
	}
	return out, true
}

// freeze copies slice and map literals so the tree owns its values.
func freeze(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), rv.Bytes()...)
		}
		list, _ := toList(v)
		return list
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = freeze(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}

// Values returns the literal values of p in the order a depth-first, left
// to right walk visits them. Null checks carry no value and are skipped.
func Values(p Predicate) []any {
	var out []any
	Walk(p, func(c *Comparison) {
		if c.op != IsNull {
			out = append(out, c.value)
		}
	})
	return out
}

// Walk calls fn for every comparison in p, depth first, left to right.
func Walk(p Predicate, fn func(*Comparison)) {
	switch n := p.(type) {
	case *Comparison:
		fn(n)
	case *AndExpr:
		Walk(n.left, fn)
		Walk(n.right, fn)
	case *OrExpr:
		Walk(n.left, fn)
		Walk(n.right, fn)
	case *NotExpr:
		Walk(n.inner, fn)
	}
}

// Equal reports whether a and b have the same structure and values.
func Equal(a, b Predicate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Shape() != b.Shape() {
		return false
	}
	return reflect.DeepEqual(Values(a), Values(b))
}
