package filter

import (
	"fmt"
	"strings"

	"github.com/gkeb/node4j/internal/types"
)

// Operator names a comparison between a field and a literal value.
type Operator string

const (
	Eq         Operator = "eq"
	Ne         Operator = "ne"
	Gt         Operator = "gt"
	Gte        Operator = "gte"
	Lt         Operator = "lt"
	Lte        Operator = "lte"
	In         Operator = "in"
	Contains   Operator = "contains"
	StartsWith Operator = "startswith"
	EndsWith   Operator = "endswith"
	IsNull     Operator = "isnull"
)

// Operators lists every supported operator in declaration order.
var Operators = []Operator{Eq, Ne, Gt, Gte, Lt, Lte, In, Contains, StartsWith, EndsWith, IsNull}

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	for _, known := range Operators {
		if o == known {
			return true
		}
	}
	return false
}

// Ordering reports whether o compares magnitudes.
func (o Operator) Ordering() bool {
	return o == Gt || o == Gte || o == Lt || o == Lte
}

// Textual reports whether o only applies to strings (or lists, for Contains).
func (o Operator) Textual() bool {
	return o == Contains || o == StartsWith || o == EndsWith
}

// Predicate is a node of an immutable boolean filter tree.
//
// This is a sealed interface: only types in this package implement it, so
// compilers can switch exhaustively over Comparison, AndExpr, OrExpr,
// NotExpr and Invalid.
type Predicate interface {
	// Shape returns a structural key that ignores literal values. Two
	// predicates with the same shape compile to the same statement text.
	Shape() string
	predicateNode()
}

// Comparison compares the field at a path with a literal value.
type Comparison struct {
	path  string
	op    Operator
	value any
}

func (*Comparison) predicateNode() {}

// Path returns the full field path, for example "works_at.name".
func (c *Comparison) Path() string { return c.path }

// Op returns the comparison operator.
func (c *Comparison) Op() Operator { return c.op }

// Value returns the literal. Callers must treat slices and maps as read-only.
func (c *Comparison) Value() any { return c.value }

// Hop splits the path into the relationship hop and the field on the far
// side. hop is empty for a plain field.
func (c *Comparison) Hop() (hop, field string) {
	if i := strings.IndexByte(c.path, '.'); i >= 0 {
		return c.path[:i], c.path[i+1:]
	}
	return "", c.path
}

// Shape implements Predicate.
func (c *Comparison) Shape() string {
	if c.op == IsNull {
		return fmt.Sprintf("%s:%s:%t", c.path, c.op, c.value)
	}
	return c.path + ":" + string(c.op)
}

// AndExpr is the conjunction of two predicates.
type AndExpr struct {
	left, right Predicate
}

func (*AndExpr) predicateNode() {}

// Left returns the first operand.
func (a *AndExpr) Left() Predicate { return a.left }

// Right returns the second operand.
func (a *AndExpr) Right() Predicate { return a.right }

// Shape implements Predicate.
func (a *AndExpr) Shape() string {
	return "and(" + a.left.Shape() + "," + a.right.Shape() + ")"
}

// OrExpr is the disjunction of two predicates.
type OrExpr struct {
	left, right Predicate
}

func (*OrExpr) predicateNode() {}

// Left returns the first operand.
func (o *OrExpr) Left() Predicate { return o.left }

// Right returns the second operand.
func (o *OrExpr) Right() Predicate { return o.right }

// Shape implements Predicate.
func (o *OrExpr) Shape() string {
	return "or(" + o.left.Shape() + "," + o.right.Shape() + ")"
}

// NotExpr negates a predicate.
type NotExpr struct {
	inner Predicate
}

func (*NotExpr) predicateNode() {}

// Inner returns the negated operand.
func (n *NotExpr) Inner() Predicate { return n.inner }

// Shape implements Predicate.
func (n *NotExpr) Shape() string {
	return "not(" + n.inner.Shape() + ")"
}

// Invalid records a construction error. It absorbs any tree it is combined
// into so a malformed leaf always surfaces at compile time.
type Invalid struct {
	reason string
}

func (*Invalid) predicateNode() {}

// Shape implements Predicate.
func (i *Invalid) Shape() string { return "invalid(" + i.reason + ")" }

// Reason describes what was wrong with the input.
func (i *Invalid) Reason() string { return i.reason }

// Err returns the compile error describing the construction failure.
func (i *Invalid) Err() error {
	return types.NewCompileError("invalid filter: %s", i.reason)
}
