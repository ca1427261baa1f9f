// Package filter provides the immutable predicate algebra used to select
// entities.
//
// A Predicate is a tree of comparisons combined with And, Or and Not:
//
//	filter.Or(
//	    filter.Field("age", filter.Gt, 40),
//	    filter.Field("age", filter.Lt, 20),
//	)
//
// Field paths are either a plain field name ("age") or one relationship hop
// followed by a field on the related kind ("works_at.name"). Trees are never
// mutated after construction; constructors copy slice and map literals so a
// caller reusing its own slice cannot change a tree it already built.
//
// Construction never fails. Malformed input (empty path, unknown operator,
// nil operand) yields an Invalid node that the compiler reports as a compile
// error before any statement is sent.
package filter
