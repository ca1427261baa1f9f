// Package compiler turns entity kinds, predicates and options into
// parameterized Cypher statements.
//
// Every literal value becomes a fresh parameter ($p0, $p1, ...); no value is
// ever written into statement text. Identifiers come from the frozen model
// registry and are quoted with backticks. And, Or and Not nodes are always
// rendered with explicit parentheses so Cypher's own precedence never
// changes the meaning of a filter.
//
// The compiler is stateless: identical inputs yield identical statements.
// A Cache may be attached to skip re-rendering predicates that share a
// shape; values are rebound on every hit.
package compiler
