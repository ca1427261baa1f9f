package compiler

import (
	"fmt"
	"strings"

	"github.com/gkeb/node4j/internal/model"
)

// CompileSchema compiles the DDL for kind: a uniqueness constraint on uid,
// the declared indexes and constraints, and the ttl index for expiring
// kinds. Every statement uses IF NOT EXISTS so re-application is a no-op.
// Schema commands take no parameters.
func CompileSchema(kind *model.EntityKind) []Statement {
	var out []Statement
	seen := make(map[string]bool)

	add := func(text, name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, Statement{Text: text, Params: map[string]any{}})
	}

	uid := constraintName(kind, []string{model.FieldUID})
	add(constraintDDL(kind, uid, []string{model.FieldUID}), uid)

	for _, c := range kind.Constraints {
		name := constraintName(kind, c.Fields)
		add(constraintDDL(kind, name, c.Fields), name)
	}
	for _, idx := range kind.Indexes {
		name := indexName(kind, idx.Fields)
		add(indexDDL(kind, name, idx.Fields), name)
	}
	if kind.TTL != nil {
		name := indexName(kind, []string{model.FieldTTL})
		add(indexDDL(kind, name, []string{model.FieldTTL}), name)
	}
	return out
}

func constraintName(kind *model.EntityKind, fields []string) string {
	return "constraint_" + kind.Name + "_" + strings.Join(fields, "_")
}

func indexName(kind *model.EntityKind, fields []string) string {
	return "index_" + kind.Name + "_" + strings.Join(fields, "_")
}

func constraintDDL(kind *model.EntityKind, name string, fields []string) string {
	target := propertyTuple(fields)
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE %s IS UNIQUE",
		model.Quote(name), model.Quote(kind.Name), target)
}

func indexDDL(kind *model.EntityKind, name string, fields []string) string {
	props := make([]string, len(fields))
	for i, f := range fields {
		props[i] = prop(nodeAlias, f)
	}
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (%s)",
		model.Quote(name), model.Quote(kind.Name), strings.Join(props, ", "))
}

// propertyTuple renders n.`a` or (n.`a`, n.`b`).
func propertyTuple(fields []string) string {
	if len(fields) == 1 {
		return prop(nodeAlias, fields[0])
	}
	props := make([]string, len(fields))
	for i, f := range fields {
		props[i] = prop(nodeAlias, f)
	}
	return "(" + strings.Join(props, ", ") + ")"
}
