package compiler

import (
	"fmt"
	"strings"

	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// prefetchNode is one relationship in the prefetch tree.
type prefetchNode struct {
	rel      *model.Relationship
	children []*prefetchNode
}

// buildPrefetch parses dotted prefetch paths into a tree rooted at kind,
// preserving first-seen order.
func buildPrefetch(kind *model.EntityKind, paths []string) ([]*prefetchNode, error) {
	var roots []*prefetchNode
	for _, path := range paths {
		owner, level := kind, &roots
		for _, name := range strings.Split(path, ".") {
			rel, ok := owner.Relationship(name)
			if !ok {
				return nil, types.NewCompileError("%s: cannot prefetch unknown relationship %s", owner.Name, path)
			}
			var node *prefetchNode
			for _, existing := range *level {
				if existing.rel.Name == name {
					node = existing
					break
				}
			}
			if node == nil {
				node = &prefetchNode{rel: rel}
				*level = append(*level, node)
			}
			owner, level = rel.TargetKind(), &node.children
		}
	}
	return roots, nil
}

// projection renders the map projection of alias with optional field list
// and prefetch comprehensions.
func projection(kind *model.EntityKind, alias string, fields, prefetch []string, opts Options, params map[string]any) (string, error) {
	if err := checkReturn(kind, fields); err != nil {
		return "", err
	}
	tree, err := buildPrefetch(kind, prefetch)
	if err != nil {
		return "", err
	}

	var extra []string
	for i, node := range tree {
		extra = append(extra, comprehension(alias, fmt.Sprint(i), node, opts, params))
	}
	return nodeMap(alias, fields, strings.Join(extra, ", ")), nil
}

// comprehension renders one prefetched relationship as a list of
// {rel, node, _edge_id} maps, recursing into nested prefetches.
func comprehension(from, suffix string, node *prefetchNode, opts Options, params map[string]any) string {
	rel := node.rel
	target := rel.TargetKind()
	relVar, nodeVar := "r"+suffix, "t"+suffix

	var nested []string
	for i, child := range node.children {
		nested = append(nested, comprehension(nodeVar, suffix+"_"+fmt.Sprint(i), child, opts, params))
	}

	pattern := edgePattern(from, relVar, rel, nodeVar+target.LabelExpr())
	if where := joinConditions(scopeConditions(target, nodeVar, opts, params)); where != "" {
		pattern += " WHERE " + where
	}

	return fmt.Sprintf("%s: [%s | {%s: properties(%s), %s: %s, %s: elementId(%s)}]",
		model.Quote(rel.Name), pattern,
		ColumnRel, relVar,
		ColumnNode, nodeMap(nodeVar, nil, strings.Join(nested, ", ")),
		ColumnEdgeID, relVar)
}

// nodeMap renders alias {.*, _element_id: elementId(alias), extra}.
func nodeMap(alias string, fields []string, extra string) string {
	parts := []string{".*"}
	if len(fields) > 0 {
		parts = []string{"." + model.Quote(model.FieldUID)}
		for _, f := range fields {
			if f != model.FieldUID {
				parts = append(parts, "."+model.Quote(f))
			}
		}
	}
	parts = append(parts, fmt.Sprintf("%s: elementId(%s)", KeyElementID, alias))
	if extra != "" {
		parts = append(parts, extra)
	}
	return fmt.Sprintf("%s {%s}", alias, strings.Join(parts, ", "))
}

func checkReturn(kind *model.EntityKind, fields []string) error {
	for _, f := range fields {
		if _, ok := kind.Field(f); !ok {
			return types.NewCompileError("%s: cannot return unknown field %s", kind.Name, f)
		}
	}
	return nil
}
