package compiler

import (
	"fmt"

	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// CompileConnect compiles the creation of one edge for rel between the
// nodes with the given uids. With dedupe set, an existing edge between the
// pair is reused via MERGE and its properties are merged. The statement
// returns the number of edges written, which is zero when an endpoint is
// missing.
func CompileConnect(rel *model.Relationship, sourceUID, targetUID string, props map[string]any, dedupe bool) (Statement, error) {
	if err := checkEdgeProps(rel, props); err != nil {
		return Statement{}, err
	}

	if props == nil {
		props = map[string]any{}
	}

	verb, set := "CREATE", "SET r = $props"
	edge := rel
	if dedupe {
		verb, set = "MERGE", "SET r += $props"
	} else if rel.Edge.Direction == model.Both {
		// CREATE needs a direction; undirected edges are stored outgoing.
		out := *rel
		out.Edge.Direction = model.Out
		edge = &out
	}

	text := fmt.Sprintf("%s\n%s %s\n%s\nRETURN count(r) AS %s",
		matchEndpoints(rel), verb, edgePattern("a", "r", edge, "b"), set, ColumnCount)
	return Statement{Text: text, Params: endpointParams(sourceUID, targetUID, props)}, nil
}

// CompileDisconnect compiles the deletion of every edge for rel between the
// pair. It returns the removed count, zero when none existed.
func CompileDisconnect(rel *model.Relationship, sourceUID, targetUID string) Statement {
	text := fmt.Sprintf("%s\nDELETE r\nRETURN count(*) AS %s", matchEdges(rel), ColumnCount)
	return Statement{Text: text, Params: endpointParams(sourceUID, targetUID, nil)}
}

// CompileUpdateEdge compiles a property merge onto every edge for rel
// between the pair and returns the updated count.
func CompileUpdateEdge(rel *model.Relationship, sourceUID, targetUID string, props map[string]any) (Statement, error) {
	if len(props) == 0 {
		return Statement{}, types.NewCompileError("%s.%s: empty edge update", rel.Owner().Name, rel.Name)
	}
	if err := checkEdgeProps(rel, props); err != nil {
		return Statement{}, err
	}
	text := fmt.Sprintf("%s\nSET r += $props\nRETURN count(r) AS %s", matchEdges(rel), ColumnCount)
	return Statement{Text: text, Params: endpointParams(sourceUID, targetUID, props)}, nil
}

// CompileResolve compiles the lazy load of rel for one source node. Rows
// carry the edge properties, the target node map and the edge element id,
// ordered by edge element id.
func CompileResolve(rel *model.Relationship, sourceUID string, opts Options) (Statement, error) {
	target := rel.TargetKind()
	params := map[string]any{"source": sourceUID}

	proj, err := projection(target, "t", opts.Return, opts.Prefetch, opts, params)
	if err != nil {
		return Statement{}, err
	}

	conds := append([]string{prop("a", model.FieldUID) + " = $source"}, scopeConditions(target, "t", opts, params)...)
	text := fmt.Sprintf("MATCH %s\nWHERE %s\nRETURN properties(r) AS %s, %s AS %s, elementId(r) AS %s\nORDER BY elementId(r)",
		edgePattern("a"+rel.Owner().LabelExpr(), "r", rel, "t"+target.LabelExpr()),
		joinConditions(conds),
		ColumnRel, proj, ColumnNode, ColumnEdgeID)
	return Statement{Text: text, Params: params}, nil
}

func matchEndpoints(rel *model.Relationship) string {
	return fmt.Sprintf("MATCH (a%s), (b%s)\nWHERE %s = $source AND %s = $target",
		rel.Owner().LabelExpr(), rel.TargetKind().LabelExpr(),
		prop("a", model.FieldUID), prop("b", model.FieldUID))
}

func matchEdges(rel *model.Relationship) string {
	return fmt.Sprintf("MATCH %s\nWHERE %s = $source AND %s = $target",
		edgePattern("a"+rel.Owner().LabelExpr(), "r", rel, "b"+rel.TargetKind().LabelExpr()),
		prop("a", model.FieldUID), prop("b", model.FieldUID))
}

func endpointParams(sourceUID, targetUID string, props map[string]any) map[string]any {
	params := map[string]any{"source": sourceUID, "target": targetUID}
	if props != nil {
		params["props"] = copyMap(props)
	}
	return params
}

// checkEdgeProps rejects properties outside the edge schema. Edges
// without a declared schema accept any properties.
func checkEdgeProps(rel *model.Relationship, props map[string]any) error {
	if len(rel.Edge.Properties) == 0 {
		return nil
	}
	for _, name := range sortedKeys(props) {
		if _, ok := rel.Edge.Property(name); !ok {
			return types.NewCompileError("%s.%s: unknown edge property %s", rel.Owner().Name, rel.Name, name)
		}
	}
	return nil
}
