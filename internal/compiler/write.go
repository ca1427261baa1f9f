package compiler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// CompileCreate compiles the creation of one node whose properties are
// props. props must already carry the uid.
func CompileCreate(kind *model.EntityKind, props map[string]any) (Statement, error) {
	if err := checkProps(kind, props); err != nil {
		return Statement{}, err
	}
	text := fmt.Sprintf("CREATE (%s%s)\nSET %s = $props\nRETURN %s AS %s",
		nodeAlias, kind.LabelExpr(), nodeAlias, nodeMap(nodeAlias, nil, ""), ColumnNode)
	return Statement{Text: text, Params: map[string]any{"props": copyMap(props)}}, nil
}

// CompileBulkCreate compiles the creation of one node per row in a single
// statement with one parameter list.
func CompileBulkCreate(kind *model.EntityKind, rows []map[string]any) (Statement, error) {
	if len(rows) == 0 {
		return Statement{}, types.NewCompileError("%s: bulk create without rows", kind.Name)
	}
	batch := make([]any, len(rows))
	for i, row := range rows {
		if err := checkProps(kind, row); err != nil {
			return Statement{}, err
		}
		batch[i] = copyMap(row)
	}
	text := fmt.Sprintf("UNWIND $rows AS row\nCREATE (%s%s)\nSET %s = row\nRETURN %s AS %s",
		nodeAlias, kind.LabelExpr(), nodeAlias, nodeMap(nodeAlias, nil, ""), ColumnNode)
	return Statement{Text: text, Params: map[string]any{"rows": batch}}, nil
}

// CompileBulkUpdate compiles an update of many nodes in one statement. Each
// row is matched on its matchOn field; its other keys are merged into the
// node. Rows without the match key are rejected.
func CompileBulkUpdate(kind *model.EntityKind, matchOn string, rows []map[string]any, opts Options) (Statement, error) {
	if len(rows) == 0 {
		return Statement{}, types.NewCompileError("%s: bulk update without rows", kind.Name)
	}
	if _, ok := kind.Field(matchOn); !ok {
		return Statement{}, types.NewCompileError("%s: cannot match on unknown field %s", kind.Name, matchOn)
	}

	batch := make([]any, len(rows))
	for i, row := range rows {
		key, ok := row[matchOn]
		if !ok || key == nil {
			return Statement{}, types.NewCompileError("%s: bulk update row %d lacks %s", kind.Name, i, matchOn)
		}
		props := make(map[string]any, len(row))
		for k, v := range row {
			if k != matchOn {
				props[k] = v
			}
		}
		if err := checkWritable(kind, props); err != nil {
			return Statement{}, err
		}
		batch[i] = map[string]any{"key": key, "props": props}
	}

	params := map[string]any{"rows": batch}
	conds := append([]string{fmt.Sprintf("%s = row.key", prop(nodeAlias, matchOn))},
		scopeConditions(kind, nodeAlias, opts, params)...)

	text := fmt.Sprintf("UNWIND $rows AS row\nMATCH (%s%s)\nWHERE %s\nSET %s += row.props\nRETURN %s AS %s",
		nodeAlias, kind.LabelExpr(), joinConditions(conds), nodeAlias, nodeMap(nodeAlias, nil, ""), ColumnNode)
	return Statement{Text: text, Params: params}, nil
}

// CompilePatch compiles "SET n += $data" over the nodes with the given
// uids. A nil value in data removes the property. Scope filters are not
// applied so soft deleted nodes can be restored.
func CompilePatch(kind *model.EntityKind, uids []string, data map[string]any) (Statement, error) {
	if len(data) == 0 {
		return Statement{}, types.NewCompileError("%s: empty update", kind.Name)
	}
	if err := checkWritable(kind, data); err != nil {
		return Statement{}, err
	}
	text := fmt.Sprintf("MATCH (%s%s)\nWHERE %s IN $uids\nSET %s += $data\nRETURN %s AS %s",
		nodeAlias, kind.LabelExpr(), prop(nodeAlias, model.FieldUID), nodeAlias, nodeMap(nodeAlias, nil, ""), ColumnNode)
	return Statement{Text: text, Params: map[string]any{"uids": uidList(uids), "data": copyMap(data)}}, nil
}

// CompileDelete compiles a DETACH DELETE of the nodes matching pred. The
// statement returns the uid of every deleted node.
func (c *Compiler) CompileDelete(kind *model.EntityKind, pred filter.Predicate, opts Options) (Statement, error) {
	params := make(map[string]any)
	var b strings.Builder
	if err := c.writeMatch(&b, kind, pred, opts, params); err != nil {
		return Statement{}, err
	}
	fmt.Fprintf(&b, "WITH %s, %s AS %s\nDETACH DELETE %s\nRETURN %s",
		nodeAlias, prop(nodeAlias, model.FieldUID), ColumnUID, nodeAlias, ColumnUID)
	return Statement{Text: b.String(), Params: params}, nil
}

// CompileDelete compiles a filtered delete with an uncached compiler.
func CompileDelete(kind *model.EntityKind, pred filter.Predicate, opts Options) (Statement, error) {
	return defaultCompiler.CompileDelete(kind, pred, opts)
}

// CompileDeleteByUID compiles a DETACH DELETE of the nodes with the given
// uids.
func CompileDeleteByUID(kind *model.EntityKind, uids []string) Statement {
	text := fmt.Sprintf("MATCH (%s%s)\nWHERE %s IN $uids\nWITH %s, %s AS %s\nDETACH DELETE %s\nRETURN %s",
		nodeAlias, kind.LabelExpr(), prop(nodeAlias, model.FieldUID),
		nodeAlias, prop(nodeAlias, model.FieldUID), ColumnUID, nodeAlias, ColumnUID)
	return Statement{Text: text, Params: map[string]any{"uids": uidList(uids)}}
}

// CompilePurgeExpired compiles a DETACH DELETE of at most batch nodes of
// an expiring kind whose ttl is before now. Soft deleted nodes are purged
// too. The statement returns the uid of every deleted node.
func CompilePurgeExpired(kind *model.EntityKind, now time.Time, batch int) (Statement, error) {
	if kind.TTL == nil {
		return Statement{}, types.NewCompileError("%s: kind does not expire", kind.Name)
	}
	if batch <= 0 {
		return Statement{}, types.NewCompileError("%s: purge batch must be positive", kind.Name)
	}
	ttl := prop(nodeAlias, model.FieldTTL)
	text := fmt.Sprintf("MATCH (%s%s)\nWHERE %s IS NOT NULL AND %s < $now\nWITH %s LIMIT $batch\nWITH %s, %s AS %s\nDETACH DELETE %s\nRETURN %s",
		nodeAlias, kind.LabelExpr(), ttl, ttl,
		nodeAlias,
		nodeAlias, prop(nodeAlias, model.FieldUID), ColumnUID, nodeAlias, ColumnUID)
	return Statement{Text: text, Params: map[string]any{"now": now, "batch": int64(batch)}}, nil
}

// checkProps rejects unknown fields in a full property map.
func checkProps(kind *model.EntityKind, props map[string]any) error {
	for _, name := range sortedKeys(props) {
		if _, ok := kind.Field(name); !ok {
			return types.NewCompileError("%s: unknown field %s", kind.Name, name)
		}
	}
	return nil
}

func uidList(uids []string) []any {
	out := make([]any, len(uids))
	for i, u := range uids {
		out[i] = u
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
