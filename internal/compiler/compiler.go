package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// Result columns and map keys shared with the materializer.
const (
	// ColumnNode holds the node map of the primary entity.
	ColumnNode = "node"
	// ColumnRel holds edge properties in resolve rows and prefetch entries.
	ColumnRel = "rel"
	// ColumnEdgeID holds the edge element id in resolve rows and prefetch entries.
	ColumnEdgeID = "_edge_id"
	// ColumnCount holds the result of count and edge mutations.
	ColumnCount = "count"
	// ColumnValue holds the result of an aggregate.
	ColumnValue = "value"
	// ColumnUID holds deleted identifiers.
	ColumnUID = "uid"
	// KeyElementID is added to every node map.
	KeyElementID = "_element_id"
)

// nodeAlias is the variable bound to the primary entity.
const nodeAlias = "n"

// Statement is compiled Cypher text with its parameters.
type Statement struct {
	Text   string
	Params map[string]any
}

func (s Statement) String() string {
	return s.Text
}

// Options controls projection, prefetching, paging and mutation.
type Options struct {
	// Return limits the projected fields. uid is always returned.
	Return []string
	// Prefetch names relationships to load in the same round trip.
	// Dotted paths ("works_at.employees") prefetch nested relationships.
	Prefetch []string
	// OrderBy lists fields; a leading "-" sorts descending.
	OrderBy []string
	Skip    int
	Limit   int
	// Update turns the statement into "SET n += $data" over the matched
	// nodes.
	Update map[string]any
	// Now is the reference time for TTL filtering. The zero value uses
	// the server clock.
	Now time.Time
	// IncludeDeleted disables soft delete and TTL filtering.
	IncludeDeleted bool
}

// Compiler renders statements. The zero value is usable and uncached.
type Compiler struct {
	cache *Cache
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCache memoizes predicate rendering.
func WithCache(c *Cache) Option {
	return func(comp *Compiler) {
		comp.cache = c
	}
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCompiler = &Compiler{}

// Compile compiles a read, or an update when opts.Update is set, with an
// uncached compiler.
func Compile(kind *model.EntityKind, pred filter.Predicate, opts Options) (Statement, error) {
	return defaultCompiler.Compile(kind, pred, opts)
}

// Compile compiles a read of kind filtered by pred. A nil pred matches
// every node. When opts.Update is set the matched nodes are updated and
// returned instead.
func (c *Compiler) Compile(kind *model.EntityKind, pred filter.Predicate, opts Options) (Statement, error) {
	if opts.Update != nil {
		return c.compileUpdate(kind, pred, opts)
	}

	params := make(map[string]any)
	var b strings.Builder

	if err := c.writeMatch(&b, kind, pred, opts, params); err != nil {
		return Statement{}, err
	}
	if err := writePaging(&b, kind, opts, params); err != nil {
		return Statement{}, err
	}

	proj, err := projection(kind, nodeAlias, opts.Return, opts.Prefetch, opts, params)
	if err != nil {
		return Statement{}, err
	}
	fmt.Fprintf(&b, "RETURN %s AS %s", proj, ColumnNode)

	return Statement{Text: b.String(), Params: params}, nil
}

func (c *Compiler) compileUpdate(kind *model.EntityKind, pred filter.Predicate, opts Options) (Statement, error) {
	if len(opts.Update) == 0 {
		return Statement{}, types.NewCompileError("%s: empty update", kind.Name)
	}
	if err := checkWritable(kind, opts.Update); err != nil {
		return Statement{}, err
	}

	params := map[string]any{"data": copyMap(opts.Update)}
	var b strings.Builder

	if err := c.writeMatch(&b, kind, pred, opts, params); err != nil {
		return Statement{}, err
	}
	b.WriteString("SET n += $data\n")
	fmt.Fprintf(&b, "RETURN %s AS %s", nodeMap(nodeAlias, nil, ""), ColumnNode)

	return Statement{Text: b.String(), Params: params}, nil
}

// writeMatch writes the MATCH, hop traversals, WHERE and the distinct
// collapse. Afterwards only n is in scope.
func (c *Compiler) writeMatch(b *strings.Builder, kind *model.EntityKind, pred filter.Predicate, opts Options, params map[string]any) error {
	frag, values, err := c.render(kind, pred)
	if err != nil {
		return err
	}
	for i, v := range values {
		params[paramName(i)] = v
	}

	fmt.Fprintf(b, "MATCH (%s%s)\n", nodeAlias, kind.LabelExpr())
	for _, m := range frag.matches {
		b.WriteString(m)
		b.WriteString("\n")
	}
	if len(frag.aliases) > 0 {
		fmt.Fprintf(b, "WITH %s, %s\n", nodeAlias, strings.Join(frag.aliases, ", "))
	}

	conds := make([]string, 0, 3)
	if frag.where != "" {
		conds = append(conds, frag.where)
	}
	conds = append(conds, scopeConditions(kind, nodeAlias, opts, params)...)
	if where := joinConditions(conds); where != "" {
		fmt.Fprintf(b, "WHERE %s\n", where)
	}

	if len(frag.aliases) > 0 {
		fmt.Fprintf(b, "WITH DISTINCT %s\n", nodeAlias)
	}
	return nil
}

func writePaging(b *strings.Builder, kind *model.EntityKind, opts Options, params map[string]any) error {
	if len(opts.OrderBy) == 0 && opts.Skip <= 0 && opts.Limit <= 0 {
		return nil
	}
	if opts.Skip < 0 || opts.Limit < 0 {
		return types.NewCompileError("%s: negative skip or limit", kind.Name)
	}

	b.WriteString("WITH " + nodeAlias)
	if len(opts.OrderBy) > 0 {
		keys := make([]string, 0, len(opts.OrderBy))
		for _, order := range opts.OrderBy {
			name, desc := strings.TrimPrefix(order, "-"), strings.HasPrefix(order, "-")
			if _, ok := kind.Field(name); !ok {
				return types.NewCompileError("%s: cannot order by unknown field %s", kind.Name, name)
			}
			key := prop(nodeAlias, name)
			if desc {
				key += " DESC"
			}
			keys = append(keys, key)
		}
		b.WriteString(" ORDER BY " + strings.Join(keys, ", "))
	}
	if opts.Skip > 0 {
		params["skip"] = int64(opts.Skip)
		b.WriteString(" SKIP $skip")
	}
	if opts.Limit > 0 {
		params["limit"] = int64(opts.Limit)
		b.WriteString(" LIMIT $limit")
	}
	b.WriteString("\n")
	return nil
}

// scopeConditions returns the soft delete and TTL guards for a default view.
func scopeConditions(kind *model.EntityKind, alias string, opts Options, params map[string]any) []string {
	if opts.IncludeDeleted {
		return nil
	}
	var conds []string
	if kind.SoftDelete {
		conds = append(conds, fmt.Sprintf("coalesce(%s, false) = false", prop(alias, model.FieldIsDeleted)))
	}
	if kind.TTL != nil {
		now := "datetime()"
		if !opts.Now.IsZero() {
			params["now"] = opts.Now
			now = "$now"
		}
		ttl := prop(alias, model.FieldTTL)
		conds = append(conds, fmt.Sprintf("%s IS NULL OR %s > %s", ttl, ttl, now))
	}
	return conds
}

// joinConditions ANDs conditions, parenthesizing each when there is more
// than one.
func joinConditions(conds []string) string {
	switch len(conds) {
	case 0:
		return ""
	case 1:
		return conds[0]
	}
	wrapped := make([]string, len(conds))
	for i, c := range conds {
		wrapped[i] = "(" + c + ")"
	}
	return strings.Join(wrapped, " AND ")
}

// checkWritable rejects unknown fields and attempts to change uid.
func checkWritable(kind *model.EntityKind, data map[string]any) error {
	for _, name := range sortedKeys(data) {
		if name == model.FieldUID {
			return types.NewCompileError("%s: uid cannot be updated", kind.Name)
		}
		if _, ok := kind.Field(name); !ok {
			return types.NewCompileError("%s: unknown field %s", kind.Name, name)
		}
	}
	return nil
}

func prop(alias, field string) string {
	return alias + "." + model.Quote(field)
}

func paramName(i int) string {
	return fmt.Sprintf("p%d", i)
}
