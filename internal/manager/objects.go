package manager

import (
	"context"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/contextkeys"
	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

// Objects is the query surface of one entity kind.
type Objects struct {
	m              *Manager
	kind           *model.EntityKind
	includeDeleted bool
}

// Kind returns the entity kind.
func (o *Objects) Kind() *model.EntityKind { return o.kind }

// All returns a view that also sees soft deleted and expired nodes.
func (o *Objects) All() *Objects {
	cp := *o
	cp.includeDeleted = true
	return &cp
}

// QueryOption adjusts projection, prefetching and paging of a read.
type QueryOption func(*compiler.Options)

// Return limits the fields loaded into instances.
func Return(fields ...string) QueryOption {
	return func(o *compiler.Options) {
		o.Return = append(o.Return, fields...)
	}
}

// Prefetch loads relationships in the same round trip. Dotted paths load
// nested relationships.
func Prefetch(paths ...string) QueryOption {
	return func(o *compiler.Options) {
		o.Prefetch = append(o.Prefetch, paths...)
	}
}

// OrderBy sorts by fields; a leading "-" sorts descending.
func OrderBy(fields ...string) QueryOption {
	return func(o *compiler.Options) {
		o.OrderBy = append(o.OrderBy, fields...)
	}
}

// Skip skips the first n matches.
func Skip(n int) QueryOption {
	return func(o *compiler.Options) {
		o.Skip = n
	}
}

// Limit returns at most n matches.
func Limit(n int) QueryOption {
	return func(o *compiler.Options) {
		o.Limit = n
	}
}

func (o *Objects) options(opts []QueryOption) compiler.Options {
	var out compiler.Options
	for _, opt := range opts {
		opt(&out)
	}
	out.IncludeDeleted = o.includeDeleted
	if o.m.now != nil {
		out.Now = o.m.now()
	}
	return out
}

// enter tags ctx with the operation and attaches an identity scope.
func (o *Objects) enter(ctx context.Context, op string) (context.Context, *identity.Scope) {
	return identity.Ensure(contextkeys.WithOperation(ctx, op))
}

// MatchAll returns the instances matching pred. A nil pred matches every
// node of the kind.
func (o *Objects) MatchAll(ctx context.Context, pred filter.Predicate, opts ...QueryOption) ([]*identity.Instance, error) {
	ctx, scope := o.enter(ctx, "match_all")
	return o.match(ctx, scope, pred, opts)
}

func (o *Objects) match(ctx context.Context, scope *identity.Scope, pred filter.Predicate, opts []QueryOption) ([]*identity.Instance, error) {
	qo := o.options(opts)

	stmt, err := o.m.compiler.Compile(o.kind, pred, qo)
	if err != nil {
		return nil, err
	}
	res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return nil, err
	}
	return o.hydrate(ctx, scope, res, len(qo.Return) == 0)
}

// MatchOne returns the first instance matching pred, or NOT_FOUND.
func (o *Objects) MatchOne(ctx context.Context, pred filter.Predicate, opts ...QueryOption) (*identity.Instance, error) {
	if pred == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+": match_one requires a filter")
	}
	opts = append(opts[:len(opts):len(opts)], Limit(1))
	ctx, scope := o.enter(ctx, "match_one")
	found, err := o.match(ctx, scope, pred, opts)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, types.NewNotFoundError(o.kind.Name)
	}
	return found[0], nil
}

// Count returns the number of nodes matching pred.
func (o *Objects) Count(ctx context.Context, pred filter.Predicate) (int64, error) {
	ctx, _ = o.enter(ctx, "count")
	stmt, err := o.m.compiler.CompileCount(o.kind, pred, o.options(nil))
	if err != nil {
		return 0, err
	}
	res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return 0, err
	}
	n, _ := res.Single()[compiler.ColumnCount].(int64)
	return n, nil
}

// Aggregate applies fn to field over the nodes matching pred. The result
// is nil when nothing matched, except for count.
func (o *Objects) Aggregate(ctx context.Context, pred filter.Predicate, fn compiler.AggregateFunc, field string) (any, error) {
	ctx, _ = o.enter(ctx, "aggregate")
	stmt, err := o.m.compiler.CompileAggregate(o.kind, pred, fn, field, o.options(nil))
	if err != nil {
		return nil, err
	}
	res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return nil, err
	}
	return res.Single()[compiler.ColumnValue], nil
}

// ApplySchema creates the kind's constraints and indexes. Re-applying is
// a no-op.
func (o *Objects) ApplySchema(ctx context.Context) error {
	ctx, _ = o.enter(ctx, "apply_schema")
	stmts := compiler.CompileSchema(o.kind)
	for _, stmt := range stmts {
		if _, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params); err != nil {
			return err
		}
	}
	o.m.logger.InfoContext(ctx, "schema applied", "kind", o.kind.Name, "statements", len(stmts))
	return nil
}

// hydrate materializes the node column of every row.
func (o *Objects) hydrate(ctx context.Context, scope *identity.Scope, res *session.Result, full bool) ([]*identity.Instance, error) {
	out := make([]*identity.Instance, 0, len(res.Records))
	for _, rec := range res.Records {
		node, ok := rec[compiler.ColumnNode].(map[string]any)
		if !ok {
			return nil, types.NewError(types.ErrCodeStatement, "result row has no node column").
				WithContext("kind", o.kind.Name)
		}
		inst, err := scope.Hydrate(ctx, o.kind, node, full)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
