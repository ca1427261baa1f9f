package manager

import (
	"context"

	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/relation"
	"github.com/gkeb/node4j/internal/types"
)

// Relation returns the descriptor of the named relationship.
func (o *Objects) Relation(name string) (*relation.Descriptor, error) {
	rel, ok := o.kind.Relationship(name)
	if !ok {
		return nil, types.NewCompileError("%s: unknown relationship %s", o.kind.Name, name)
	}
	return o.m.relations.Descriptor(rel), nil
}

// Connect creates an edge of the named relationship from source to
// target.
func (o *Objects) Connect(ctx context.Context, source *identity.Instance, name string, target *identity.Instance, props map[string]any) error {
	d, err := o.Relation(name)
	if err != nil {
		return err
	}
	ctx, _ = o.enter(ctx, "connect")
	return d.Connect(ctx, source, target, props)
}

// Disconnect removes the edges of the named relationship between source
// and target and returns how many were removed.
func (o *Objects) Disconnect(ctx context.Context, source *identity.Instance, name string, target *identity.Instance) (int, error) {
	d, err := o.Relation(name)
	if err != nil {
		return 0, err
	}
	ctx, _ = o.enter(ctx, "disconnect")
	return d.Disconnect(ctx, source, target)
}

// UpdateEdge merges props into the edges of the named relationship
// between source and target.
func (o *Objects) UpdateEdge(ctx context.Context, source *identity.Instance, name string, target *identity.Instance, props map[string]any) (int, error) {
	d, err := o.Relation(name)
	if err != nil {
		return 0, err
	}
	ctx, _ = o.enter(ctx, "update_edge")
	return d.UpdateEdge(ctx, source, target, props)
}

// Related resolves the named relationship of source. Prefetched slots
// answer without a query.
func (o *Objects) Related(ctx context.Context, source *identity.Instance, name string) ([]identity.Related, error) {
	d, err := o.Relation(name)
	if err != nil {
		return nil, err
	}
	ctx, _ = o.enter(ctx, "related")
	return d.Resolve(ctx, source)
}
