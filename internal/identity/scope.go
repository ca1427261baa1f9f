package identity

import (
	"context"
	"sync"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/contextkeys"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

type instanceKey struct {
	kind string
	uid  string
}

// Scope guarantees a single Instance per (kind, uid). It lives for one
// top-level manager call, or for an atomic scope when attached to its
// context.
type Scope struct {
	mu        sync.Mutex
	instances map[instanceKey]*Instance
}

// NewScope creates an empty Scope.
func NewScope() *Scope {
	return &Scope{instances: make(map[instanceKey]*Instance)}
}

// Len returns the number of tracked instances.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Lookup returns the tracked instance for (kind, uid).
func (s *Scope) Lookup(kind, uid string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceKey{kind, uid}]
	return inst, ok
}

// GetOrCreate returns the tracked instance for (kind.Name, uid). When
// absent a new instance is created and seeded with the fields returned by
// build, which may be nil.
func (s *Scope) GetOrCreate(kind *model.EntityKind, uid string, build func() map[string]any) *Instance {
	inst, _ := s.getOrCreate(kind, uid, build)
	return inst
}

func (s *Scope) getOrCreate(kind *model.EntityKind, uid string, build func() map[string]any) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := instanceKey{kind.Name, uid}
	if inst, ok := s.instances[k]; ok {
		return inst, false
	}
	inst := newInstance(s, kind, uid)
	if build != nil {
		inst.merge("", build(), false)
	}
	s.instances[k] = inst
	return inst, true
}

// forget drops inst if it is still the tracked instance for its key.
func (s *Scope) forget(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := instanceKey{inst.kind.Name, inst.uid}
	if s.instances[k] == inst {
		delete(s.instances, k)
	}
}

// Merge folds fetched values into the tracked instance. Later values win
// per field; resolved relationship slots are kept. With full set the values
// are a complete projection and declared fields missing from it are
// cleared. Changes are recorded in the journal attached to ctx.
func (s *Scope) Merge(ctx context.Context, kind *model.EntityKind, uid, elementID string, values map[string]any, full bool) *Instance {
	inst, created := s.getOrCreate(kind, uid, nil)
	if j := JournalFromContext(ctx); j != nil {
		if created {
			j.trackCreated(inst)
		} else {
			j.track(inst)
		}
	}
	inst.merge(elementID, values, full)
	return inst
}

// PopulateRelationship marks a slot resolved with the given entries.
func (s *Scope) PopulateRelationship(inst *Instance, name string, items []Related) {
	inst.populate(name, items)
}

// Hydrate materializes a node map produced by the compiler: fields, the
// element id and any prefetched relationship lists. Prefetched slots
// replace the previous entries; other slots are kept.
func (s *Scope) Hydrate(ctx context.Context, kind *model.EntityKind, node map[string]any, full bool) (*Instance, error) {
	uid, ok := node[model.FieldUID].(string)
	if !ok || uid == "" {
		return nil, types.NewError(types.ErrCodeStatement, "result node has no uid").
			WithContext("kind", kind.Name)
	}
	elementID, _ := node[compiler.KeyElementID].(string)

	values := make(map[string]any, len(node))
	prefetched := make(map[string][]any)
	for k, v := range node {
		if k == compiler.KeyElementID {
			continue
		}
		if _, isRel := kind.Relationship(k); isRel {
			if list, ok := v.([]any); ok {
				prefetched[k] = list
				continue
			}
		}
		values[k] = v
	}

	inst := s.Merge(ctx, kind, uid, elementID, values, full)

	for name, list := range prefetched {
		rel, _ := kind.Relationship(name)
		items := make([]Related, 0, len(list))
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				return nil, types.NewError(types.ErrCodeStatement, "malformed prefetch entry").
					WithContext("relationship", name)
			}
			item, err := s.HydrateEntry(ctx, rel.TargetKind(), entry)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		s.PopulateRelationship(inst, name, items)
	}
	return inst, nil
}

// HydrateEntry materializes one {rel, node, _edge_id} entry, the shape of
// both prefetch lists and resolve rows.
func (s *Scope) HydrateEntry(ctx context.Context, target *model.EntityKind, entry map[string]any) (Related, error) {
	node, ok := entry[compiler.ColumnNode].(map[string]any)
	if !ok {
		return Related{}, types.NewError(types.ErrCodeStatement, "relationship entry has no node").
			WithContext("kind", target.Name)
	}
	inst, err := s.Hydrate(ctx, target, node, true)
	if err != nil {
		return Related{}, err
	}
	edge, _ := entry[compiler.ColumnRel].(map[string]any)
	if edge == nil {
		edge = map[string]any{}
	}
	edgeID, _ := entry[compiler.ColumnEdgeID].(string)
	return Related{Target: inst, Edge: edge, EdgeID: edgeID}, nil
}

// WithScope attaches a scope to ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, contextkeys.IdentityScope, s)
}

// FromContext returns the scope attached to ctx, or nil.
func FromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(contextkeys.IdentityScope).(*Scope)
	return s
}

// Ensure returns ctx with a scope attached, reusing an existing one.
func Ensure(ctx context.Context) (context.Context, *Scope) {
	if s := FromContext(ctx); s != nil {
		return ctx, s
	}
	s := NewScope()
	return WithScope(ctx, s), s
}
