// Package identity materializes result rows into Instances and keeps at
// most one Instance per (kind, uid) within a Scope.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/sync/singleflight"

	"github.com/gkeb/node4j/internal/model"
)

// SlotState is the resolution state of a relationship slot.
type SlotState int

const (
	Unresolved SlotState = iota
	Resolving
	Resolved
)

func (s SlotState) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	default:
		return "unresolved"
	}
}

// Related is one resolved relationship entry: the target instance and the
// properties of the edge leading to it.
type Related struct {
	Target *Instance
	Edge   map[string]any
	EdgeID string
}

type slot struct {
	state SlotState
	items []Related
	// gen changes on every invalidation so a load started before it
	// cannot store stale results.
	gen uint64
}

// Instance is a materialized entity. Field access is safe for concurrent
// use.
type Instance struct {
	kind  *model.EntityKind
	uid   string
	scope *Scope

	mu        sync.RWMutex
	elementID string
	fields    map[string]any
	slots     map[string]*slot

	flight singleflight.Group
}

var _ model.Record = (*Instance)(nil)

func newInstance(scope *Scope, kind *model.EntityKind, uid string) *Instance {
	return &Instance{
		kind:   kind,
		uid:    uid,
		scope:  scope,
		fields: map[string]any{model.FieldUID: uid},
		slots:  make(map[string]*slot),
	}
}

// Kind returns the entity kind.
func (i *Instance) Kind() *model.EntityKind { return i.kind }

// UID returns the stable identifier.
func (i *Instance) UID() string { return i.uid }

// Scope returns the scope that materialized the instance. Related
// instances loaded through it join the same scope.
func (i *Instance) Scope() *Scope { return i.scope }

// ElementID returns the server element id of the node.
func (i *Instance) ElementID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.elementID
}

// Get returns a field value.
func (i *Instance) Get(field string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.fields[field]
	return v, ok
}

// Set assigns a field value locally. It is persisted by the next save.
// uid cannot be changed.
func (i *Instance) Set(field string, value any) {
	if field == model.FieldUID {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.fields[field] = value
}

// Fields returns a copy of the field values.
func (i *Instance) Fields() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]any, len(i.fields))
	for k, v := range i.fields {
		out[k] = v
	}
	return out
}

// Decode copies the fields into out, a pointer to a struct or map, using
// mapstructure tags.
func (i *Instance) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(i.Fields())
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s(%s)", i.kind.Name, i.uid)
}

// merge applies fetched values. Present keys win; with full set, declared
// fields absent from values are cleared.
func (i *Instance) merge(elementID string, values map[string]any, full bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if elementID != "" {
		i.elementID = elementID
	}
	if full {
		for _, f := range i.kind.Fields {
			if _, ok := values[f.Name]; !ok && f.Name != model.FieldUID {
				delete(i.fields, f.Name)
			}
		}
	}
	for k, v := range values {
		if k == model.FieldUID {
			continue
		}
		i.fields[k] = v
	}
}

// SlotState reports the state of the named relationship slot.
func (i *Instance) SlotState(name string) SlotState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if s, ok := i.slots[name]; ok {
		return s.state
	}
	return Unresolved
}

// Cached returns the resolved entries of a slot without any query.
func (i *Instance) Cached(name string) ([]Related, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.slots[name]
	if !ok || s.state != Resolved {
		return nil, false
	}
	return append([]Related(nil), s.items...), true
}

// Invalidate drops the cached entries of a slot.
func (i *Instance) Invalidate(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.slot(name)
	s.state = Unresolved
	s.items = nil
	s.gen++
}

func (i *Instance) populate(name string, items []Related) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.slot(name)
	s.state = Resolved
	s.items = sortRelated(items)
	s.gen++
}

// slot returns the named slot, creating it. Callers hold i.mu.
func (i *Instance) slot(name string) *slot {
	s, ok := i.slots[name]
	if !ok {
		s = &slot{}
		i.slots[name] = s
	}
	return s
}

// Loader fetches the entries of a relationship slot.
type Loader func(ctx context.Context) ([]Related, error)

// ResolveSlot returns the entries of the named slot. A resolved slot
// answers immediately. Otherwise the first caller runs load with its own
// context and concurrent callers wait for that single request. A slot
// filled under a journal is reverted when that journal is restored. A waiter
// whose context is done returns early; if the shared request failed only
// because its owner was cancelled, a waiter with a live context retries.
func (i *Instance) ResolveSlot(ctx context.Context, name string, load Loader) ([]Related, error) {
	for {
		if items, ok := i.Cached(name); ok {
			return items, nil
		}

		ch := i.flight.DoChan(name, func() (any, error) {
			if items, ok := i.Cached(name); ok {
				return items, nil
			}
			Track(ctx, i)

			i.mu.Lock()
			s := i.slot(name)
			s.state = Resolving
			gen := s.gen
			i.mu.Unlock()

			items, err := load(ctx)

			i.mu.Lock()
			defer i.mu.Unlock()
			if s.gen != gen {
				// Invalidated or repopulated while loading; hand the result
				// to the waiters without caching it.
				return sortRelated(items), err
			}
			if err != nil {
				s.state = Unresolved
				return nil, err
			}
			s.state = Resolved
			s.items = sortRelated(items)
			s.gen++
			return append([]Related(nil), s.items...), nil
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				if isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			items, _ := res.Val.([]Related)
			return append([]Related(nil), items...), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sortRelated orders entries by edge element id, matching the order of
// lazily resolved rows.
func sortRelated(items []Related) []Related {
	out := append([]Related(nil), items...)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].EdgeID < out[b].EdgeID
	})
	return out
}
