package identity

import (
	"context"
	"sync"

	"github.com/gkeb/node4j/internal/contextkeys"
)

// Journal remembers the state instances had before a unit of work changed
// them. Restore puts every tracked instance back and forgets the
// instances the unit of work materialized.
type Journal struct {
	mu      sync.Mutex
	seen    map[*Instance]bool
	before  []snapshot
	created []*Instance
}

type snapshot struct {
	inst      *Instance
	elementID string
	fields    map[string]any
	slots     map[string]slot
}

// NewJournal creates an empty Journal.
func NewJournal() *Journal {
	return &Journal{seen: make(map[*Instance]bool)}
}

// WithJournal attaches j to ctx.
func WithJournal(ctx context.Context, j *Journal) context.Context {
	return context.WithValue(ctx, contextkeys.IdentityJournal, j)
}

// JournalFromContext returns the journal attached to ctx, or nil.
func JournalFromContext(ctx context.Context) *Journal {
	j, _ := ctx.Value(contextkeys.IdentityJournal).(*Journal)
	return j
}

// Track records the current state of inst in the journal attached to
// ctx. Only the first call per instance is kept. Without a journal it
// does nothing.
func Track(ctx context.Context, inst *Instance) {
	if j := JournalFromContext(ctx); j != nil {
		j.track(inst)
	}
}

func (j *Journal) track(inst *Instance) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seen[inst] {
		return
	}
	j.seen[inst] = true
	j.before = append(j.before, inst.snapshot())
}

func (j *Journal) trackCreated(inst *Instance) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seen[inst] {
		return
	}
	j.seen[inst] = true
	j.created = append(j.created, inst)
}

// Len returns the number of tracked instances.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.seen)
}

// Restore reverts tracked instances and removes materialized ones from
// their scopes. The journal is empty afterwards.
func (j *Journal) Restore(context.Context) {
	j.mu.Lock()
	before, created := j.before, j.created
	j.before, j.created = nil, nil
	j.seen = make(map[*Instance]bool)
	j.mu.Unlock()

	for i := len(before) - 1; i >= 0; i-- {
		before[i].inst.restore(before[i])
	}
	for _, inst := range created {
		inst.resetSlots()
		if inst.scope != nil {
			inst.scope.forget(inst)
		}
	}
}

func (i *Instance) snapshot() snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	snap := snapshot{
		inst:      i,
		elementID: i.elementID,
		fields:    make(map[string]any, len(i.fields)),
		slots:     make(map[string]slot, len(i.slots)),
	}
	for k, v := range i.fields {
		snap.fields[k] = v
	}
	for name, s := range i.slots {
		if s.state == Resolved {
			snap.slots[name] = slot{state: Resolved, items: append([]Related(nil), s.items...)}
		}
	}
	return snap
}

// restore bumps every slot generation so loads in flight do not cache
// results read inside the discarded unit of work.
func (i *Instance) restore(snap snapshot) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.elementID = snap.elementID
	i.fields = snap.fields
	for name, s := range i.slots {
		prev, ok := snap.slots[name]
		s.gen++
		if ok {
			s.state, s.items = Resolved, prev.items
		} else {
			s.state, s.items = Unresolved, nil
		}
	}
	for name, prev := range snap.slots {
		if _, ok := i.slots[name]; !ok {
			i.slots[name] = &slot{state: Resolved, items: prev.items}
		}
	}
}

func (i *Instance) resetSlots() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range i.slots {
		s.state, s.items = Unresolved, nil
		s.gen++
	}
}
