package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkeb/node4j/internal/identity"
)

func TestJournal_RestoreRevertsInstancesAndSlots(t *testing.T) {
	person, _ := kinds(t)
	scope := identity.NewScope()
	ada, err := scope.Hydrate(context.Background(), person, map[string]any{"uid": "p1", "name": "Ada"}, true)
	require.NoError(t, err)

	journal := identity.NewJournal()
	ctx := identity.WithJournal(context.Background(), journal)
	assert.Same(t, journal, identity.JournalFromContext(ctx))

	_, err = scope.Hydrate(ctx, person, map[string]any{
		"uid": "p1", "name": "Ada Lovelace",
		"works_at": []any{
			map[string]any{"rel": map[string]any{}, "node": map[string]any{"uid": "c1", "name": "Acme"}, "_edge_id": "5:x:1"},
		},
	}, true)
	require.NoError(t, err)
	_, err = ada.ResolveSlot(ctx, "friends", func(context.Context) ([]identity.Related, error) {
		return nil, nil
	})
	require.NoError(t, err)

	name, _ := ada.Get("name")
	assert.Equal(t, "Ada Lovelace", name)
	assert.Equal(t, identity.Resolved, ada.SlotState("works_at"))
	assert.Equal(t, identity.Resolved, ada.SlotState("friends"))
	_, ok := scope.Lookup("Company", "c1")
	require.True(t, ok)
	assert.Equal(t, 2, journal.Len())

	journal.Restore(ctx)

	name, _ = ada.Get("name")
	assert.Equal(t, "Ada", name)
	assert.Equal(t, identity.Unresolved, ada.SlotState("works_at"))
	assert.Equal(t, identity.Unresolved, ada.SlotState("friends"))
	_, ok = scope.Lookup("Company", "c1")
	assert.False(t, ok, "instances first seen in the unit of work are forgotten")
	_, ok = scope.Lookup("Person", "p1")
	assert.True(t, ok)
	assert.Zero(t, journal.Len())
}

func TestJournal_RestoreKeepsSlotsResolvedBefore(t *testing.T) {
	person, company := kinds(t)
	scope := identity.NewScope()
	ada := scope.GetOrCreate(person, "p1", nil)
	acme := scope.GetOrCreate(company, "c1", nil)
	scope.PopulateRelationship(ada, "works_at", []identity.Related{{Target: acme, Edge: map[string]any{}, EdgeID: "5:x:1"}})

	journal := identity.NewJournal()
	ctx := identity.WithJournal(context.Background(), journal)
	identity.Track(ctx, ada)
	ada.Invalidate("works_at")
	ada.Set("name", "changed")

	journal.Restore(ctx)

	items, ok := ada.Cached("works_at")
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Same(t, acme, items[0].Target)
	_, ok = ada.Get("name")
	assert.False(t, ok)
}

func TestJournal_TrackWithoutJournal(t *testing.T) {
	person, _ := kinds(t)
	scope := identity.NewScope()
	ada := scope.GetOrCreate(person, "p1", nil)

	identity.Track(context.Background(), ada)
	assert.Nil(t, identity.JournalFromContext(context.Background()))

	_, err := scope.Hydrate(context.Background(), person, map[string]any{"uid": "p2", "name": "Grace"}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, scope.Len())
}
