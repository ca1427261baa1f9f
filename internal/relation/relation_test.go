package relation_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/model/modeltest"
	"github.com/gkeb/node4j/internal/relation"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

type fixture struct {
	mock    *session.MockDriver
	coord   *session.Coordinator
	scope   *identity.Scope
	person  *model.EntityKind
	company *model.EntityKind
	ada     *identity.Instance
	acme    *identity.Instance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := modeltest.Registry()
	person, err := reg.Kind("Person")
	require.NoError(t, err)
	company, err := reg.Kind("Company")
	require.NoError(t, err)

	mock := session.NewMockDriver()
	scope := identity.NewScope()
	return &fixture{
		mock:    mock,
		coord:   session.NewCoordinator(mock),
		scope:   scope,
		person:  person,
		company: company,
		ada:     scope.GetOrCreate(person, "p1", nil),
		acme:    scope.GetOrCreate(company, "c1", nil),
	}
}

func (f *fixture) worksAt(t *testing.T, opts ...relation.Option) *relation.Descriptor {
	t.Helper()
	rel, ok := f.person.Relationship("works_at")
	require.True(t, ok)
	return relation.NewService(f.coord, opts...).Descriptor(rel)
}

func countResult(n int64) session.Record {
	return session.Record{"count": n}
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(countResult(1))

	f.scope.PopulateRelationship(f.ada, "works_at", nil)
	f.scope.PopulateRelationship(f.acme, "employees", nil)

	err := f.worksAt(t).Connect(context.Background(), f.ada, f.acme, map[string]any{"since": int64(2020)})
	require.NoError(t, err)

	stmts := f.mock.Statements()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE (a)-[r:`WORKS_AT`]->(b)")
	assert.Equal(t, 1, f.mock.Commits())

	run := f.mock.GetCallsByMethod("Run")[0]
	assert.True(t, run.InTx)
	assert.Equal(t, "p1", run.Params["source"])
	assert.Equal(t, "c1", run.Params["target"])
	assert.Equal(t, map[string]any{"since": int64(2020)}, run.Params["props"])

	assert.Equal(t, identity.Unresolved, f.ada.SlotState("works_at"))
	assert.Equal(t, identity.Unresolved, f.acme.SlotState("employees"))
}

func TestConnect_DedupePolicy(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(countResult(1))

	d := f.worksAt(t, relation.WithPolicy(relation.ConnectDedupe))
	require.NoError(t, d.Connect(context.Background(), f.ada, f.acme, nil))
	assert.Contains(t, f.mock.Statements()[0], "MERGE (a)-[r:`WORKS_AT`]->(b)")
}

func TestConnect_MissingEndpointRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(countResult(0))

	err := f.worksAt(t).Connect(context.Background(), f.ada, f.acme, nil)
	assert.True(t, types.IsNotFound(err))
	assert.Equal(t, 0, f.mock.Commits())
	assert.Equal(t, 1, f.mock.Rollbacks())
	assert.Empty(t, f.mock.Committed())
}

func TestConnect_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		source func(f *fixture) *identity.Instance
		target func(f *fixture) *identity.Instance
		props  map[string]any
		check  func(error) bool
	}{
		{
			name:   "unknown edge property",
			source: func(f *fixture) *identity.Instance { return f.ada },
			target: func(f *fixture) *identity.Instance { return f.acme },
			props:  map[string]any{"salary": 1},
			check:  types.IsCompileError,
		},
		{
			name:   "edge property type",
			source: func(f *fixture) *identity.Instance { return f.ada },
			target: func(f *fixture) *identity.Instance { return f.acme },
			props:  map[string]any{"since": "last year"},
			check:  types.IsValidationError,
		},
		{
			name:   "unsaved source",
			source: func(f *fixture) *identity.Instance { return nil },
			target: func(f *fixture) *identity.Instance { return f.acme },
			check:  func(err error) bool { return types.HasCode(err, types.ErrCodeInvalidArgument) },
		},
		{
			name:   "target of the wrong kind",
			source: func(f *fixture) *identity.Instance { return f.ada },
			target: func(f *fixture) *identity.Instance { return f.scope.GetOrCreate(f.person, "p2", nil) },
			check:  func(err error) bool { return types.HasCode(err, types.ErrCodeInvalidArgument) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.worksAt(t, relation.WithSchema(model.NewTagSchema()))

			err := d.Connect(context.Background(), tt.source(f), tt.target(f), tt.props)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Empty(t, f.mock.GetCalls(), "nothing may reach the driver")
		})
	}
}

func TestConnect_SubkindEndpoints(t *testing.T) {
	f := newFixture(t)
	reg := modeltest.Registry()
	employee, err := reg.Kind("Employee")
	require.NoError(t, err)
	company, err := reg.Kind("Company")
	require.NoError(t, err)

	rel, ok := employee.Relationship("works_at")
	require.True(t, ok)
	f.mock.AddResult(countResult(1))

	scope := identity.NewScope()
	d := relation.NewService(f.coord).Descriptor(rel)
	err = d.Connect(context.Background(), scope.GetOrCreate(employee, "e1", nil), scope.GetOrCreate(company, "c1", nil), nil)
	require.NoError(t, err)
	assert.Contains(t, f.mock.Statements()[0], "MATCH (a:`Employee`:`Person`), (b:`Company`)")
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(countResult(2))
	f.mock.AddResult(countResult(0))
	d := f.worksAt(t)

	n, err := d.Disconnect(context.Background(), f.ada, f.acme)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.Disconnect(context.Background(), f.ada, f.acme)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, 2, f.mock.Commits())
	assert.Contains(t, f.mock.Statements()[0], "DELETE r")
}

func TestUpdateEdge(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(countResult(1))

	n, err := f.worksAt(t).UpdateEdge(context.Background(), f.ada, f.acme, map[string]any{"role": "engineer"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.mock.Statements()[0], "SET r += $props")

	_, err = f.worksAt(t).UpdateEdge(context.Background(), f.ada, f.acme, nil)
	assert.True(t, types.IsCompileError(err))
}

func resolveRows() []session.Record {
	return []session.Record{
		{
			"rel":      map[string]any{"since": int64(2020)},
			"node":     map[string]any{"uid": "c1", "name": "Acme", "_element_id": "4:x:1"},
			"_edge_id": "5:x:1",
		},
		{
			"rel":      map[string]any{"since": int64(2022)},
			"node":     map[string]any{"uid": "c2", "name": "Initech", "_element_id": "4:x:2"},
			"_edge_id": "5:x:2",
		},
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(resolveRows()...)
	d := f.worksAt(t)

	items, err := d.Resolve(context.Background(), f.ada)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Same(t, f.acme, items[0].Target, "related instances join the source scope")
	assert.Equal(t, int64(2020), items[0].Edge["since"])
	name, _ := items[1].Target.Get("name")
	assert.Equal(t, "Initech", name)

	again, err := d.Resolve(context.Background(), f.ada)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Len(t, f.mock.Statements(), 1, "second resolve is served from the slot")
	assert.True(t, strings.HasPrefix(f.mock.Statements()[0], "MATCH (a:`Person`)-[r:`WORKS_AT`]->(t:`Company`)"))
}

func TestResolve_ConcurrentCallersIssueOneQuery(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var runs atomic.Int32
	f.mock.SetResponder(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &session.Result{Records: resolveRows()}, nil
	})
	d := f.worksAt(t)

	g, ctx := errgroup.WithContext(context.Background())
	for range 8 {
		g.Go(func() error {
			items, err := d.Resolve(ctx, f.ada)
			if err == nil && len(items) != 2 {
				t.Errorf("got %d items", len(items))
			}
			return err
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), runs.Load())
}

func TestResolve_JoinsAtomicScope(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResult(resolveRows()...)
	d := f.worksAt(t)

	err := f.coord.Atomic(context.Background(), func(ctx context.Context) error {
		_, err := d.Resolve(ctx, f.ada)
		return err
	})
	require.NoError(t, err)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 1)
	assert.True(t, runs[0].InTx)
}

func TestConnectPolicy_Valid(t *testing.T) {
	assert.True(t, relation.ConnectAlways.Valid())
	assert.True(t, relation.ConnectDedupe.Valid())
	assert.False(t, relation.ConnectPolicy("sometimes").Valid())
	assert.Equal(t, relation.ConnectAlways, relation.NewService(nil).Policy())
}
