package manager_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/manager"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/model/modeltest"
	"github.com/gkeb/node4j/internal/relation"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

func TestNew(t *testing.T) {
	coord := session.NewCoordinator(session.NewMockDriver())

	_, err := manager.New(model.NewRegistry(), coord)
	assert.True(t, types.HasCode(err, types.ErrCodeRegistry))

	_, err = manager.New(modeltest.Registry(), nil)
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))

	_, err = manager.New(modeltest.Registry(), coord, manager.WithConnectPolicy("sometimes"))
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))

	m, err := manager.New(modeltest.Registry(), coord)
	require.NoError(t, err)
	_, err = m.Objects("Unicorn")
	assert.True(t, types.IsCompileError(err))
	assert.Panics(t, func() { m.MustObjects("Unicorn") })
}

func TestBulkCreate_OneStatementTwoRows(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetResponder(echo(nil))

	people, err := f.objects(t, "Person").BulkCreate(context.Background(), []map[string]any{
		{"name": "Bob", "age": 42},
		{"name": "Charlie", "age": 35},
	})
	require.NoError(t, err)
	require.Len(t, people, 2)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 1, "bulk create is a single statement")
	assert.Len(t, runs[0].Params["rows"], 2)
	assert.Equal(t, 1, f.mock.Commits())

	assert.NotEqual(t, people[0].UID(), people[1].UID())
	for _, p := range people {
		_, err := uuid.Parse(p.UID())
		assert.NoError(t, err)
		active, _ := p.Get("active")
		assert.Equal(t, true, active, "declared default applied")
	}
	name, _ := people[1].Get("name")
	assert.Equal(t, "Charlie", name)
}

func TestBulkCreate_Empty(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.objects(t, "Person").BulkCreate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.mock.GetCalls())
}

func TestCreate_HookOrder(t *testing.T) {
	var ev events
	var commitsAtPostSave int
	var f *fixture
	f = newFixture(t, withHooks("Person", model.HookFuncs{
		OnPreSave: func(ctx context.Context, rec model.Record, creating bool) error {
			ev.add("pre_save")
			assert.True(t, creating)
			rec.Set("email", "ada@example.com")
			return nil
		},
		OnPostSave: func(ctx context.Context, rec model.Record, creating bool) error {
			ev.add("post_save")
			commitsAtPostSave = f.mock.Commits()
			return nil
		},
	}))
	f.mock.SetResponder(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		ev.add("run")
		return echo(nil)(ctx, text, params)
	})

	ada, err := f.objects(t, "Person").Create(context.Background(), map[string]any{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pre_save", "run", "post_save"}, ev.list())
	assert.Equal(t, 1, commitsAtPostSave, "post_save runs after commit")

	email, _ := ada.Get("email")
	assert.Equal(t, "ada@example.com", email)
	props := f.mock.GetCallsByMethod("Run")[0].Params["props"].(map[string]any)
	assert.Equal(t, "ada@example.com", props["email"])
}

func TestCreate_Rejections(t *testing.T) {
	t.Run("unknown field never reaches the driver", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.objects(t, "Person").Create(context.Background(), map[string]any{"name": "Ada", "height": 170})
		assert.True(t, types.IsCompileError(err))
		assert.Empty(t, f.mock.GetCalls())
	})

	t.Run("missing required field", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.objects(t, "Person").Create(context.Background(), map[string]any{"age": 30})
		assert.True(t, types.IsValidationError(err))
		assert.Empty(t, f.mock.Statements())
		assert.Equal(t, 1, f.mock.Rollbacks())
	})

	t.Run("invalid uid", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.objects(t, "Person").Create(context.Background(), map[string]any{"name": "Ada", "uid": "nope"})
		assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))
	})
}

func TestCreate_KeepsSuppliedUID(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetResponder(echo(nil))
	uid := uuid.NewString()

	ada, err := f.objects(t, "Person").Create(context.Background(), map[string]any{"name": "Ada", "uid": uid})
	require.NoError(t, err)
	assert.Equal(t, uid, ada.UID())
}

func TestAtomic_PreSaveFailureRollsBackEarlierWrites(t *testing.T) {
	boom := errors.New("rejected")
	f := newFixture(t, withHooks("Person", model.HookFuncs{
		OnPreSave: func(context.Context, model.Record, bool) error { return boom },
	}))
	f.mock.SetResponder(echo(nil))
	ctx := context.Background()

	err := f.mgr.Atomic(ctx, func(ctx context.Context) error {
		if _, err := f.objects(t, "Company").Create(ctx, map[string]any{"name": "Acme"}); err != nil {
			return err
		}
		_, err := f.objects(t, "Person").Create(ctx, map[string]any{"name": "Ada"})
		return err
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, types.HasCode(err, types.ErrCodeHook))
	assert.Len(t, f.mock.Statements(), 1, "company create was sent")
	assert.Empty(t, f.mock.Committed(), "and rolled back")
	assert.Equal(t, 1, f.mock.Rollbacks())
	assert.Equal(t, 0, f.mock.Commits())
}

func TestAtomic_ConnectThenFailLeavesNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResult(session.Record{"count": int64(1)})
	people := f.objects(t, "Person")

	scope := identity.NewScope()
	ada := scope.GetOrCreate(people.Kind(), uuid.NewString(), nil)
	company, err := f.mgr.Registry().Kind("Company")
	require.NoError(t, err)
	acme := scope.GetOrCreate(company, uuid.NewString(), nil)

	boom := errors.New("boom")
	err = f.mgr.Atomic(context.Background(), func(ctx context.Context) error {
		if err := people.Connect(ctx, ada, "works_at", acme, nil); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	require.Len(t, f.mock.Statements(), 1)
	assert.Contains(t, f.mock.Statements()[0], "CREATE (a)-[r:`WORKS_AT`]->(b)")
	assert.Empty(t, f.mock.Committed())
	assert.Equal(t, 1, f.mock.Rollbacks())
	assert.Equal(t, 1, len(f.mock.GetCallsByMethod("BeginTransaction")), "connect joined the outer transaction")
}

func TestAtomic_RollbackDiscardsRelationshipCache(t *testing.T) {
	f := newFixture(t, nil)
	people := f.objects(t, "Person")
	ctx := context.Background()

	scope := identity.NewScope()
	ada := scope.GetOrCreate(people.Kind(), "p1", nil)
	acme := scope.GetOrCreate(f.objects(t, "Company").Kind(), "c1", nil)

	f.mock.AddResult(session.Record{"count": int64(1)})
	f.mock.AddResult(session.Record{
		"rel":      map[string]any{},
		"node":     map[string]any{"uid": "c1", "name": "Acme", "_element_id": "4:test:c1"},
		"_edge_id": "5:test:1",
	})

	boom := errors.New("boom")
	err := f.mgr.Atomic(ctx, func(ctx context.Context) error {
		if err := people.Connect(ctx, ada, "works_at", acme, nil); err != nil {
			return err
		}
		related, err := people.Related(ctx, ada, "works_at")
		require.NoError(t, err)
		require.Len(t, related, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.mock.Rollbacks())

	_, cached := ada.Cached("works_at")
	assert.False(t, cached)
	_, ok := acme.Get("name")
	assert.False(t, ok, "fields read inside the rolled back scope are reverted")

	related, err := people.Related(ctx, ada, "works_at")
	require.NoError(t, err)
	assert.Empty(t, related)
	assert.Len(t, f.mock.Statements(), 3, "the slot is read again after rollback")
}

func TestAtomic_RollbackRevertsMergedFields(t *testing.T) {
	f := newFixture(t, nil)
	people := f.objects(t, "Person")
	ctx, scope := identity.Ensure(context.Background())
	ada := scope.GetOrCreate(people.Kind(), "p1", func() map[string]any {
		return map[string]any{"name": "Ada", "age": int64(36)}
	})

	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		return &session.Result{Records: nodeRecords(map[string]any{"uid": "p1", "name": "Ada", "age": int64(37)})}, nil
	}))

	var created *identity.Instance
	err := f.mgr.Atomic(ctx, func(ctx context.Context) error {
		n, err := people.Update(ctx, filter.Field("name", filter.Eq, "Ada"), map[string]any{"age": 37})
		require.NoError(t, err)
		require.Equal(t, 1, n)
		age, _ := ada.Get("age")
		require.Equal(t, int64(37), age)

		created, err = people.Create(ctx, map[string]any{"name": "Grace"})
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)

	age, _ := ada.Get("age")
	assert.Equal(t, int64(36), age)
	_, ok := scope.Lookup("Person", created.UID())
	assert.False(t, ok)
	_, ok = scope.Lookup("Person", "p1")
	assert.True(t, ok)
}

func prefetchRows() []session.Record {
	acme := map[string]any{"uid": "c1", "name": "Acme", "_element_id": "4:test:c1"}
	return []session.Record{
		{"node": map[string]any{
			"uid": "p1", "name": "Ada", "_element_id": "4:test:p1",
			"works_at": []any{map[string]any{"rel": map[string]any{"since": int64(2020)}, "node": acme, "_edge_id": "5:test:1"}},
		}},
		{"node": map[string]any{
			"uid": "p2", "name": "Grace", "_element_id": "4:test:p2",
			"works_at": []any{map[string]any{"rel": map[string]any{"since": int64(2021)}, "node": acme, "_edge_id": "5:test:2"}},
		}},
	}
}

func TestMatchAll_PrefetchSharesIdentityAndAvoidsQueries(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResult(prefetchRows()...)
	people := f.objects(t, "Person")
	ctx := context.Background()

	found, err := people.MatchAll(ctx, filter.Field("age", filter.Gt, 30), manager.Prefetch("works_at"))
	require.NoError(t, err)
	require.Len(t, found, 2)

	stmts := f.mock.Statements()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "`works_at`: [(n)-[r0:`WORKS_AT`]->(t0:`Company`)")

	first, err := people.Related(ctx, found[0], "works_at")
	require.NoError(t, err)
	second, err := people.Related(ctx, found[1], "works_at")
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Same(t, first[0].Target, second[0].Target)
	assert.Equal(t, int64(2021), second[0].Edge["since"])
	assert.Len(t, f.mock.Statements(), 1, "resolving prefetched slots issues no query")
	assert.Empty(t, f.mock.GetCallsByMethod("BeginTransaction"), "reads run in auto-commit sessions")
}

func TestMatchAll_Options(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.objects(t, "Person").MatchAll(context.Background(), nil,
		manager.Return("name"), manager.OrderBy("-age"), manager.Skip(5), manager.Limit(10))
	require.NoError(t, err)

	run := f.mock.GetCallsByMethod("Run")[0]
	assert.Contains(t, run.Statement, "WITH n ORDER BY n.`age` DESC SKIP $skip LIMIT $limit")
	assert.Contains(t, run.Statement, "RETURN n {.`uid`, .`name`, _element_id: elementId(n)} AS node")
	assert.Equal(t, int64(5), run.Params["skip"])
	assert.Equal(t, int64(10), run.Params["limit"])
}

func TestMatchAll_CompileErrorNeverReachesDriver(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.objects(t, "Person").MatchAll(context.Background(), filter.Field("age", filter.StartsWith, "4"))
	assert.True(t, types.IsCompileError(err))
	assert.Empty(t, f.mock.GetCalls())
}

func TestMatchOne(t *testing.T) {
	f := newFixture(t, nil)
	people := f.objects(t, "Person")
	ctx := context.Background()

	_, err := people.MatchOne(ctx, nil)
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))

	_, err = people.MatchOne(ctx, filter.Field("name", filter.Eq, "Nobody"))
	assert.True(t, types.IsNotFound(err))

	f.mock.AddResult(nodeRecords(map[string]any{"uid": "p1", "name": "Ada"})...)
	ada, err := people.MatchOne(ctx, filter.Field("name", filter.Eq, "Ada"))
	require.NoError(t, err)
	assert.Equal(t, "p1", ada.UID())

	last := f.mock.GetCallsByMethod("Run")[1]
	assert.Contains(t, last.Statement, "LIMIT $limit")
	assert.Equal(t, int64(1), last.Params["limit"])
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResult(nodeRecords(
		map[string]any{"uid": "p1", "name": "Ada", "age": int64(37)},
		map[string]any{"uid": "p2", "name": "Grace", "age": int64(37)},
	)...)
	people := f.objects(t, "Person")
	ctx := context.Background()

	n, err := people.Update(ctx, filter.Field("name", filter.In, []string{"Ada", "Grace"}), map[string]any{"age": 37})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Statement, "SET n += $data")
	assert.Equal(t, map[string]any{"age": 37}, runs[0].Params["data"])
	assert.Equal(t, 1, f.mock.Commits())

	_, err = people.Update(ctx, nil, map[string]any{"age": 1})
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))

	n, err = people.Update(ctx, filter.Field("name", filter.Eq, "Ada"), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = people.Update(ctx, filter.Field("name", filter.Eq, "Ada"), map[string]any{"age": -3})
	assert.True(t, types.IsValidationError(err))
}

func TestUpdate_WithHooksLoadsInstancesFirst(t *testing.T) {
	var seen []string
	f := newFixture(t, withHooks("Person", model.HookFuncs{
		OnPreSave: func(ctx context.Context, rec model.Record, creating bool) error {
			assert.False(t, creating)
			name, _ := rec.Get("name")
			seen = append(seen, name.(string))
			rec.Set("email", strings.ToLower(name.(string))+"@example.com")
			return nil
		},
	}))
	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		return &session.Result{Records: nodeRecords(map[string]any{"uid": "p1", "name": "Ada"})}, nil
	}))

	n, err := f.objects(t, "Person").Update(context.Background(), filter.Field("name", filter.Eq, "Ada"), map[string]any{"age": 36})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"Ada"}, seen)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 2)
	assert.True(t, strings.HasPrefix(runs[1].Statement, "UNWIND $rows AS row\nMATCH"))
	row := runs[1].Params["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, "p1", row["key"])
	props := row["props"].(map[string]any)
	assert.Equal(t, 36, props["age"])
	assert.Equal(t, "ada@example.com", props["email"])
	assert.Equal(t, 1, f.mock.Commits())
}

func TestSave(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetResponder(echo(nil))
	people := f.objects(t, "Person")
	ctx := context.Background()

	ada, err := people.Create(ctx, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	ada.Set("age", 36)
	require.NoError(t, people.Save(ctx, ada))

	last := f.mock.GetCallsByMethod("Run")[1]
	row := last.Params["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, ada.UID(), row["key"])
	assert.Equal(t, 36, row["props"].(map[string]any)["age"])

	companies := f.objects(t, "Company")
	assert.True(t, types.HasCode(companies.Save(ctx, ada), types.ErrCodeInvalidArgument))
}

func TestBulkUpdate(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetResponder(echo(nil))

	n, err := f.objects(t, "Person").BulkUpdate(context.Background(), "", []map[string]any{
		{"uid": "p1", "age": 40},
		{"uid": "p2", "age": 41},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 1)
	rows := runs[0].Params["rows"].([]any)
	assert.Equal(t, map[string]any{"key": "p2", "props": map[string]any{"age": 41}}, rows[1])

	_, err = f.objects(t, "Person").BulkUpdate(context.Background(), "email", []map[string]any{{"age": 1}})
	assert.True(t, types.IsCompileError(err))
}

func TestBulkUpdate_WithHooksSkipsUnmatchedRows(t *testing.T) {
	saves := 0
	f := newFixture(t, withHooks("Person", model.HookFuncs{
		OnPreSave: func(context.Context, model.Record, bool) error {
			saves++
			return nil
		},
	}))
	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		return &session.Result{Records: nodeRecords(map[string]any{"uid": "p1", "name": "Ada", "email": "ada@x.io"})}, nil
	}))

	n, err := f.objects(t, "Person").BulkUpdate(context.Background(), "email", []map[string]any{
		{"email": "ada@x.io", "age": 36},
		{"email": "ghost@x.io", "age": 99},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, saves)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 2)
	assert.Equal(t, []any{"ada@x.io", "ghost@x.io"}, runs[0].Params["p0"])
	rows := runs[1].Params["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "p1", row["key"])
	assert.NotContains(t, row["props"], "uid")
	assert.Equal(t, "ada@x.io", row["props"].(map[string]any)["email"])
}

func TestBulkUpdate_WithHooksWritesEachSharedKeyNodeByUID(t *testing.T) {
	f := newFixture(t, withHooks("Person", model.HookFuncs{
		OnPreSave: func(context.Context, model.Record, bool) error { return nil },
	}))
	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		return &session.Result{Records: nodeRecords(
			map[string]any{"uid": "p1", "name": "Bob", "email": "bob1@x.io"},
			map[string]any{"uid": "p2", "name": "Bob", "email": "bob2@x.io"},
		)}, nil
	}))

	n, err := f.objects(t, "Person").BulkUpdate(context.Background(), "name", []map[string]any{
		{"name": "Bob", "age": int64(50)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 2)
	assert.Contains(t, runs[1].Statement, "WHERE n.`uid` = row.key")
	assert.NotContains(t, runs[1].Statement, "n.`name` = row.key")

	rows := runs[1].Params["rows"].([]any)
	require.Len(t, rows, 2)
	emails := map[any]any{}
	for _, raw := range rows {
		row := raw.(map[string]any)
		props := row["props"].(map[string]any)
		assert.Equal(t, int64(50), props["age"])
		emails[row["key"]] = props["email"]
	}
	assert.Equal(t, map[any]any{"p1": "bob1@x.io", "p2": "bob2@x.io"}, emails)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResult(session.Record{"uid": "p1"}, session.Record{"uid": "p2"})
	people := f.objects(t, "Person")

	n, err := people.Delete(context.Background(), filter.Field("age", filter.Lt, 18))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, f.mock.Statements()[0], "DETACH DELETE n")

	_, err = people.Delete(context.Background(), nil)
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))
}

func TestDelete_WithHooks(t *testing.T) {
	var ev events
	f := newFixture(t, withHooks("Company", model.HookFuncs{
		OnPreDelete: func(ctx context.Context, rec model.Record) error {
			ev.add("pre_delete:" + rec.UID())
			return nil
		},
		OnPostDelete: func(ctx context.Context, rec model.Record) error {
			ev.add("post_delete:" + rec.UID())
			return errors.New("audit log unavailable")
		},
	}))
	f.mock.AddResult(nodeRecords(map[string]any{"uid": "c1", "name": "Acme"})...)
	f.mock.AddResult(session.Record{"uid": "c1"})

	n, err := f.objects(t, "Company").Delete(context.Background(), filter.Field("name", filter.Eq, "Acme"))
	assert.True(t, types.HasCode(err, types.ErrCodeHook), "post hook errors surface after commit")
	assert.Zero(t, n)
	assert.Equal(t, 1, f.mock.Commits())
	assert.Equal(t, []string{"pre_delete:c1", "post_delete:c1"}, ev.list())

	stmts := f.mock.Statements()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "WHERE n.`uid` IN $uids")
}

func TestCountAndAggregate(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.AddResult(session.Record{"count": int64(3)})
	f.mock.AddResult(session.Record{"value": 41.5})
	people := f.objects(t, "Person")
	ctx := context.Background()

	n, err := people.Count(ctx, filter.Field("active", filter.Eq, true))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	avg, err := people.Aggregate(ctx, nil, compiler.AggAvg, "age")
	require.NoError(t, err)
	assert.Equal(t, 41.5, avg)

	stmts := f.mock.Statements()
	assert.Contains(t, stmts[0], "RETURN count(n) AS count")
	assert.Contains(t, stmts[1], "RETURN avg(n.`age`) AS value")

	_, err = people.Aggregate(ctx, nil, compiler.AggSum, "name")
	assert.True(t, types.IsCompileError(err))
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetResponder(echo(nil))
	people := f.objects(t, "Person")

	ada, created, err := people.GetOrCreate(context.Background(),
		map[string]any{"name": "Ada", "age__gt": 10},
		map[string]any{"age": 36})
	require.NoError(t, err)
	assert.True(t, created)

	name, _ := ada.Get("name")
	age, _ := ada.Get("age")
	assert.Equal(t, "Ada", name)
	assert.Equal(t, 36, age)
	_, hasLookup := ada.Get("age__gt")
	assert.False(t, hasLookup)

	assert.Len(t, f.mock.GetCallsByMethod("BeginTransaction"), 1, "match and create share a transaction")
	assert.Equal(t, 1, f.mock.Commits())

	f.mock.SetResponder(nil)
	f.mock.AddResult(nodeRecords(map[string]any{"uid": "p9", "name": "Grace"})...)
	grace, created, err := people.GetOrCreate(context.Background(), map[string]any{"name": "Grace"}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "p9", grace.UID())

	_, _, err = people.GetOrCreate(context.Background(), nil, nil)
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))
}

func TestUpdateOrCreate(t *testing.T) {
	f := newFixture(t, nil)
	found := true
	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		switch {
		case strings.Contains(text, "SET n += $data"):
			return &session.Result{Records: nodeRecords(map[string]any{"uid": "p1", "name": "Ada", "age": int64(37)})}, nil
		case found:
			return &session.Result{Records: nodeRecords(map[string]any{"uid": "p1", "name": "Ada", "age": int64(36)})}, nil
		}
		return &session.Result{}, nil
	}))
	people := f.objects(t, "Person")

	ada, created, err := people.UpdateOrCreate(context.Background(), map[string]any{"name": "Ada"}, map[string]any{"age": 37})
	require.NoError(t, err)
	assert.False(t, created)
	age, _ := ada.Get("age")
	assert.Equal(t, int64(37), age, "update result merged into the matched instance")

	found = false
	bob, created, err := people.UpdateOrCreate(context.Background(), map[string]any{"name": "Bob"}, map[string]any{"age": 42})
	require.NoError(t, err)
	assert.True(t, created)
	name, _ := bob.Get("name")
	assert.Equal(t, "Bob", name)
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t, nil)
	posts := f.objects(t, "Post")
	ctx := context.Background()
	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		if data, ok := params["data"].(map[string]any); ok {
			node := map[string]any{"uid": params["uids"].([]any)[0], "title": "Hello"}
			for k, v := range data {
				node[k] = v
			}
			return &session.Result{Records: nodeRecords(node)}, nil
		}
		return &session.Result{}, nil
	}))

	post, err := posts.Create(ctx, map[string]any{"title": "Hello", "uid": "3f2b8a3e-8f5e-4a57-9a43-2d1c0b0e9c11"})
	require.NoError(t, err)
	deleted, _ := post.Get("is_deleted")
	assert.Equal(t, false, deleted)

	_, err = posts.MatchAll(ctx, nil)
	require.NoError(t, err)
	_, err = posts.All().MatchAll(ctx, nil)
	require.NoError(t, err)

	stmts := f.mock.Statements()
	assert.Contains(t, stmts[1], "coalesce(n.`is_deleted`, false) = false")
	assert.NotContains(t, stmts[2], "is_deleted")

	require.NoError(t, posts.SoftDelete(ctx, post))
	patch := f.mock.GetCallsByMethod("Run")[3]
	assert.Equal(t, map[string]any{"is_deleted": true, "deleted_at": fixedNow}, patch.Params["data"])

	require.NoError(t, posts.Restore(ctx, post))
	restore := f.mock.GetCallsByMethod("Run")[4]
	assert.Equal(t, map[string]any{"is_deleted": false, "deleted_at": nil}, restore.Params["data"])
	_, hasDeletedAt := post.Get("deleted_at")
	assert.False(t, hasDeletedAt, "restore clears deleted_at on the instance")

	people := f.objects(t, "Person")
	assert.True(t, types.HasCode(people.SoftDelete(ctx, post), types.ErrCodeInvalidArgument))
}

func TestExpiry(t *testing.T) {
	f := newFixture(t, nil)
	tokens := f.objects(t, "Token")
	ctx := context.Background()
	f.mock.SetResponder(echo(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		if data, ok := params["data"].(map[string]any); ok {
			uids := params["uids"].([]any)
			node := map[string]any{"uid": uids[0]}
			for k, v := range data {
				node[k] = v
			}
			return &session.Result{Records: nodeRecords(node)}, nil
		}
		return &session.Result{}, nil
	}))

	tok, err := tokens.Create(ctx, map[string]any{"value": "secret"})
	require.NoError(t, err)
	ttl, _ := tok.Get("ttl")
	assert.Equal(t, fixedNow.Add(modeltest.SessionTTL), ttl)

	require.NoError(t, tokens.SetExpiry(ctx, tok, 5*time.Minute))
	ttl, _ = tok.Get("ttl")
	assert.Equal(t, fixedNow.Add(5*time.Minute), ttl)

	_, err = tokens.MatchAll(ctx, nil)
	require.NoError(t, err)
	read := f.mock.GetCallsByMethod("Run")[2]
	assert.Contains(t, read.Statement, "n.`ttl` IS NULL OR n.`ttl` > $now")
	assert.Equal(t, fixedNow, read.Params["now"])

	assert.True(t, types.HasCode(tokens.SetExpiry(ctx, tok, 0), types.ErrCodeInvalidArgument))
	people := f.objects(t, "Person")
	assert.True(t, types.HasCode(people.SetExpiry(ctx, tok, time.Hour), types.ErrCodeInvalidArgument))
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t, nil)
	tokens := f.objects(t, "Token")
	ctx := context.Background()

	f.mock.AddResult(session.Record{"uid": "t1"}, session.Record{"uid": "t2"})
	f.mock.AddResult(session.Record{"uid": "t3"})

	n, err := tokens.PurgeExpired(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	runs := f.mock.GetCallsByMethod("Run")
	require.Len(t, runs, 2, "a short batch ends the purge")
	assert.Contains(t, runs[0].Statement, "n.`ttl` < $now")
	assert.Contains(t, runs[0].Statement, "DETACH DELETE n")
	assert.Equal(t, fixedNow, runs[0].Params["now"])
	assert.Equal(t, int64(2), runs[0].Params["batch"])
	assert.Equal(t, 2, f.mock.Commits(), "each batch commits on its own")

	_, err = f.objects(t, "Person").PurgeExpired(ctx, 10)
	assert.True(t, types.IsCompileError(err))
	_, err = tokens.PurgeExpired(ctx, 0)
	assert.True(t, types.IsCompileError(err))
	assert.Len(t, f.mock.GetCallsByMethod("Run"), 2)
}

func TestPurgeExpired_FailedBatchKeepsEarlierCount(t *testing.T) {
	f := newFixture(t, nil)
	calls := 0
	f.mock.SetResponder(func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("deadlock")
		}
		return &session.Result{Records: []session.Record{{"uid": "t1"}}}, nil
	})

	n, err := f.objects(t, "Token").PurgeExpired(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.mock.Commits())
	assert.Equal(t, 1, f.mock.Rollbacks())
}

func TestRelations(t *testing.T) {
	f := newFixture(t, nil, manager.WithConnectPolicy(relation.ConnectDedupe))
	people := f.objects(t, "Person")
	ctx := context.Background()

	scope := identity.NewScope()
	ada := scope.GetOrCreate(people.Kind(), "p1", nil)
	acme := scope.GetOrCreate(f.objects(t, "Company").Kind(), "c1", nil)

	f.mock.AddResult(session.Record{"count": int64(1)})
	f.mock.AddResult(session.Record{"count": int64(1)})
	f.mock.AddResult(session.Record{"count": int64(1)})

	require.NoError(t, people.Connect(ctx, ada, "works_at", acme, map[string]any{"since": int64(2019)}))
	n, err := people.UpdateEdge(ctx, ada, "works_at", acme, map[string]any{"role": "cto"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = people.Disconnect(ctx, ada, "works_at", acme)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stmts := f.mock.Statements()
	assert.Contains(t, stmts[0], "MERGE (a)-[r:`WORKS_AT`]->(b)")

	err = people.Connect(ctx, ada, "mentors", acme, nil)
	assert.True(t, types.IsCompileError(err))
}

func TestApplySchema(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.mgr.ApplySchema(context.Background()))
	require.NoError(t, f.mgr.ApplySchema(context.Background()))

	var want []string
	for _, kind := range f.mgr.Registry().Kinds() {
		for _, stmt := range compiler.CompileSchema(kind) {
			want = append(want, stmt.Text)
		}
	}
	stmts := f.mock.Statements()
	require.Len(t, stmts, 2*len(want))
	assert.Equal(t, want, stmts[:len(want)])
	assert.Equal(t, stmts[:len(want)], stmts[len(want):], "re-application sends the same idempotent statements")
	for _, s := range want {
		assert.Contains(t, s, "IF NOT EXISTS")
	}
}
