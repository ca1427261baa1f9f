package manager_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gkeb/node4j/internal/manager"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/model/modeltest"
	"github.com/gkeb/node4j/internal/session"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mock *session.MockDriver
	mgr  *manager.Manager
}

// newFixture builds a manager over the test model. mutate may attach hooks
// before the registry is frozen.
func newFixture(t *testing.T, mutate func(kinds []model.EntityKind), opts ...manager.Option) *fixture {
	t.Helper()

	kinds := modeltest.Kinds()
	if mutate != nil {
		mutate(kinds)
	}
	reg := model.NewRegistry()
	for _, k := range kinds {
		require.NoError(t, reg.Register(k))
	}
	require.NoError(t, reg.Freeze())

	mock := session.NewMockDriver()
	opts = append([]manager.Option{manager.WithClock(func() time.Time { return fixedNow })}, opts...)
	mgr, err := manager.New(reg, session.NewCoordinator(mock), opts...)
	require.NoError(t, err)
	return &fixture{mock: mock, mgr: mgr}
}

func (f *fixture) objects(t *testing.T, kind string) *manager.Objects {
	t.Helper()
	o, err := f.mgr.Objects(kind)
	require.NoError(t, err)
	return o
}

func withHooks(kind string, hooks model.Hooks) func([]model.EntityKind) {
	return func(kinds []model.EntityKind) {
		for i := range kinds {
			if kinds[i].Name == kind {
				kinds[i].Hooks = hooks
			}
		}
	}
}

func nodeMap(props map[string]any) map[string]any {
	node := make(map[string]any, len(props)+1)
	for k, v := range props {
		if v != nil {
			node[k] = v
		}
	}
	if uid, ok := node["uid"].(string); ok {
		node["_element_id"] = "4:test:" + uid
	}
	return node
}

func nodeRecords(nodes ...map[string]any) []session.Record {
	out := make([]session.Record, len(nodes))
	for i, n := range nodes {
		out[i] = session.Record{"node": nodeMap(n)}
	}
	return out
}

// echo answers writes with the nodes they describe and every other
// statement through fallback, which may be nil.
func echo(fallback session.Responder) session.Responder {
	return func(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
		switch {
		case strings.HasPrefix(text, "CREATE"):
			return &session.Result{Records: nodeRecords(params["props"].(map[string]any))}, nil
		case strings.HasPrefix(text, "UNWIND $rows AS row\nCREATE"):
			var nodes []map[string]any
			for _, row := range params["rows"].([]any) {
				nodes = append(nodes, row.(map[string]any))
			}
			return &session.Result{Records: nodeRecords(nodes...)}, nil
		case strings.HasPrefix(text, "UNWIND $rows AS row\nMATCH"):
			var nodes []map[string]any
			for _, raw := range params["rows"].([]any) {
				row := raw.(map[string]any)
				node := map[string]any{}
				for k, v := range row["props"].(map[string]any) {
					node[k] = v
				}
				if _, ok := node["uid"]; !ok {
					node["uid"] = row["key"]
				}
				nodes = append(nodes, node)
			}
			return &session.Result{Records: nodeRecords(nodes...)}, nil
		}
		if fallback != nil {
			return fallback(ctx, text, params)
		}
		return &session.Result{}, nil
	}
}

// events records hook and statement order across goroutines.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}
