package manager_test

import (
	"context"
	"fmt"

	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/manager"
	"github.com/gkeb/node4j/internal/model/modeltest"
	"github.com/gkeb/node4j/internal/session"
)

func ExampleObjects_MatchAll() {
	mock := session.NewMockDriver()
	mock.AddResult(
		session.Record{"node": map[string]any{"uid": "p1", "name": "Ada", "age": int64(36), "_element_id": "4:x:1"}},
		session.Record{"node": map[string]any{"uid": "p2", "name": "Grace", "age": int64(45), "_element_id": "4:x:2"}},
	)

	mgr, err := manager.New(modeltest.Registry(), session.NewCoordinator(mock))
	if err != nil {
		panic(err)
	}
	people := mgr.MustObjects("Person")

	found, err := people.MatchAll(context.Background(), filter.Field("age", filter.Gt, 30), manager.OrderBy("name"))
	if err != nil {
		panic(err)
	}
	for _, p := range found {
		name, _ := p.Get("name")
		fmt.Println(p.UID(), name)
	}
	fmt.Println(mock.Statements()[0])
	// Output:
	// p1 Ada
	// p2 Grace
	// MATCH (n:`Person`)
	// WHERE n.`age` > $p0
	// WITH n ORDER BY n.`name`
	// RETURN n {.*, _element_id: elementId(n)} AS node
}
