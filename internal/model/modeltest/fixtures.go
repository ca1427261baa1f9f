// Package modeltest provides a small frozen model used across package tests.
package modeltest

import (
	"time"

	"github.com/gkeb/node4j/internal/model"
)

// SessionTTL is the expiry declared on the Token kind.
const SessionTTL = time.Hour

// Kinds returns fresh declarations:
//
//	(Person)-[:WORKS_AT {since, role}]->(Company)
//	(Person)-[:FRIENDS_WITH]-(Person)
//	(Company)<-[:WORKS_AT]-(Person) as Company.employees
//	Employee extends Person
//	Post (soft delete), Token (ttl)
func Kinds() []model.EntityKind {
	ttl := SessionTTL
	return []model.EntityKind{
		{
			Name: "Person",
			Fields: []model.Field{
				{Name: "name", Type: model.TypeString, Required: true, Validate: "min=1"},
				{Name: "age", Type: model.TypeInt, Validate: "gte=0,lte=150"},
				{Name: "email", Type: model.TypeString},
				{Name: "tags", Type: model.TypeStringList},
				{Name: "active", Type: model.TypeBool, Default: true},
			},
			Indexes:     []model.Index{{Fields: []string{"name"}}},
			Constraints: []model.Constraint{{Fields: []string{"email"}}},
			Relationships: []model.Relationship{
				{
					Name:   "works_at",
					Target: "Company",
					Edge: model.EdgeKind{
						Type:      "WORKS_AT",
						Direction: model.Out,
						Properties: []model.Field{
							{Name: "since", Type: model.TypeInt},
							{Name: "role", Type: model.TypeString},
						},
					},
				},
				{
					Name:   "friends",
					Target: "Person",
					Edge:   model.EdgeKind{Type: "FRIENDS_WITH", Direction: model.Both},
				},
			},
		},
		{
			Name: "Company",
			Fields: []model.Field{
				{Name: "name", Type: model.TypeString, Required: true},
				{Name: "founded", Type: model.TypeInt},
			},
			Constraints: []model.Constraint{{Fields: []string{"name"}}},
			Relationships: []model.Relationship{
				{
					Name:   "employees",
					Target: "Person",
					Edge:   model.EdgeKind{Type: "WORKS_AT", Direction: model.In},
				},
			},
		},
		{
			Name:    "Employee",
			Extends: "Person",
			Fields: []model.Field{
				{Name: "badge", Type: model.TypeString},
			},
		},
		{
			Name:       "Post",
			SoftDelete: true,
			Fields: []model.Field{
				{Name: "title", Type: model.TypeString, Required: true},
			},
		},
		{
			Name: "Token",
			TTL:  &ttl,
			Fields: []model.Field{
				{Name: "value", Type: model.TypeString},
			},
		},
	}
}

// Registry returns a frozen registry holding Kinds. It panics on error.
func Registry() *model.Registry {
	reg := model.NewRegistry()
	for _, k := range Kinds() {
		reg.MustRegister(k)
	}
	if err := reg.Freeze(); err != nil {
		panic(err)
	}
	return reg
}

// Kind returns a kind from a fresh registry.
func Kind(name string) *model.EntityKind {
	k, err := Registry().Kind(name)
	if err != nil {
		panic(err)
	}
	return k
}
