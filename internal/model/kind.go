package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the orientation of an edge relative to the declaring kind.
type Direction string

const (
	Out  Direction = "OUT"
	In   Direction = "IN"
	Both Direction = "BOTH"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Out || d == In || d == Both
}

// EdgeKind is a named relation type with a direction and an optional
// property schema.
type EdgeKind struct {
	Type       string
	Direction  Direction
	Properties []Field
}

// Property returns the declared edge property with the given name.
func (e EdgeKind) Property(name string) (Field, bool) {
	for _, f := range e.Properties {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Relationship binds an attribute name on a kind to an edge kind and a
// target kind. It is fixed once the registry is frozen.
type Relationship struct {
	Name   string
	Edge   EdgeKind
	Target string

	owner  *EntityKind
	target *EntityKind
}

// Owner returns the declaring kind. Nil before Freeze.
func (r *Relationship) Owner() *EntityKind { return r.owner }

// TargetKind returns the resolved target kind. Nil before Freeze.
func (r *Relationship) TargetKind() *EntityKind { return r.target }

// Index declares a (possibly composite) index over fields.
type Index struct {
	Fields []string
}

// Constraint declares a uniqueness constraint over a field tuple.
type Constraint struct {
	Fields []string
}

// EntityKind is a declared node type.
type EntityKind struct {
	// Name is the primary label.
	Name string
	// Labels are extra labels written on every node of this kind.
	Labels []string
	// Extends names a parent kind whose labels, fields, indexes,
	// constraints and relationships are inherited.
	Extends       string
	Fields        []Field
	Indexes       []Index
	Constraints   []Constraint
	Relationships []Relationship
	// Hooks is optional.
	Hooks Hooks
	// TTL enables expiry. Nodes with a ttl timestamp in the past are
	// excluded from reads.
	TTL *time.Duration
	// SoftDelete makes the default views ignore nodes flagged is_deleted.
	SoftDelete bool

	fieldIndex map[string]int
	relIndex   map[string]int
}

// AllLabels returns the primary label followed by the extra labels.
func (k *EntityKind) AllLabels() []string {
	return append([]string{k.Name}, k.Labels...)
}

// LabelExpr renders the label list as a pattern suffix, e.g. ":`Person`:`Human`".
func (k *EntityKind) LabelExpr() string {
	var b strings.Builder
	for _, l := range k.AllLabels() {
		b.WriteString(":")
		b.WriteString(Quote(l))
	}
	return b.String()
}

// Field looks up a field by name, including implicit fields.
func (k *EntityKind) Field(name string) (Field, bool) {
	i, ok := k.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return k.Fields[i], true
}

// Relationship looks up a relationship by attribute name.
func (k *EntityKind) Relationship(name string) (*Relationship, bool) {
	i, ok := k.relIndex[name]
	if !ok {
		return nil, false
	}
	return &k.Relationships[i], true
}

// FieldNames returns field names in declaration order.
func (k *EntityKind) FieldNames() []string {
	names := make([]string, len(k.Fields))
	for i, f := range k.Fields {
		names[i] = f.Name
	}
	return names
}

// ApplyDefaults fills missing fields that declare a default.
func (k *EntityKind) ApplyDefaults(values map[string]any) {
	for _, f := range k.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := values[f.Name]; !ok {
			values[f.Name] = f.Default
		}
	}
}

func (k *EntityKind) String() string {
	return fmt.Sprintf("EntityKind(%s)", k.Name)
}

// Quote renders an identifier in backticks.
func Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
