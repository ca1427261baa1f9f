package model

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/gkeb/node4j/internal/types"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a label, field name or
// relation type.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// Registry holds the entity kinds declared at startup. Kinds are mutable
// until Freeze; afterwards the registry is read-only and safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	kinds  map[string]*EntityKind
	order  []string
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*EntityKind)}
}

// Register adds a kind declaration. The registry keeps its own copy.
func (r *Registry) Register(kind EntityKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return types.NewError(types.ErrCodeRegistry, "registry is frozen")
	}
	if !ValidIdentifier(kind.Name) {
		return types.NewError(types.ErrCodeRegistry, fmt.Sprintf("invalid kind name %q", kind.Name))
	}
	if _, exists := r.kinds[kind.Name]; exists {
		return types.NewError(types.ErrCodeRegistry, fmt.Sprintf("kind %s already registered", kind.Name))
	}

	k := kind
	k.Labels = append([]string(nil), kind.Labels...)
	k.Fields = append([]Field(nil), kind.Fields...)
	k.Indexes = append([]Index(nil), kind.Indexes...)
	k.Constraints = append([]Constraint(nil), kind.Constraints...)
	k.Relationships = append([]Relationship(nil), kind.Relationships...)

	r.kinds[k.Name] = &k
	r.order = append(r.order, k.Name)
	return nil
}

// MustRegister is like Register but panics on error. Intended for package
// level model declarations.
func (r *Registry) MustRegister(kind EntityKind) {
	if err := r.Register(kind); err != nil {
		panic(err)
	}
}

// Freeze resolves inheritance, adds implicit fields, binds relationship
// targets and validates every declaration. It is idempotent.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}

	done := make(map[string]bool)
	for _, name := range r.order {
		if err := r.inherit(name, done, map[string]bool{}); err != nil {
			return err
		}
	}
	for _, name := range r.order {
		if err := r.finish(r.kinds[name]); err != nil {
			return err
		}
	}

	r.frozen = true
	return nil
}

// inherit merges parent declarations into the child, parents first.
func (r *Registry) inherit(name string, done, visiting map[string]bool) error {
	if done[name] {
		return nil
	}
	if visiting[name] {
		return types.NewError(types.ErrCodeRegistry, fmt.Sprintf("inheritance cycle through %s", name))
	}
	visiting[name] = true

	k := r.kinds[name]
	if k.Extends != "" {
		parent, ok := r.kinds[k.Extends]
		if !ok {
			return types.NewError(types.ErrCodeRegistry, fmt.Sprintf("%s extends unknown kind %s", name, k.Extends))
		}
		if err := r.inherit(parent.Name, done, visiting); err != nil {
			return err
		}

		labels := append([]string{}, parent.AllLabels()...)
		k.Labels = appendMissing(labels, k.Labels)
		k.Fields = mergeFields(parent.Fields, k.Fields)
		k.Indexes = append(append([]Index(nil), parent.Indexes...), k.Indexes...)
		k.Constraints = append(append([]Constraint(nil), parent.Constraints...), k.Constraints...)
		k.Relationships = mergeRelationships(parent.Relationships, k.Relationships)
		if k.Hooks == nil {
			k.Hooks = parent.Hooks
		}
		if k.TTL == nil {
			k.TTL = parent.TTL
		}
		k.SoftDelete = k.SoftDelete || parent.SoftDelete
	}

	done[name] = true
	return nil
}

func (r *Registry) finish(k *EntityKind) error {
	fail := func(format string, args ...any) error {
		return types.NewError(types.ErrCodeRegistry, k.Name+": "+fmt.Sprintf(format, args...))
	}

	for _, l := range k.Labels {
		if !ValidIdentifier(l) {
			return fail("invalid label %q", l)
		}
	}

	fields := []Field{{Name: FieldUID, Type: TypeString}}
	for _, f := range k.Fields {
		if f.Name == FieldUID {
			continue
		}
		fields = append(fields, f)
	}
	if k.SoftDelete {
		fields = addImplicit(fields, Field{Name: FieldIsDeleted, Type: TypeBool}, Field{Name: FieldDeletedAt, Type: TypeDateTime})
	}
	if k.TTL != nil {
		if *k.TTL <= 0 {
			return fail("ttl must be positive")
		}
		fields = addImplicit(fields, Field{Name: FieldTTL, Type: TypeDateTime})
	}
	k.Fields = fields

	k.fieldIndex = make(map[string]int, len(k.Fields))
	for i, f := range k.Fields {
		if err := checkField(f); err != nil {
			return fail("%v", err)
		}
		if _, dup := k.fieldIndex[f.Name]; dup {
			return fail("duplicate field %s", f.Name)
		}
		k.fieldIndex[f.Name] = i
	}

	for _, idx := range k.Indexes {
		if err := k.checkFieldTuple("index", idx.Fields); err != nil {
			return fail("%v", err)
		}
	}
	for _, c := range k.Constraints {
		if err := k.checkFieldTuple("constraint", c.Fields); err != nil {
			return fail("%v", err)
		}
	}

	k.relIndex = make(map[string]int, len(k.Relationships))
	for i := range k.Relationships {
		rel := &k.Relationships[i]
		if !ValidIdentifier(rel.Name) {
			return fail("invalid relationship name %q", rel.Name)
		}
		if _, clash := k.fieldIndex[rel.Name]; clash {
			return fail("relationship %s shadows a field", rel.Name)
		}
		if _, dup := k.relIndex[rel.Name]; dup {
			return fail("duplicate relationship %s", rel.Name)
		}
		if !ValidIdentifier(rel.Edge.Type) {
			return fail("relationship %s: invalid edge type %q", rel.Name, rel.Edge.Type)
		}
		if rel.Edge.Direction == "" {
			rel.Edge.Direction = Out
		}
		if !rel.Edge.Direction.Valid() {
			return fail("relationship %s: invalid direction %q", rel.Name, rel.Edge.Direction)
		}
		rel.Edge.Properties = append([]Field(nil), rel.Edge.Properties...)
		for _, p := range rel.Edge.Properties {
			if err := checkField(p); err != nil {
				return fail("relationship %s: %v", rel.Name, err)
			}
		}
		target, ok := r.kinds[rel.Target]
		if !ok {
			return fail("relationship %s targets unknown kind %s", rel.Name, rel.Target)
		}
		rel.owner = k
		rel.target = target
		k.relIndex[rel.Name] = i
	}

	return nil
}

func (k *EntityKind) checkFieldTuple(what string, fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%s without fields", what)
	}
	for _, name := range fields {
		if _, ok := k.fieldIndex[name]; !ok {
			return fmt.Errorf("%s references unknown field %s", what, name)
		}
	}
	return nil
}

func checkField(f Field) error {
	if !ValidIdentifier(f.Name) {
		return fmt.Errorf("invalid field name %q", f.Name)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
	}
	if f.Default != nil && !f.Type.Accepts(f.Default) {
		return fmt.Errorf("field %s: default %v is not a %s", f.Name, f.Default, f.Type)
	}
	return nil
}

// Kind returns the frozen kind with the given name.
func (r *Registry) Kind(name string) (*EntityKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return nil, types.NewError(types.ErrCodeRegistry, "registry is not frozen")
	}
	k, ok := r.kinds[name]
	if !ok {
		return nil, types.NewCompileError("unknown entity kind %s", name)
	}
	return k, nil
}

// Kinds returns all kinds in registration order.
func (r *Registry) Kinds() []*EntityKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EntityKind, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.kinds[name])
	}
	return out
}

// Frozen reports whether Freeze has completed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

func appendMissing(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}

// mergeFields keeps parent order; child declarations override by name.
func mergeFields(parent, child []Field) []Field {
	out := append([]Field(nil), parent...)
	pos := make(map[string]int, len(out))
	for i, f := range out {
		pos[f.Name] = i
	}
	for _, f := range child {
		if i, ok := pos[f.Name]; ok {
			out[i] = f
			continue
		}
		pos[f.Name] = len(out)
		out = append(out, f)
	}
	return out
}

func mergeRelationships(parent, child []Relationship) []Relationship {
	out := append([]Relationship(nil), parent...)
	pos := make(map[string]int, len(out))
	for i, rel := range out {
		pos[rel.Name] = i
	}
	for _, rel := range child {
		if i, ok := pos[rel.Name]; ok {
			out[i] = rel
			continue
		}
		pos[rel.Name] = len(out)
		out = append(out, rel)
	}
	return out
}

func addImplicit(fields []Field, extra ...Field) []Field {
	for _, e := range extra {
		found := false
		for _, f := range fields {
			if f.Name == e.Name {
				found = true
				break
			}
		}
		if !found {
			fields = append(fields, e)
		}
	}
	return fields
}
