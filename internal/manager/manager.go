// Package manager is the entry point for applications: it ties the
// registry, compiler, coordinator, identity scopes and relationship
// descriptors together behind per-kind Objects views.
//
// Every Objects call compiles a statement, runs it in the transaction
// bound to the context (or a new one for writes), materializes rows
// through the identity scope of the call and invokes lifecycle hooks.
package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/relation"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

// Manager owns the shared collaborators. It is safe for concurrent use;
// each call gets its own identity scope unless the context carries one.
type Manager struct {
	registry  *model.Registry
	coord     *session.Coordinator
	compiler  *compiler.Compiler
	schema    model.Schema
	policy    relation.ConnectPolicy
	relations *relation.Service
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithCompiler replaces the default uncached compiler.
func WithCompiler(c *compiler.Compiler) Option {
	return func(m *Manager) {
		m.compiler = c
	}
}

// WithSchema replaces the default TagSchema. A nil schema disables value
// validation.
func WithSchema(s model.Schema) Option {
	return func(m *Manager) {
		m.schema = s
	}
}

// WithConnectPolicy sets what Connect does for an already connected pair.
func WithConnectPolicy(p relation.ConnectPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock makes reads filter expiry against now() instead of the server
// clock, and timestamps writes with it.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a Manager over a frozen registry.
func New(reg *model.Registry, coord *session.Coordinator, opts ...Option) (*Manager, error) {
	if reg == nil || !reg.Frozen() {
		return nil, types.NewError(types.ErrCodeRegistry, "manager requires a frozen registry")
	}
	if coord == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "manager requires a coordinator")
	}

	m := &Manager{
		registry: reg,
		coord:    coord,
		compiler: compiler.New(),
		schema:   model.NewTagSchema(),
		policy:   relation.ConnectAlways,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.policy.Valid() {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "unknown connect policy "+string(m.policy))
	}

	m.relations = relation.NewService(coord,
		relation.WithPolicy(m.policy),
		relation.WithSchema(m.schema),
		relation.WithLogger(m.logger),
	)
	return m, nil
}

// Registry returns the registry.
func (m *Manager) Registry() *model.Registry { return m.registry }

// Coordinator returns the coordinator.
func (m *Manager) Coordinator() *session.Coordinator { return m.coord }

// Objects returns the default view of the named kind. Soft deleted and
// expired nodes are excluded.
func (m *Manager) Objects(kind string) (*Objects, error) {
	k, err := m.registry.Kind(kind)
	if err != nil {
		return nil, err
	}
	return &Objects{m: m, kind: k}, nil
}

// MustObjects is Objects for kinds known to exist. It panics on error.
func (m *Manager) MustObjects(kind string) *Objects {
	o, err := m.Objects(kind)
	if err != nil {
		panic(err)
	}
	return o
}

// Atomic runs fn in one transaction shared by every call made with the
// context it receives. Instances materialized inside share one identity
// scope. When the outermost scope rolls back, instances and relationship
// slots changed inside it are restored.
func (m *Manager) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, _ = identity.Ensure(ctx)
	if tx := session.TxFromContext(ctx); tx != nil && !tx.Done() {
		return m.coord.Atomic(ctx, fn)
	}
	journal := identity.NewJournal()
	return m.coord.Atomic(identity.WithJournal(ctx, journal), func(ctx context.Context) error {
		m.coord.OnRollback(ctx, journal.Restore)
		return fn(ctx)
	})
}

// ApplySchema creates the indexes and constraints of every kind.
// Re-applying is a no-op.
func (m *Manager) ApplySchema(ctx context.Context) error {
	for _, kind := range m.registry.Kinds() {
		o := &Objects{m: m, kind: kind}
		if err := o.ApplySchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

// clock returns the write timestamp.
func (m *Manager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now().UTC()
}
