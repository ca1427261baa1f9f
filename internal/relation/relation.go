package relation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

// ConnectPolicy decides what Connect does when the pair is already
// connected.
type ConnectPolicy string

const (
	// ConnectAlways creates a new edge on every call.
	ConnectAlways ConnectPolicy = "always"
	// ConnectDedupe reuses an existing edge and merges its properties.
	ConnectDedupe ConnectPolicy = "dedupe"
)

// Valid reports whether p is a known policy.
func (p ConnectPolicy) Valid() bool {
	return p == ConnectAlways || p == ConnectDedupe
}

// Executor runs statements and atomic scopes. session.Coordinator
// implements it.
type Executor interface {
	Run(ctx context.Context, text string, params map[string]any) (*session.Result, error)
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service builds descriptors sharing one executor and policy.
type Service struct {
	exec   Executor
	schema model.Schema
	policy ConnectPolicy
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the connect policy. The default is ConnectAlways.
func WithPolicy(p ConnectPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithSchema validates edge properties before they are written.
func WithSchema(schema model.Schema) Option {
	return func(s *Service) {
		s.schema = schema
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service.
func NewService(exec Executor, opts ...Option) *Service {
	s := &Service{
		exec:   exec,
		policy: ConnectAlways,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured connect policy.
func (s *Service) Policy() ConnectPolicy { return s.policy }

// Descriptor returns the descriptor for rel.
func (s *Service) Descriptor(rel *model.Relationship) *Descriptor {
	return &Descriptor{rel: rel, svc: s}
}

// Descriptor operates on one declared relationship. Its edge type and
// direction are fixed by the declaration.
type Descriptor struct {
	rel *model.Relationship
	svc *Service
}

// Relationship returns the declaration.
func (d *Descriptor) Relationship() *model.Relationship { return d.rel }

// Connect creates an edge from source to target carrying props. Under
// ConnectDedupe an existing edge is reused. It fails with NOT_FOUND when
// either node does not exist.
func (d *Descriptor) Connect(ctx context.Context, source, target *identity.Instance, props map[string]any) error {
	if err := d.checkEndpoints(source, target); err != nil {
		return err
	}
	stmt, err := compiler.CompileConnect(d.rel, source.UID(), target.UID(), props, d.svc.policy == ConnectDedupe)
	if err != nil {
		return err
	}
	if err := d.validate(ctx, props); err != nil {
		return err
	}

	err = d.svc.exec.Atomic(ctx, func(ctx context.Context) error {
		n, err := d.count(ctx, stmt)
		if err != nil {
			return err
		}
		if n == 0 {
			return d.missing(source, target)
		}
		return nil
	})
	d.invalidate(source, target)
	if err != nil {
		return err
	}

	d.svc.logger.DebugContext(ctx, "relationship connected",
		"relationship", d.name(), "source", source.UID(), "target", target.UID())
	return nil
}

// Disconnect deletes every edge of this relationship between source and
// target and returns how many were removed. Zero is not an error.
func (d *Descriptor) Disconnect(ctx context.Context, source, target *identity.Instance) (int, error) {
	if err := d.checkEndpoints(source, target); err != nil {
		return 0, err
	}
	stmt := compiler.CompileDisconnect(d.rel, source.UID(), target.UID())

	var removed int
	err := d.svc.exec.Atomic(ctx, func(ctx context.Context) error {
		n, err := d.count(ctx, stmt)
		removed = n
		return err
	})
	d.invalidate(source, target)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// UpdateEdge merges props into every edge of this relationship between
// source and target and returns how many were updated.
func (d *Descriptor) UpdateEdge(ctx context.Context, source, target *identity.Instance, props map[string]any) (int, error) {
	if err := d.checkEndpoints(source, target); err != nil {
		return 0, err
	}
	stmt, err := compiler.CompileUpdateEdge(d.rel, source.UID(), target.UID(), props)
	if err != nil {
		return 0, err
	}
	if err := d.validate(ctx, props); err != nil {
		return 0, err
	}

	var updated int
	err = d.svc.exec.Atomic(ctx, func(ctx context.Context) error {
		n, err := d.count(ctx, stmt)
		updated = n
		return err
	})
	d.invalidate(source, target)
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Resolve returns the instances related to source, ordered by edge. A
// resolved slot answers without a query; otherwise one query is issued
// and shared by concurrent callers. Related instances join source's
// scope.
func (d *Descriptor) Resolve(ctx context.Context, source *identity.Instance) ([]identity.Related, error) {
	if err := d.checkSource(source); err != nil {
		return nil, err
	}
	return source.ResolveSlot(ctx, d.rel.Name, func(ctx context.Context) ([]identity.Related, error) {
		return d.load(ctx, source)
	})
}

func (d *Descriptor) load(ctx context.Context, source *identity.Instance) ([]identity.Related, error) {
	stmt, err := compiler.CompileResolve(d.rel, source.UID(), compiler.Options{})
	if err != nil {
		return nil, err
	}
	res, err := d.svc.exec.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return nil, err
	}

	scope := source.Scope()
	if scope == nil {
		scope = identity.NewScope()
	}
	items := make([]identity.Related, 0, len(res.Records))
	for _, rec := range res.Records {
		item, err := scope.HydrateEntry(ctx, d.rel.TargetKind(), rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (d *Descriptor) count(ctx context.Context, stmt compiler.Statement) (int, error) {
	res, err := d.svc.exec.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return 0, err
	}
	rec := res.Single()
	if rec == nil {
		return 0, nil
	}
	n, _ := rec[compiler.ColumnCount].(int64)
	return int(n), nil
}

func (d *Descriptor) validate(ctx context.Context, props map[string]any) error {
	if d.svc.schema == nil || len(d.rel.Edge.Properties) == 0 || len(props) == 0 {
		return nil
	}
	return d.svc.schema.Validate(ctx, d.name(), d.rel.Edge.Properties, props, true)
}

// invalidate drops the source slot and every slot on target that follows
// the same edge type.
func (d *Descriptor) invalidate(source, target *identity.Instance) {
	source.Invalidate(d.rel.Name)
	if target == nil {
		return
	}
	for _, r := range target.Kind().Relationships {
		if r.Edge.Type == d.rel.Edge.Type {
			target.Invalidate(r.Name)
		}
	}
}

func (d *Descriptor) checkEndpoints(source, target *identity.Instance) error {
	if err := d.checkSource(source); err != nil {
		return err
	}
	if target == nil || target.UID() == "" {
		return types.NewError(types.ErrCodeInvalidArgument, d.name()+": target is not saved")
	}
	if !slices.Contains(target.Kind().AllLabels(), d.rel.TargetKind().Name) {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("%s: target must be a %s, got %s", d.name(), d.rel.TargetKind().Name, target.Kind().Name))
	}
	return nil
}

func (d *Descriptor) checkSource(source *identity.Instance) error {
	if source == nil || source.UID() == "" {
		return types.NewError(types.ErrCodeInvalidArgument, d.name()+": source is not saved")
	}
	if !slices.Contains(source.Kind().AllLabels(), d.rel.Owner().Name) {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("%s: source must be a %s, got %s", d.name(), d.rel.Owner().Name, source.Kind().Name))
	}
	return nil
}

func (d *Descriptor) missing(source, target *identity.Instance) error {
	return types.NewError(types.ErrCodeNotFound, d.name()+": source or target node does not exist").
		WithContext("source", source.UID()).
		WithContext("target", target.UID())
}

func (d *Descriptor) name() string {
	return d.rel.Owner().Name + "." + d.rel.Name
}
