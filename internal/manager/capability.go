package manager

import (
	"context"
	"time"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// SoftDelete flags inst as deleted. Default views stop returning it; All
// still does.
func (o *Objects) SoftDelete(ctx context.Context, inst *identity.Instance) error {
	if !o.kind.SoftDelete {
		return types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+" does not support soft delete")
	}
	return o.patch(ctx, "soft_delete", inst, map[string]any{
		model.FieldIsDeleted: true,
		model.FieldDeletedAt: o.m.clock(),
	})
}

// Restore clears the soft delete flag of inst.
func (o *Objects) Restore(ctx context.Context, inst *identity.Instance) error {
	if !o.kind.SoftDelete {
		return types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+" does not support soft delete")
	}
	return o.patch(ctx, "restore", inst, map[string]any{
		model.FieldIsDeleted: false,
		model.FieldDeletedAt: nil,
	})
}

// SetExpiry makes inst expire lifespan from now.
func (o *Objects) SetExpiry(ctx context.Context, inst *identity.Instance, lifespan time.Duration) error {
	if o.kind.TTL == nil {
		return types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+" does not support expiry")
	}
	if lifespan <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "expiry lifespan must be positive")
	}
	return o.patch(ctx, "set_expiry", inst, map[string]any{
		model.FieldTTL: o.m.clock().Add(lifespan),
	})
}

// PurgeExpired deletes the nodes whose ttl has passed, with their edges.
// Nodes are removed in transactions of at most batch nodes until none
// remain. Delete hooks are not run. It returns the number of removed
// nodes, including those of batches committed before an error.
func (o *Objects) PurgeExpired(ctx context.Context, batch int) (int, error) {
	ctx, _ = o.enter(ctx, "purge_expired")
	stmt, err := compiler.CompilePurgeExpired(o.kind, o.m.clock(), batch)
	if err != nil {
		return 0, err
	}

	purged := 0
	for {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		var n int
		err := o.m.Atomic(ctx, func(ctx context.Context) error {
			res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
			if err != nil {
				return err
			}
			n = len(res.Records)
			return nil
		})
		if err != nil {
			return purged, err
		}
		purged += n
		if n < batch {
			break
		}
	}

	o.m.logger.InfoContext(ctx, "expired nodes purged", "kind", o.kind.Name, "count", purged)
	return purged, nil
}

// patch writes data onto inst's node regardless of the view's filters.
func (o *Objects) patch(ctx context.Context, op string, inst *identity.Instance, data map[string]any) error {
	if err := o.checkInstance(inst); err != nil {
		return err
	}
	ctx, scope := o.enter(ctx, op)
	if own := inst.Scope(); own != nil {
		scope = own
	}

	stmt, err := compiler.CompilePatch(o.kind, []string{inst.UID()}, data)
	if err != nil {
		return err
	}
	return o.m.Atomic(ctx, func(ctx context.Context) error {
		res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
		if err != nil {
			return err
		}
		insts, err := o.hydrate(ctx, scope, res, true)
		if err != nil {
			return err
		}
		if len(insts) == 0 {
			return types.NewNotFoundError(o.kind.Name).WithContext("uid", inst.UID())
		}
		return nil
	})
}
