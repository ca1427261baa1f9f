package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/types"
)

func (o *Objects) preSave(ctx context.Context, inst *identity.Instance, creating bool) error {
	if o.kind.Hooks == nil {
		return nil
	}
	if err := o.kind.Hooks.PreSave(ctx, inst, creating); err != nil {
		return o.hookError("pre_save", inst, err)
	}
	return nil
}

func (o *Objects) preDelete(ctx context.Context, inst *identity.Instance) error {
	if o.kind.Hooks == nil {
		return nil
	}
	if err := o.kind.Hooks.PreDelete(ctx, inst); err != nil {
		return o.hookError("pre_delete", inst, err)
	}
	return nil
}

// postSave queues PostSave for every instance until the outermost
// transaction commits.
func (o *Objects) postSave(ctx context.Context, insts []*identity.Instance, creating bool) error {
	hooks := o.kind.Hooks
	if hooks == nil || len(insts) == 0 {
		return nil
	}
	return o.m.coord.OnCommit(ctx, func(ctx context.Context) error {
		var errs []error
		for _, inst := range insts {
			if err := hooks.PostSave(ctx, inst, creating); err != nil {
				errs = append(errs, o.hookError("post_save", inst, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (o *Objects) postDelete(ctx context.Context, insts []*identity.Instance) error {
	hooks := o.kind.Hooks
	if hooks == nil || len(insts) == 0 {
		return nil
	}
	return o.m.coord.OnCommit(ctx, func(ctx context.Context) error {
		var errs []error
		for _, inst := range insts {
			if err := hooks.PostDelete(ctx, inst); err != nil {
				errs = append(errs, o.hookError("post_delete", inst, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (o *Objects) hookError(phase string, inst *identity.Instance, err error) error {
	return types.WrapError(types.ErrCodeHook, fmt.Sprintf("%s hook failed for %s", phase, inst), err).
		WithContext("kind", o.kind.Name).
		WithContext("uid", inst.UID())
}
