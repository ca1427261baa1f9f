package model

import "context"

// Record is the view of a materialized instance handed to hooks.
type Record interface {
	Kind() *EntityKind
	UID() string
	Get(field string) (any, bool)
	Set(field string, value any)
}

// Hooks is the lifecycle contract a kind may opt into. PreSave runs before
// the write statement is sent and may mutate the record. PostSave and
// PostDelete run after the outermost transaction commits. An error from
// PreSave or PreDelete aborts the surrounding atomic scope.
type Hooks interface {
	PreSave(ctx context.Context, rec Record, creating bool) error
	PostSave(ctx context.Context, rec Record, creating bool) error
	PreDelete(ctx context.Context, rec Record) error
	PostDelete(ctx context.Context, rec Record) error
}

// HookFuncs adapts optional functions to Hooks. Nil functions are no-ops.
type HookFuncs struct {
	OnPreSave    func(ctx context.Context, rec Record, creating bool) error
	OnPostSave   func(ctx context.Context, rec Record, creating bool) error
	OnPreDelete  func(ctx context.Context, rec Record) error
	OnPostDelete func(ctx context.Context, rec Record) error
}

var _ Hooks = HookFuncs{}

// PreSave implements Hooks.
func (h HookFuncs) PreSave(ctx context.Context, rec Record, creating bool) error {
	if h.OnPreSave == nil {
		return nil
	}
	return h.OnPreSave(ctx, rec, creating)
}

// PostSave implements Hooks.
func (h HookFuncs) PostSave(ctx context.Context, rec Record, creating bool) error {
	if h.OnPostSave == nil {
		return nil
	}
	return h.OnPostSave(ctx, rec, creating)
}

// PreDelete implements Hooks.
func (h HookFuncs) PreDelete(ctx context.Context, rec Record) error {
	if h.OnPreDelete == nil {
		return nil
	}
	return h.OnPreDelete(ctx, rec)
}

// PostDelete implements Hooks.
func (h HookFuncs) PostDelete(ctx context.Context, rec Record) error {
	if h.OnPostDelete == nil {
		return nil
	}
	return h.OnPostDelete(ctx, rec)
}
