package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gkeb/node4j/internal/types"
)

// Coordinator begins, runs and completes units of work on a Driver.
type Coordinator struct {
	driver   Driver
	database string
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDatabase selects the target database. Empty uses the server default.
func WithDatabase(name string) Option {
	return func(c *Coordinator) {
		c.database = name
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator over driver.
func NewCoordinator(driver Driver, opts ...Option) *Coordinator {
	c := &Coordinator{
		driver: driver,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin opens a session and an explicit transaction on it. The caller
// must Commit or Rollback the returned Tx; bind it with WithTx so Run and
// nested Atomic scopes join it.
func (c *Coordinator) Begin(ctx context.Context) (*Tx, error) {
	sess, err := c.driver.NewSession(ctx, Config{Database: c.database, AccessMode: AccessModeWrite})
	if err != nil {
		return nil, classifyTx(err, "failed to open session")
	}
	tx, err := sess.BeginTransaction(ctx)
	if err != nil {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			c.logger.WarnContext(ctx, "session close failed", "error", cerr)
		}
		return nil, classifyTx(err, "failed to begin transaction")
	}

	c.logger.DebugContext(ctx, "transaction started", "database", c.database)
	return &Tx{session: sess, tx: tx, logger: c.logger, started: time.Now()}, nil
}

// Run executes a statement in the transaction bound to ctx, or in an
// auto-commit session when there is none.
func (c *Coordinator) Run(ctx context.Context, text string, params map[string]any) (*Result, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Run(ctx, text, params)
	}

	sess, err := c.driver.NewSession(ctx, Config{Database: c.database, AccessMode: AccessModeWrite})
	if err != nil {
		return nil, classifyTx(err, "failed to open session")
	}
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			c.logger.WarnContext(ctx, "session close failed", "error", cerr)
		}
	}()

	start := time.Now()
	res, err := sess.Run(ctx, text, params)
	if err != nil {
		return nil, classify(err, text)
	}
	logStatement(ctx, c.logger, text, start, res)
	return res, nil
}

// Commit commits the transaction bound to ctx.
func (c *Coordinator) Commit(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return types.NewError(types.ErrCodeTransaction, "no transaction in context")
	}
	return tx.Commit(ctx)
}

// Rollback rolls back the transaction bound to ctx.
func (c *Coordinator) Rollback(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return types.NewError(types.ErrCodeTransaction, "no transaction in context")
	}
	return tx.Rollback(ctx)
}

// Atomic runs fn in a unit of work. When ctx already carries an open
// transaction fn joins it: a failure marks the transaction rollback-only
// and is returned to the caller, and only the outermost scope commits or
// rolls back. Otherwise Atomic begins a transaction, commits it when fn
// returns nil and rolls it back when fn fails, panics, or ctx is
// cancelled.
func (c *Coordinator) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer := TxFromContext(ctx); outer != nil && !outer.Done() {
		return c.nested(ctx, outer, fn)
	}

	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := WithTx(ctx, tx)

	defer func() {
		if r := recover(); r != nil {
			c.rollback(ctx, tx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		c.rollback(ctx, tx)
		return err
	}
	if err := ctx.Err(); err != nil {
		c.rollback(ctx, tx)
		return types.WrapError(types.ErrCodeTransaction, "context done before commit", err)
	}
	if cause := tx.rollbackCause(); cause != nil {
		c.rollback(ctx, tx)
		return fmt.Errorf("%w: %w", ErrRollbackOnly, cause)
	}
	return tx.Commit(ctx)
}

func (c *Coordinator) nested(ctx context.Context, outer *Tx, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			outer.markRollbackOnly(fmt.Errorf("panic in nested scope: %v", r))
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		outer.markRollbackOnly(err)
		return err
	}
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, tx *Tx) {
	if err := tx.Rollback(ctx); err != nil {
		c.logger.ErrorContext(ctx, "rollback failed", "error", err)
	}
}

// OnCommit queues fn to run after the transaction bound to ctx commits.
// Without a transaction fn runs immediately.
func (c *Coordinator) OnCommit(ctx context.Context, fn func(context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil && !tx.Done() {
		tx.OnCommit(fn)
		return nil
	}
	return fn(ctx)
}

// OnRollback queues fn to run if the transaction bound to ctx rolls back.
// Without an open transaction there is nothing to undo and fn is dropped.
func (c *Coordinator) OnRollback(ctx context.Context, fn func(context.Context)) {
	if tx := TxFromContext(ctx); tx != nil && !tx.Done() {
		tx.OnRollback(fn)
	}
}
