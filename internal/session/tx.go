package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gkeb/node4j/internal/contextkeys"
	"github.com/gkeb/node4j/internal/types"
)

// ErrTxClosed is returned when a Tx is used after commit or rollback.
var ErrTxClosed = types.NewError(types.ErrCodeTransaction, "transaction is closed")

// ErrRollbackOnly is returned by the outermost scope when a nested scope
// failed and its error was not propagated.
var ErrRollbackOnly = types.NewError(types.ErrCodeTransaction, "transaction marked rollback-only by a nested scope")

// Tx is an open unit of work. Statements run in submission order; a Tx
// must not be shared between concurrent units of work, and concurrent Run
// calls are serialized.
type Tx struct {
	mu sync.Mutex

	session Session
	tx      Transaction
	logger  *slog.Logger
	started time.Time

	done         bool
	rollbackOnly error
	onCommit     []func(context.Context) error
	onRollback   []func(context.Context)
}

// WithTx binds tx to ctx.
func WithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, contextkeys.Tx, tx)
}

// TxFromContext returns the Tx bound to ctx, or nil.
func TxFromContext(ctx context.Context) *Tx {
	tx, _ := ctx.Value(contextkeys.Tx).(*Tx)
	return tx
}

// Run executes a statement inside the transaction. A failed statement
// leaves the transaction rollback-only.
func (t *Tx) Run(ctx context.Context, text string, params map[string]any) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, ErrTxClosed
	}

	start := time.Now()
	res, err := t.tx.Run(ctx, text, params)
	if err != nil {
		err = classify(err, text)
		if t.rollbackOnly == nil {
			t.rollbackOnly = err
		}
		return nil, err
	}
	logStatement(ctx, t.logger, text, start, res)
	return res, nil
}

// Commit commits the transaction, closes its session and runs the queued
// post-commit callbacks. Callback errors are joined and returned; the
// commit itself stands.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxClosed
	}
	t.done = true
	callbacks, undo := t.onCommit, t.onRollback
	t.onCommit, t.onRollback = nil, nil

	err := t.tx.Commit(ctx)
	t.closeSession(ctx)
	t.mu.Unlock()

	if err != nil {
		t.logger.WarnContext(ctx, "transaction commit failed",
			"error", err,
			"duration", time.Since(t.started))
		runUndo(context.WithoutCancel(ctx), undo)
		return classifyTx(err, "commit failed")
	}
	t.logger.DebugContext(ctx, "transaction committed",
		"duration", time.Since(t.started),
		"callbacks", len(callbacks))

	var errs []error
	for _, fn := range callbacks {
		if cbErr := fn(ctx); cbErr != nil {
			errs = append(errs, cbErr)
		}
	}
	return errors.Join(errs...)
}

// Rollback undoes every statement of the transaction, discards queued
// commit callbacks and runs the rollback callbacks. It runs on a context
// detached from cancellation so a cancelled caller still releases the
// transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	undo := t.onRollback
	t.onCommit, t.onRollback = nil, nil

	rctx := context.WithoutCancel(ctx)
	err := t.tx.Rollback(rctx)
	t.closeSession(rctx)
	t.mu.Unlock()

	runUndo(rctx, undo)

	t.logger.WarnContext(ctx, "transaction rolled back",
		"duration", time.Since(t.started),
		"operation", contextkeys.GetOperation(ctx))
	if err != nil {
		return classifyTx(err, "rollback failed")
	}
	return nil
}

// OnCommit queues fn to run after a successful commit.
func (t *Tx) OnCommit(fn func(context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCommit = append(t.onCommit, fn)
}

// OnRollback queues fn to run when the transaction rolls back or fails
// to commit. Callbacks run in reverse order of registration.
func (t *Tx) OnRollback(fn func(context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRollback = append(t.onRollback, fn)
}

func runUndo(ctx context.Context, undo []func(context.Context)) {
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i](ctx)
	}
}

// Done reports whether the transaction has been committed or rolled back.
func (t *Tx) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Tx) markRollbackOnly(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rollbackOnly == nil {
		t.rollbackOnly = err
	}
}

func (t *Tx) rollbackCause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

func (t *Tx) closeSession(ctx context.Context) {
	if err := t.session.Close(ctx); err != nil {
		t.logger.WarnContext(ctx, "session close failed", "error", err)
	}
}

// classify keeps typed errors and wraps anything else as a statement
// failure, recording the statement text either way.
func classify(err error, text string) error {
	var nerr *types.Error
	if errors.As(err, &nerr) {
		if nerr.Query == "" {
			nerr.Query = text
		}
		return err
	}
	return types.WrapError(types.ErrCodeStatement, "statement failed", err).WithQuery(text)
}

func classifyTx(err error, msg string) error {
	var nerr *types.Error
	if errors.As(err, &nerr) {
		return err
	}
	return types.WrapError(types.ErrCodeTransaction, msg, err)
}

func logStatement(ctx context.Context, logger *slog.Logger, text string, start time.Time, res *Result) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	records := 0
	if res != nil {
		records = len(res.Records)
	}
	logger.DebugContext(ctx, "statement executed",
		"statement", text,
		"records", records,
		"duration", time.Since(start),
		"operation", contextkeys.GetOperation(ctx))
}
