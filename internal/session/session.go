// Package session coordinates statement execution and transactions
// against a session-based execution service.
//
// The service is consumed through Driver, Session and Transaction. The
// Coordinator owns no connections; it opens one session per unit of work
// and closes it when the unit completes. An atomic scope binds its Tx to
// the context so nested scopes and every Run made with that context join
// the same transaction.
package session

import "context"

// Record is one result row keyed by column name.
type Record map[string]any

// Summary reports the effect of a statement.
type Summary struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Result holds the collected rows and summary of a statement.
type Result struct {
	Records []Record
	Summary Summary
}

// Single returns the only record, or nil when there is none.
func (r *Result) Single() Record {
	if r == nil || len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// AccessMode hints whether a session will write.
type AccessMode int

const (
	AccessModeWrite AccessMode = iota
	AccessModeRead
)

// Config configures a new session.
type Config struct {
	Database   string
	AccessMode AccessMode
}

// Driver opens sessions. Implementations own the connection pool.
type Driver interface {
	NewSession(ctx context.Context, cfg Config) (Session, error)
}

// Session runs auto-commit statements or begins an explicit transaction.
// A session is used by one unit of work at a time.
type Session interface {
	Run(ctx context.Context, text string, params map[string]any) (*Result, error)
	BeginTransaction(ctx context.Context) (Transaction, error)
	Close(ctx context.Context) error
}

// Transaction is an explicit transaction on a session.
type Transaction interface {
	Run(ctx context.Context, text string, params map[string]any) (*Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
