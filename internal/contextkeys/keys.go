// Package contextkeys provides shared context key definitions used across
// node4j packages. Accessors for typed values live next to their types
// (session.TxFromContext, identity.FromContext); this package only holds
// keys and plain string values so it can be imported from anywhere.
package contextkeys

import "context"

// Key is the type for all node4j context keys.
type Key string

const (
	// Tx stores the *session.Tx of the active atomic scope.
	Tx Key = "node4j.tx"

	// IdentityScope stores the *identity.Scope of the current top-level
	// manager call.
	IdentityScope Key = "node4j.identity_scope"

	// IdentityJournal stores the *identity.Journal of the outermost
	// atomic scope.
	IdentityJournal Key = "node4j.identity_journal"

	// Operation stores the manager operation name ("create", "match_all",
	// ...) for logs and spans.
	Operation Key = "node4j.operation"
)

// WithOperation returns a new context with the operation name set.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, Operation, op)
}

// GetOperation retrieves the operation name from context.
// Returns empty string if not set.
func GetOperation(ctx context.Context) string {
	if v, ok := ctx.Value(Operation).(string); ok {
		return v
	}
	return ""
}
