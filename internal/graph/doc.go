// Package graph adapts the Neo4j Go driver to the session contract.
//
// Client owns the driver and its connection pool; it is the only
// process-wide shared resource and is created, connected and closed
// explicitly by the caller. Statements run through explicit transactions
// or auto-commit sessions; the driver's managed-transaction retry is never
// used, so every failure surfaces to the caller classified by Neo4j status
// code.
package graph
