// Package relation implements relationship descriptors: connecting,
// disconnecting and updating edges between saved instances, and lazily
// resolving a relationship into its related instances.
//
// Each relationship slot on an identity.Instance is loaded at most once
// per scope. Concurrent resolvers of the same slot share a single query,
// and any mutation through a descriptor invalidates the affected slots.
package relation
