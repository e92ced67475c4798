// Package store defines the boundary between the mapping engine and a
// property graph database: a single Execute call accepting query text and a
// parameter map, returning rows of typed graph values.
//
// Two backends ship with the module: Kuzu (production, CGO) and MemGraph
// (in-memory, used for tests and embedded scenarios). The storetest
// subpackage provides a scripted executor for unit tests.
package store

import "context"

// Value is a graph value: a primitive (int64, float64, string, bool, nil),
// an ordered []Value, a map[string]Value, a Node, or an Edge.
type Value = any

// Row is one result row, an ordered sequence of graph values.
type Row []Value

// Node is a graph node as returned by a backend. ID is the store-assigned
// internal identifier; the engine only assumes it is equality-comparable,
// stable for the node's lifetime, and usable as a map key.
type Node struct {
	ID     int64
	Labels []string
	Props  map[string]Value
}

// Edge is a graph relationship between two nodes, identified by the internal
// IDs of its endpoints.
type Edge struct {
	ID    int64
	Type  string
	Start int64
	End   int64
	Props map[string]Value
}

// Executor executes one graph query as a single blocking round trip.
// Implementations: Kuzu (production), MemGraph (in-memory),
// storetest.Recorder (scripted).
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]Row, error)
}
