// Package graph defines the read-only graph handle the evaluator explores
// and walks links over: nodes, typed sockets, and the links between them.
// It is adapted from the construction pair of internal/dag/graph_builder.go
// (building a step/resource dependency graph) and internal/builder/storage.go
// (exposing Dependencies/Dependents over it), generalized to a typed-socket
// model instead of step/resource nodes.
//
// Node-group nesting from the source evaluator (proxy group-input/output
// nodes, intermediate hops along a forwarding path) is flattened away at
// construction time here: every Link already names its final destination
// socket. Nothing in this package models nested node groups or a socket
// path; forward_output's "walk a path, convert at the final hop or a group
// boundary" collapses to "convert at the destination", which is what
// Builder's links already express directly. See DESIGN.md for this
// tradeoff.
package graph

import "github.com/google/uuid"

// NodeHandle is a stable, comparable identity for a node, grounded on the
// teacher's preference for opaque generated identifiers (google/uuid) over
// hand-rolled path addressing.
type NodeHandle struct {
	id uuid.UUID
}

func newNodeHandle() NodeHandle { return NodeHandle{id: uuid.New()} }

func (h NodeHandle) String() string { return h.id.String() }

// IsZero reports whether h is the zero-value handle (no node).
func (h NodeHandle) IsZero() bool { return h.id == uuid.Nil }

// SocketKind distinguishes an input socket from an output socket.
type SocketKind int

const (
	Input SocketKind = iota
	Output
)

// SocketRef identifies a single socket: a node, whether it's an input or
// output, and its index within that side's socket list.
type SocketRef struct {
	Node  NodeHandle
	Kind  SocketKind
	Index int
}

// Link is a directed edge from an output socket (Origin) to an input
// socket (Target).
type Link struct {
	Origin SocketRef
	Target SocketRef
}

// NodeInfo is the per-node metadata the evaluator needs beyond socket
// counts: which registered node type it runs as, and whether it declares
// support for laziness.
type NodeInfo struct {
	TypeName    string
	IsLazy      bool
	InputCount  int
	OutputCount int
}

// Graph is the opaque handle the evaluator explores. Implementations need
// not be concurrency-safe beyond read-only use: the evaluator only reads a
// Graph, during and after a single-threaded construction phase.
type Graph interface {
	Nodes() []NodeHandle
	Node(NodeHandle) NodeInfo
	// Origins returns the output sockets linked into the given input
	// socket, in declaration order. A socket with no links returns nil;
	// the evaluator substitutes the unlinked-default origin convention
	// itself, since that is graph-exploration policy, not graph data.
	Origins(input SocketRef) []SocketRef
	// Targets returns the input sockets linked from the given output
	// socket, in no particular guaranteed order.
	Targets(output SocketRef) []SocketRef
}
