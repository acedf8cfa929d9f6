// Package dagflow is a lazy, demand-driven dataflow evaluator: give it a
// graph of typed-socket nodes and the outputs you want, and it runs only
// the nodes those outputs actually depend on, in parallel where the graph
// allows it.
//
// A Graph is built once with graph.NewBuilder, node types are registered
// into a Registry, and Evaluate walks the two against a Request to produce
// a Result. See internal/graph, internal/nodetype and internal/value for
// the vocabulary Evaluate's Request and Result are built from.
package dagflow

import (
	"context"

	"github.com/specialistvlad/dagflow/internal/evaluator"
	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodetype"
	"github.com/specialistvlad/dagflow/internal/value"
)

// Re-exported vocabulary so callers depend only on the root package for the
// common path; internal/* remains available for anything more specialized
// (writing a custom Graph implementation, for instance).
type (
	Graph      = graph.Graph
	GraphBuilder = graph.Builder
	NodeHandle = graph.NodeHandle
	SocketRef  = graph.SocketRef
	SocketKind = graph.SocketKind
	Link       = graph.Link

	Registry  = nodetype.Registry
	NodeType  = nodetype.NodeType
	SocketDecl = nodetype.SocketDecl
	Params    = nodetype.Params
	LazyParams = nodetype.LazyParams

	Value    = value.Value
	DataType = value.DataType

	Logger  = evaluator.Logger
	Options = evaluator.Options
	Request = evaluator.Request
	Result  = evaluator.Result
)

const (
	SocketInput  = graph.Input
	SocketOutput = graph.Output
)

// ErrInputNotReady is returned by a lazy node's Execute to mean "I just
// required a new input via LazyParams.LazyRequireInput and it isn't here
// yet — reschedule me once it arrives."
var ErrInputNotReady = nodetype.ErrInputNotReady

// NewBuilder starts a new graph under construction.
func NewBuilder() *graph.Builder {
	return graph.NewBuilder()
}

// NewRegistry creates an empty node-type registry.
func NewRegistry() *Registry {
	return nodetype.New()
}

// Evaluate runs req against opts and returns the requested output values.
// Each call constructs a fresh evaluator; nothing is cached between calls.
func Evaluate(ctx context.Context, req Request, opts Options) (Result, error) {
	return evaluator.Evaluate(ctx, req, opts)
}
