// Package evaluator is the dataflow evaluator core: it explores the
// reachable subgraph from a set of requested outputs, schedules nodes
// lazily as their outputs are demanded, executes them on a worker pool, and
// forwards produced values downstream with type conversion and fan-out
// copying.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/dagflow/internal/ctxlog"
	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/nodetype"
	"github.com/specialistvlad/dagflow/internal/value"
	"github.com/specialistvlad/dagflow/internal/workerpool"
)

// Logger is an optional structured observer a caller may supply. The
// evaluator calls only LogExecutionTime, once per node execution;
// LogValueForSockets, LogMultiValueSocket and LogDebugMessage are part of
// the interface but the evaluator never calls them. It is distinct from the
// ambient internal/ctxlog debug trail the evaluator logs through
// regardless of whether a Logger is supplied.
type Logger interface {
	LogValueForSockets(sockets []graph.SocketRef, v value.Value)
	LogMultiValueSocket(socket graph.SocketRef, values []value.Value)
	LogExecutionTime(node graph.NodeHandle, d time.Duration)
	LogDebugMessage(node graph.NodeHandle, message string)
}

// Options tunes the evaluator's ambient behavior; it is not domain
// configuration for a particular run (that is Request).
type Options struct {
	// Workers bounds worker-pool concurrency. Zero selects a small
	// default.
	Workers int
	// DebugAssertions enables the evaluator's internal consistency
	// assertions (see debug.go), matching the source's #ifdef
	// DEBUG-gated assertions. Off by default because they walk the full
	// node-state set and are not needed for correct production use.
	DebugAssertions bool
}

// Request is a single evaluation's inputs: the graph to run, the node-type
// registry describing how to execute each node, which input sockets to
// compute, which values to seed in, and which sockets must be computed
// regardless of downstream demand.
type Request struct {
	Graph    graph.Graph
	Registry *nodetype.Registry

	// Outputs are the input sockets whose final values the caller wants
	// back, in the order they should appear in Result.Values.
	Outputs []graph.SocketRef

	// Inputs seeds initial values at output sockets belonging to
	// zero-input "source" nodes already present in Graph — the evaluator
	// treats each as though that node had just produced it, and forwards
	// it through the normal value-forwarding path.
	Inputs map[graph.SocketRef]value.Value

	// ForceCompute lists input sockets that must be computed even if no
	// downstream consumer needs them.
	ForceCompute []graph.SocketRef

	Logger      Logger
	SelfContext any
}

// Result is the outcome of a single evaluation.
type Result struct {
	// Values holds one entry per Request.Outputs, in the same order.
	Values []value.Value
}

// Evaluator runs a single Request. It is not reused across evaluations —
// each call to Evaluate constructs a fresh one; incremental recomputation
// across runs is out of scope.
type evaluator struct {
	graph     graph.Graph
	registry  *nodetype.Registry
	states    map[graph.NodeHandle]*nodestate.NodeState
	reachable map[graph.NodeHandle]bool
	pool      *workerpool.Pool
	logger    Logger
	selfCtx   any
	opts      Options

	// resultSockets marks the input sockets Request.Outputs named. A node
	// with no Execute/MultiFunction (a plain result sink, or a registered
	// type that declares neither) never reads its own inputs, so preprocess
	// must leave a resultSockets entry's value sitting in its slot for
	// extractGroupOutputs to collect, instead of discarding it like any
	// other unread, executor-less input.
	resultSockets map[graph.SocketRef]bool
}

// Evaluate runs req to completion and returns the requested output values.
// It is the package's single entry point.
func Evaluate(ctx context.Context, req Request, opts Options) (Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	log := ctxlog.FromContext(ctx)
	log.Debug("evaluator: starting run", "outputs", len(req.Outputs), "force_compute", len(req.ForceCompute))

	e := &evaluator{
		graph:         req.Graph,
		registry:      req.Registry,
		logger:        req.Logger,
		selfCtx:       req.SelfContext,
		opts:          opts,
		resultSockets: make(map[graph.SocketRef]bool, len(req.Outputs)),
	}
	for _, s := range req.Outputs {
		e.resultSockets[s] = true
	}

	if err := e.buildNodeStates(ctx, req.Outputs, req.ForceCompute); err != nil {
		return Result{}, fmt.Errorf("evaluator: exploring graph: %w", err)
	}

	e.pool = workerpool.New(ctx, opts.Workers)

	e.forwardGroupInputs(req.Inputs)
	e.requireInitialSockets(req.Outputs, req.ForceCompute)

	e.pool.Wait()

	if opts.DebugAssertions {
		if err := e.runDebugAssertions(); err != nil {
			return Result{}, err
		}
	}

	out, err := e.extractGroupOutputs(req.Outputs)
	if err != nil {
		return Result{}, err
	}

	log.Debug("evaluator: run complete")
	return Result{Values: out}, nil
}

// requireInitialSockets marks every requested output and force-compute
// socket Required, kicking off the initial wave of demand propagation.
func (e *evaluator) requireInitialSockets(outputs, forceCompute []graph.SocketRef) {
	seen := make(map[graph.SocketRef]bool)
	for _, s := range append(append([]graph.SocketRef{}, outputs...), forceCompute...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		e.requireInputSocket(s)
	}
}

func (e *evaluator) requireInputSocket(s graph.SocketRef) {
	e.withLockedNode(s.Node, func(ns *nodestate.NodeState) []effect {
		return e.setInputRequired(ns, s.Node, s.Index)
	})
}
