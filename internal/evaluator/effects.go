package evaluator

import (
	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
)

// effectKind names a cross-node side effect collected while a node's lock
// is held, to be dispatched only after the lock is released. This is the
// mechanism behind the "enqueuing never happens while any node lock is
// held" rule: every place that would otherwise touch another
// node's state while the current one is locked instead appends an effect
// here.
type effectKind int

const (
	// effEnqueue pushes Node onto the worker pool to run node_task_run.
	effEnqueue effectKind = iota
	// effOutputRequired notifies the node owning Socket (an output) that
	// one of its consumers now requires that output.
	effOutputRequired
	// effOutputUnused notifies the node owning Socket (an output) that
	// one of its consumers no longer needs it.
	effOutputUnused
)

type effect struct {
	kind   effectKind
	node   graph.NodeHandle
	socket graph.SocketRef
}

// withLockedNode locks h's state, runs fn, unlocks, and dispatches
// whatever effects fn collected. fn must not block on anything that could
// itself need h's lock.
func (e *evaluator) withLockedNode(h graph.NodeHandle, fn func(ns *nodestate.NodeState) []effect) {
	ns := e.states[h]
	ns.Lock()
	effs := fn(ns)
	ns.Unlock()
	e.runEffects(effs)
}

// runEffects drains a worklist of effects, each of which may append more.
// Each iteration touches at most one node's lock (inside
// notifyOutputRequired/notifyOutputUnused), never two at once, satisfying
// the deadlock-freedom rule: a goroutine never waits on a lock while
// holding another.
func (e *evaluator) runEffects(initial []effect) {
	for _, node := range e.drainEffects(initial) {
		e.submitTask(node)
	}
}

// drainEffects runs a worklist of effects like runEffects, except it
// doesn't dispatch effEnqueue itself: it collects the newly-scheduled
// node handles, in the order discovered, and returns them for the caller
// to dispatch. This lets runNodeChain run the first of them inline on the
// current goroutine instead of always round-tripping through the worker
// pool, mirroring run_node_from_task_pool's next_node_to_run.
func (e *evaluator) drainEffects(initial []effect) []graph.NodeHandle {
	var enqueued []graph.NodeHandle
	queue := initial
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		switch cur.kind {
		case effEnqueue:
			enqueued = append(enqueued, cur.node)
		case effOutputRequired:
			queue = append(queue, e.notifyOutputRequired(cur.socket)...)
		case effOutputUnused:
			queue = append(queue, e.notifyOutputUnused(cur.socket)...)
		}
	}
	return enqueued
}
