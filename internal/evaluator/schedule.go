package evaluator

import (
	"context"

	"github.com/specialistvlad/dagflow/internal/ctxlog"
	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
)

// scheduleNode implements the four-state schedule machine. Callers must
// already hold ns's lock. It returns true exactly when the
// caller must enqueue the node to run — the NotScheduled -> Scheduled
// transition; every other transition either is a no-op for the pool
// (already scheduled or running) or defers the decision (running and
// rescheduled, resolved in postprocess).
func scheduleNode(ns *nodestate.NodeState) bool {
	switch ns.ScheduleState {
	case nodestate.NotScheduled:
		ns.ScheduleState = nodestate.Scheduled
		return true
	case nodestate.Scheduled:
		return false
	case nodestate.Running:
		ns.ScheduleState = nodestate.RunningAndRescheduled
		return false
	case nodestate.RunningAndRescheduled:
		return false
	default:
		return false
	}
}

// submitTask pushes node onto the worker pool. Same-thread chaining is
// implemented at the call site in execute.go, which runs a node's first
// delayed schedule inline instead of calling submitTask.
func (e *evaluator) submitTask(node graph.NodeHandle) {
	e.pool.Go(func() {
		e.runNodeChain(context.Background(), node)
	})
}

// notifyOutputRequired is the "output-required notification to producer":
// Maybe -> Required, then schedule_node.
func (e *evaluator) notifyOutputRequired(origin graph.SocketRef) []effect {
	ns := e.states[origin.Node]
	ns.Lock()
	defer ns.Unlock()

	out := &ns.Outputs[origin.Index]
	if out.OutputUsage == nodestate.Required {
		return nil
	}
	out.OutputUsage = nodestate.Required
	if scheduleNode(ns) {
		return []effect{{kind: effEnqueue, node: origin.Node}}
	}
	return nil
}

// notifyOutputUnused is the "output-unused notification to producer":
// decrement potential_users; if it reaches zero and the output isn't
// already Required, transition to Unused and schedule_node so the
// producer can propagate unused upstream and potentially finish.
func (e *evaluator) notifyOutputUnused(origin graph.SocketRef) []effect {
	ns := e.states[origin.Node]
	ns.Lock()
	defer ns.Unlock()

	out := &ns.Outputs[origin.Index]
	if out.PotentialUsers > 0 {
		out.PotentialUsers--
	}
	if out.PotentialUsers != 0 || out.OutputUsage == nodestate.Required {
		return nil
	}
	out.OutputUsage = nodestate.Unused
	if scheduleNode(ns) {
		return []effect{{kind: effEnqueue, node: origin.Node}}
	}
	return nil
}

func debugLog(ctx context.Context, node graph.NodeHandle, msg string, args ...any) {
	ctxlog.FromContext(ctx).Debug(msg, append([]any{"node", node.String()}, args...)...)
}
