package evaluator

import (
	"fmt"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/value"
)

// forwardGroupInputs seeds the run with externally supplied values: each
// entry in inputs names the output socket of a zero-input "source" node
// already present in the caller's Graph. Rather than special-
// casing demand propagation for group inputs, the source node is marked as
// though it had just finished producing that output, and the value is
// pushed downstream through the exact same forwardOutput path any other
// node's produced value takes.
func (e *evaluator) forwardGroupInputs(inputs map[graph.SocketRef]value.Value) {
	for socket, v := range inputs {
		ns, ok := e.states[socket.Node]
		if !ok {
			// Not reachable from the requested outputs; nothing downstream
			// can ever want it.
			v.Release()
			continue
		}

		ns.Lock()
		ns.Outputs[socket.Index].HasBeenComputed = true
		ns.NodeHasFinished = true
		ns.HasBeenExecuted = true
		ns.ScheduleState = nodestate.NotScheduled
		var effs []effect
		for i := range ns.Inputs {
			if ns.Inputs[i].Usage == nodestate.Maybe {
				effs = append(effs, e.setInputUnused(ns, i)...)
			}
		}
		ns.Unlock()

		e.runEffects(effs)
		e.runEffects(e.forwardOutput(socket, v))
	}
}

// extractGroupOutputs reads the final values sitting in the requested
// "result" input sockets once the pool has drained. These sockets are
// never consumed by any node's own Execute — they exist purely as sinks —
// so their values are read directly out of the socket's slot rather than
// through node_task_run's input-extraction path.
func (e *evaluator) extractGroupOutputs(outputs []graph.SocketRef) ([]value.Value, error) {
	cache := make(map[graph.SocketRef]value.Value)
	out := make([]value.Value, len(outputs))

	for i, s := range outputs {
		if cached, ok := cache[s]; ok {
			out[i] = cached.Copy()
			continue
		}

		ns, ok := e.states[s.Node]
		if !ok {
			return nil, fmt.Errorf("evaluator: requested output %s is not reachable", s.Node)
		}
		ns.Lock()
		v, filled := ns.Inputs[s.Index].TakeSingle()
		ns.Unlock()
		if !filled {
			return nil, fmt.Errorf("evaluator: requested output %s never received a value", s.Node)
		}
		cache[s] = v
		out[i] = v
	}
	return out, nil
}
