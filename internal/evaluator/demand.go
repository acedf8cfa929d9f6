package evaluator

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/nodetype"
	"github.com/specialistvlad/dagflow/internal/value"
)

// setInputRequired marks an input Required and starts propagating that
// demand upstream. Caller must hold
// node's lock. Returns delayed effects (output-required notifications to
// linked origins) to dispatch after unlocking.
func (e *evaluator) setInputRequired(ns *nodestate.NodeState, node graph.NodeHandle, idx int) []effect {
	in := &ns.Inputs[idx]
	if !in.HasType {
		return nil
	}
	// Monotone usage: Unused never
	// becomes Required again.
	if in.Usage == nodestate.Unused || in.WasReadyForExecution || in.Usage == nodestate.Required {
		return nil
	}
	in.Usage = nodestate.Required
	ns.MissingRequiredInputs += in.MissingCount()

	self := graph.SocketRef{Node: node, Kind: graph.Input, Index: idx}
	var effs []effect
	for _, origin := range in.Origins {
		if origin.Kind == graph.Input {
			// Unlinked-default case: the socket is its own lone origin
			// Load the value immediately; no other node's
			// lock is needed.
			if origin == self {
				v := e.loadUnlinkedInputValue(context.Background(), node, idx, in)
				if scheduleMe := fillRequiredSlot(ns, in, origin, v); scheduleMe {
					effs = append(effs, effect{kind: effEnqueue, node: node})
				}
			}
			continue
		}
		effs = append(effs, effect{kind: effOutputRequired, socket: origin})
	}
	return effs
}

// setInputUnused marks an input Unused and releases whatever it had
// accumulated. Caller must hold
// node's lock.
func (e *evaluator) setInputUnused(ns *nodestate.NodeState, idx int) []effect {
	in := &ns.Inputs[idx]
	if !in.HasType || in.Usage == nodestate.Unused || in.Usage == nodestate.Required {
		return nil
	}
	in.Usage = nodestate.Unused
	in.ReleaseAll()

	if in.WasReadyForExecution {
		return nil
	}
	var effs []effect
	for _, origin := range in.Origins {
		if origin.Kind == graph.Output {
			effs = append(effs, effect{kind: effOutputUnused, socket: origin})
		}
	}
	return effs
}

// fillRequiredSlot stores v in in's slot matching origin and, if the input
// is Required, decrements the node's missing-inputs counter. Caller must
// hold ns's lock. Returns true when the node must be (re)scheduled because
// the counter just reached zero.
func fillRequiredSlot(ns *nodestate.NodeState, in *nodestate.InputState, origin graph.SocketRef, v value.Value) bool {
	if !in.SetSlot(origin, v) {
		v.Release()
		return false
	}
	if in.Usage != nodestate.Required {
		return false
	}
	ns.MissingRequiredInputs--
	if ns.MissingRequiredInputs != 0 {
		return false
	}
	return scheduleNode(ns)
}

// loadUnlinkedInputValue resolves the value for an input that has no
// incoming link: an implicit, per-invocation default if the node type
// declares one,
// otherwise the socket's static declared default, otherwise the bare
// DataType default.
func (e *evaluator) loadUnlinkedInputValue(ctx context.Context, node graph.NodeHandle, idx int, in *nodestate.InputState) value.Value {
	decl, ok := e.inputDecl(node, idx)
	if ok && decl.ImplicitDefault != nil {
		v, err := decl.ImplicitDefault(ctx)
		if err == nil {
			return v
		}
		debugLog(ctx, node, "implicit default failed, falling back to static default", "input", idx, "error", err)
	}
	if !ok || decl.Default.Type().CtyType == cty.NilType {
		return in.Type.DefaultValue()
	}
	return decl.Default.Copy()
}

// inputDecl resolves a node's registered input socket declaration.
func (e *evaluator) inputDecl(node graph.NodeHandle, idx int) (nodetype.SocketDecl, bool) {
	info := e.graph.Node(node)
	nt, ok := e.registry.Lookup(info.TypeName)
	if !ok || idx >= len(nt.Inputs) {
		return nodetype.SocketDecl{}, false
	}
	return nt.Inputs[idx], true
}
