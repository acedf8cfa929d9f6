package evaluator

import (
	"github.com/specialistvlad/dagflow/internal/convert"
	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/value"
)

// forwardOutput is forward_output: a freshly produced value at origin is
// distributed to every reachable target socket, copied for
// fan-out and converted per target where the declared types differ.
//
// Targets are partitioned into those sharing origin's type (the "unconverted"
// group, which can share a single underlying value via Copy/Take) and those
// needing a conversion (handled individually, since a converted value can
// never be shared with the original). Within the unconverted group: zero
// targets releases v outright, one target hands v over directly, and many
// targets copy v for every target but the last, which receives the original
// handle — exactly one Copy per extra fan-out edge.
func (e *evaluator) forwardOutput(origin graph.SocketRef, v value.Value) []effect {
	targets := e.graph.Targets(origin)

	var same, diff []graph.SocketRef
	for _, t := range targets {
		if !e.reachable[t.Node] {
			continue
		}
		if e.inputType(t).Equal(v.Type()) {
			same = append(same, t)
		} else {
			diff = append(diff, t)
		}
	}

	var effs []effect
	for _, t := range diff {
		effs = append(effs, e.addValueToInputSocket(t, origin, e.convertForTarget(v.Copy(), t))...)
	}

	switch len(same) {
	case 0:
		v.Release()
	case 1:
		effs = append(effs, e.addValueToInputSocket(same[0], origin, v)...)
	default:
		for _, t := range same[:len(same)-1] {
			effs = append(effs, e.addValueToInputSocket(t, origin, v.Copy())...)
		}
		effs = append(effs, e.addValueToInputSocket(same[len(same)-1], origin, v)...)
	}
	return effs
}

// convertForTarget converts v to target's declared input type, falling back
// to that type's default value if the conversion itself fails: a
// conversion failure never aborts the run, it degrades to the target's
// default, matching the source evaluator's permissive socket coercion.
func (e *evaluator) convertForTarget(v value.Value, target graph.SocketRef) value.Value {
	targetType := e.inputType(target)
	if v.IsField() {
		if targetType.IsFieldCapable {
			out, err := convert.Field(v, targetType)
			if err == nil {
				return out
			}
			return targetType.DefaultValue()
		}
		// A target that cannot hold a field gets the field evaluated once
		// and then converted eagerly like any materialized value.
		raw, err := v.TakeField().Evaluate(1)
		if err != nil {
			return targetType.DefaultValue()
		}
		v = value.NewSingle(v.Type(), raw)
	}
	out, err := convert.Value(v, targetType)
	if err == nil {
		return out
	}
	return targetType.DefaultValue()
}

// addValueToInputSocket stores v in target's slot for the link from origin
// and returns the effect to schedule target's node if that completes its
// last missing required input. The value is stored whether the input is
// Required or still Maybe, so a Maybe socket that later becomes Required
// doesn't need to re-fetch what was already produced. An Unused input, or
// one whose value was already taken for execution, releases v instead.
func (e *evaluator) addValueToInputSocket(target, origin graph.SocketRef, v value.Value) []effect {
	ns := e.states[target.Node]
	ns.Lock()
	defer ns.Unlock()

	in := &ns.Inputs[target.Index]
	if in.Usage == nodestate.Unused || in.WasReadyForExecution {
		v.Release()
		return nil
	}
	if fillRequiredSlot(ns, in, origin, v) {
		return []effect{{kind: effEnqueue, node: target.Node}}
	}
	return nil
}

// inputType looks up a reachable node's declared type for one of its input
// sockets, as recorded by buildNodeStates.
func (e *evaluator) inputType(s graph.SocketRef) value.DataType {
	return e.states[s.Node].Inputs[s.Index].Type
}
