// Package nodestate holds the per-node scheduling and socket state the
// evaluator mutates while a graph runs: input/output readiness, usage
// demand, and the four-state schedule machine. Every field except the
// identities of the Inputs/Outputs slices is protected by the node's own
// mutex, generalized from an atomic-counter-plus-sync.Once node state
// (internal/node/node.go) to a mutex-guarded struct because the state
// machine here has far more cross-field invariants than a single atomic
// can express safely.
package nodestate

import (
	"sync"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/value"
)

// Usage is the evaluator's live classification of a socket's demand.
type Usage int

const (
	Maybe Usage = iota
	Required
	Unused
)

// ScheduleState is the four-state machine from the scheduler core.
type ScheduleState int

const (
	NotScheduled ScheduleState = iota
	Scheduled
	Running
	RunningAndRescheduled
)

// InputState tracks one input socket's declared origins and the values
// that have arrived so far.
type InputState struct {
	HasType bool
	Type    value.DataType

	// Origins lists the output sockets feeding this input, in link order.
	// An unlinked input is represented with Origins set to its own socket
	// (see the evaluator's initNodeSockets), so unlinked defaults load
	// through the same path
	// as a linked value.
	Origins []graph.SocketRef
	// Slots holds one entry per origin. For a single-input socket len==1.
	Slots []slot

	Usage                Usage
	WasReadyForExecution  bool
	ForceCompute          bool
	ImplicitDefaultLoaded bool
}

type slot struct {
	filled bool
	value  value.Value
}

// InitSlots allocates n empty slots, one per origin this input was given
// during graph exploration. Must be called before any SetSlot.
func (in *InputState) InitSlots(n int) {
	in.Slots = make([]slot, n)
}

// IsMultiInput reports whether this input accepts more than one origin.
func (in *InputState) IsMultiInput() bool { return len(in.Slots) > 1 }

// FilledCount returns how many of the input's slots currently hold a value.
func (in *InputState) FilledCount() int {
	n := 0
	for _, s := range in.Slots {
		if s.filled {
			n++
		}
	}
	return n
}

// IsFullyFilled reports whether every slot has a value — the readiness
// condition for "value present" in was_ready_for_execution.
func (in *InputState) IsFullyFilled() bool {
	return in.FilledCount() == len(in.Slots)
}

// MissingCount returns the number of currently empty slots.
func (in *InputState) MissingCount() int {
	return len(in.Slots) - in.FilledCount()
}

// SetSlot stores v in the slot matching origin, preferring the first empty
// slot whose declared origin equals origin (duplicate-origin
// disambiguation). Returns false if no matching empty slot exists.
func (in *InputState) SetSlot(origin graph.SocketRef, v value.Value) bool {
	for i, o := range in.Origins {
		if o == origin && !in.Slots[i].filled {
			in.Slots[i] = slot{filled: true, value: v}
			return true
		}
	}
	return false
}

// TakeSingle extracts the sole slot's value. Panics if this is a multi-input.
func (in *InputState) TakeSingle() (value.Value, bool) {
	if len(in.Slots) != 1 {
		panic("nodestate: TakeSingle called on a non-single input")
	}
	if !in.Slots[0].filled {
		return value.Value{}, false
	}
	v := in.Slots[0].value
	in.Slots[0] = slot{}
	return v, true
}

// PeekSingle returns the sole slot's value without consuming it.
func (in *InputState) PeekSingle() (value.Value, bool) {
	if len(in.Slots) != 1 {
		panic("nodestate: PeekSingle called on a non-single input")
	}
	if !in.Slots[0].filled {
		return value.Value{}, false
	}
	return in.Slots[0].value, true
}

// TakeAll extracts every filled slot's value in slot order, for multi-input
// extraction.
func (in *InputState) TakeAll() []value.Value {
	out := make([]value.Value, 0, len(in.Slots))
	for i, s := range in.Slots {
		if s.filled {
			out = append(out, s.value)
			in.Slots[i] = slot{}
		}
	}
	return out
}

// ReleaseAll destructs every filled slot without transferring ownership,
// used when an input transitions to Unused or the node finishes.
func (in *InputState) ReleaseAll() {
	for i, s := range in.Slots {
		if s.filled {
			v := s.value
			v.Release()
			in.Slots[i] = slot{}
		}
	}
}

// OutputState tracks one output socket's production and demand.
type OutputState struct {
	HasType bool
	Type    value.DataType

	HasBeenComputed          bool
	OutputUsage              Usage
	OutputUsageForExecution  Usage
	PotentialUsers           int
}

// NodeState is the full per-node scheduling record.
type NodeState struct {
	mu sync.Mutex

	Inputs  []InputState
	Outputs []OutputState

	IsLazy                bool
	NonLazyInputsHandled  bool
	HasBeenExecuted       bool
	NodeHasFinished       bool
	MissingRequiredInputs int
	ScheduleState         ScheduleState
}

// New allocates a NodeState with the given socket counts. Socket type and
// origin information is filled in separately during the parallel
// initialization pass.
func New(inputCount, outputCount int, isLazy bool) *NodeState {
	return &NodeState{
		Inputs:  make([]InputState, inputCount),
		Outputs: make([]OutputState, outputCount),
		IsLazy:  isLazy,
	}
}

// Lock and Unlock expose the node's mutex directly so the evaluator can
// implement its own with-locked-node helper without nodestate needing to
// know about delayed-effect queues.
func (ns *NodeState) Lock()   { ns.mu.Lock() }
func (ns *NodeState) Unlock() { ns.mu.Unlock() }

// IsFinishable reports whether finish_node_if_possible's completeness gate
// holds: every output has either been computed or is Unused, and every
// force-compute input has actually arrived rather than merely being
// Required. Callers must hold ns's lock.
func (ns *NodeState) IsFinishable() bool {
	for i := range ns.Outputs {
		out := &ns.Outputs[i]
		if !out.HasBeenComputed && out.OutputUsage != Unused {
			return false
		}
	}
	for i := range ns.Inputs {
		in := &ns.Inputs[i]
		if in.ForceCompute && !in.WasReadyForExecution && !in.IsFullyFilled() {
			return false
		}
	}
	return true
}
