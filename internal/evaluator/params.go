package evaluator

import (
	"fmt"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/nodetype"
	"github.com/specialistvlad/dagflow/internal/value"
)

// execSnapshot is the frozen, single-invocation view preprocess builds
// under the node's lock before Execute runs: the values extracted from
// ready required inputs, and which outputs were required as of that
// instant. Execute reads only this snapshot, never ns directly, so a
// concurrent demand change mid-execution can't race with the running node
// type's code — a frozen execution snapshot.
type execSnapshot struct {
	e    *evaluator
	node graph.NodeHandle
	nt   nodetype.NodeType

	single   map[string]value.Value
	multi    map[string][]value.Value
	required map[string]bool
	outputs  map[string]value.Value
	outSet   map[string]bool
}

// paramsProvider implements nodetype.Params over a fixed execSnapshot.
type paramsProvider struct {
	snap *execSnapshot
}

func newParamsProvider(snap *execSnapshot) *paramsProvider {
	return &paramsProvider{snap: snap}
}

func (p *paramsProvider) Input(name string) (value.Value, error) {
	v, ok := p.snap.single[name]
	if !ok {
		if _, isMulti := p.snap.multi[name]; isMulti {
			return value.Value{}, fmt.Errorf("evaluator: %q is a multi-input socket, use InputAll", name)
		}
		return value.Value{}, fmt.Errorf("evaluator: input %q has no value for this invocation", name)
	}
	return v, nil
}

func (p *paramsProvider) InputAll(name string) ([]value.Value, error) {
	vs, ok := p.snap.multi[name]
	if !ok {
		return nil, fmt.Errorf("evaluator: %q is not a multi-input socket", name)
	}
	return vs, nil
}

func (p *paramsProvider) SetOutput(name string, v value.Value) error {
	if p.snap.outSet[name] {
		return fmt.Errorf("evaluator: output %q already set this invocation", name)
	}
	p.snap.outputs[name] = v
	p.snap.outSet[name] = true
	return nil
}

func (p *paramsProvider) OutputIsRequired(name string) bool {
	return p.snap.required[name]
}

// LazyRequireInput lets a lazy node type's Execute decide, mid-invocation,
// that it now needs an input it didn't declare required up front — e.g.
// "only read the fallback input if the primary one turned out empty" — an
// incremental-requirement extension for lazy nodes. It marks the socket
// Required (idempotent if already required) and returns the
// value immediately if it has already arrived; otherwise it returns
// ok=false and the node type must return nodetype.ErrInputNotReady from
// Execute so the node is rescheduled once the value arrives through the
// normal fillRequiredSlot path.
func (p *paramsProvider) LazyRequireInput(name string) (value.Value, bool) {
	idx, ok := socketIndex(p.snap.nt.Inputs, name)
	if !ok {
		return value.Value{}, false
	}
	if v, inSnap := p.snap.single[name]; inSnap {
		return v, true
	}
	e, node := p.snap.e, p.snap.node
	e.withLockedNode(node, func(ns *nodestate.NodeState) []effect {
		return e.setInputRequired(ns, node, idx)
	})

	ns := e.states[node]
	ns.Lock()
	defer ns.Unlock()
	in := &ns.Inputs[idx]
	if in.WasReadyForExecution || !in.IsFullyFilled() {
		return value.Value{}, false
	}
	in.WasReadyForExecution = true
	if in.IsMultiInput() {
		vs := in.TakeAll()
		if len(vs) == 0 {
			return value.Value{}, false
		}
		return vs[0], true
	}
	return in.TakeSingle()
}

// socketIndex resolves a declared socket name to its index, for translating
// between the node-type's name-based Params facade and the graph's
// index-based sockets.
func socketIndex(decls []nodetype.SocketDecl, name string) (int, bool) {
	for i, d := range decls {
		if d.Name == name {
			return i, true
		}
	}
	return -1, false
}
