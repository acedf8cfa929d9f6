package evaluator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/nodetype"
)

// buildNodeStates is build_node_state_map: it discovers the
// subgraph reachable backward from outputs and forceCompute, allocates a
// NodeState per reachable node, then fills in each socket's static data
// (declared type, linked origins, potential-user counts) in parallel —
// concurrent because filling one node's data never touches another node's
// NodeState, only the read-only Graph.
func (e *evaluator) buildNodeStates(ctx context.Context, outputs, forceCompute []graph.SocketRef) error {
	e.reachable = make(map[graph.NodeHandle]bool)
	e.states = make(map[graph.NodeHandle]*nodestate.NodeState)

	var stack []graph.NodeHandle
	for _, s := range outputs {
		stack = append(stack, s.Node)
	}
	for _, s := range forceCompute {
		stack = append(stack, s.Node)
	}

	for len(stack) > 0 {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]
		if e.reachable[node] {
			continue
		}
		e.reachable[node] = true

		info := e.graph.Node(node)
		e.states[node] = nodestate.New(info.InputCount, info.OutputCount, info.IsLazy)

		for i := 0; i < info.InputCount; i++ {
			for _, origin := range e.graph.Origins(graph.SocketRef{Node: node, Kind: graph.Input, Index: i}) {
				stack = append(stack, origin.Node)
			}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for node := range e.reachable {
		node := node
		g.Go(func() error {
			return e.initNodeSockets(node)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, s := range forceCompute {
		ns := e.states[s.Node]
		ns.Inputs[s.Index].ForceCompute = true
	}
	return nil
}

// initNodeSockets fills in one node's static input/output socket data. Safe
// to run concurrently with every other node's call: it only reads the
// shared Graph and Registry and writes exclusively to its own NodeState,
// which nothing else can see yet (the evaluator hasn't started scheduling).
//
// A type name the registry has never heard of is a configuration error —
// there is no socket-type information anywhere to default-construct its
// outputs from — and fails the whole run. This is distinct from a NodeType
// that IS registered but declares no Execute/MultiFunction: that one still
// carries its socket declarations, so execute_unknown_node's "default-
// construct every required output" fallback has a type to work with.
func (e *evaluator) initNodeSockets(node graph.NodeHandle) error {
	ns := e.states[node]
	info := e.graph.Node(node)
	nt, hasType := e.registry.Lookup(info.TypeName)
	if !hasType {
		return fmt.Errorf("evaluator: node %s: type %q is not registered", node, info.TypeName)
	}

	for i := 0; i < info.InputCount; i++ {
		in := &ns.Inputs[i]
		self := graph.SocketRef{Node: node, Kind: graph.Input, Index: i}
		origins := e.graph.Origins(self)

		var decl nodetype.SocketDecl
		if hasType && i < len(nt.Inputs) {
			decl = nt.Inputs[i]
			in.HasType = true
			in.Type = decl.Type
		}

		if len(origins) == 0 {
			// Unlinked-default convention: the socket is its own lone
			// origin, so default loading reuses the normal slot-fill
			// path instead of a special case in demand propagation.
			in.Origins = []graph.SocketRef{self}
		} else if decl.IsMultiInput {
			in.Origins = origins
		} else {
			// A single-input socket only ever has one real origin; keep
			// just the first link the graph reports.
			in.Origins = origins[:1]
		}
		in.InitSlots(len(in.Origins))
	}

	for i := 0; i < info.OutputCount; i++ {
		out := &ns.Outputs[i]
		self := graph.SocketRef{Node: node, Kind: graph.Output, Index: i}
		if hasType && i < len(nt.Outputs) {
			out.HasType = true
			out.Type = nt.Outputs[i].Type
		}
		users := 0
		for _, target := range e.graph.Targets(self) {
			if e.reachable[target.Node] {
				users++
			}
		}
		out.PotentialUsers = users
		if users == 0 {
			out.OutputUsage = nodestate.Unused
		}
	}
	return nil
}
