package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodestate"
	"github.com/specialistvlad/dagflow/internal/nodetype"
	"github.com/specialistvlad/dagflow/internal/value"
)

// runNodeChain drives one node through repeated preprocess/execute/
// postprocess cycles until postprocess decides no immediate rerun is
// needed. A rerun happens inline, in the same goroutine, rather than going
// back through the worker pool — same-thread chaining, avoiding a pool
// round-trip for a node that was rescheduled while it was already running.
// When the node finishes this round but postprocess's effects newly
// schedule one or more distinct nodes (a consumer that just became
// Required, say), the first of them also runs inline here; only the rest
// are pushed to the worker pool, mirroring run_node_from_task_pool's
// next_node_to_run.
func (e *evaluator) runNodeChain(ctx context.Context, node graph.NodeHandle) {
	for {
		snap, preEffs, shouldRun := e.preprocess(node)
		e.runEffects(preEffs)

		var completed bool
		if shouldRun {
			completed = e.runExecute(ctx, node, snap)
		}

		postEffs, runAgain := e.postprocess(node, snap, completed)
		if runAgain {
			e.runEffects(postEffs)
			continue
		}

		enqueued := e.drainEffects(postEffs)
		if len(enqueued) == 0 {
			return
		}
		for _, n := range enqueued[1:] {
			e.submitTask(n)
		}
		node = enqueued[0]
	}
}

// preprocess is node_task_run's preprocess phase: on a non-lazy node's
// first entry, mark every input Required; then, if the node hasn't
// already finished and every Required input is filled, freeze a snapshot of
// input values and per-output demand for Execute to read.
func (e *evaluator) preprocess(node graph.NodeHandle) (*execSnapshot, []effect, bool) {
	ns := e.states[node]
	info := e.graph.Node(node)
	nt, _ := e.registry.Lookup(info.TypeName)

	ns.Lock()
	defer ns.Unlock()

	ns.ScheduleState = nodestate.Running

	var effs []effect
	if !ns.IsLazy && !ns.NonLazyInputsHandled {
		ns.NonLazyInputsHandled = true
		for i := range ns.Inputs {
			effs = append(effs, e.setInputRequired(ns, node, i)...)
		}
	}

	if ns.NodeHasFinished || ns.MissingRequiredInputs != 0 {
		return nil, effs, false
	}

	snap := &execSnapshot{
		e:        e,
		node:     node,
		nt:       nt,
		single:   make(map[string]value.Value),
		multi:    make(map[string][]value.Value),
		required: make(map[string]bool),
		outputs:  make(map[string]value.Value),
		outSet:   make(map[string]bool),
	}

	hasExecutor := nt.Execute != nil || nt.MultiFunction != nil
	for i := range ns.Inputs {
		in := &ns.Inputs[i]
		if in.Usage != nodestate.Required || in.WasReadyForExecution || !in.IsFullyFilled() {
			continue
		}

		if !hasExecutor {
			// Nothing reads this node's inputs: it's either a plain
			// result sink (Request.Outputs/ForceCompute target) or a
			// registered node type that declares neither Execute nor
			// MultiFunction. A requested output's
			// slot is left alone for extractGroupOutputs to take later;
			// anything else is released now so its allocation is never
			// permanently stranded in a slot nobody will ever look at.
			self := graph.SocketRef{Node: node, Kind: graph.Input, Index: i}
			if e.resultSockets[self] {
				continue
			}
			in.WasReadyForExecution = true
			if in.IsMultiInput() {
				for _, v := range in.TakeAll() {
					v.Release()
				}
			} else if v, ok := in.TakeSingle(); ok {
				v.Release()
			}
			continue
		}

		in.WasReadyForExecution = true
		name := socketNameAt(nt.Inputs, i)
		if in.IsMultiInput() {
			snap.multi[name] = in.TakeAll()
		} else {
			v, _ := in.TakeSingle()
			snap.single[name] = v
		}
	}

	for i := range ns.Outputs {
		out := &ns.Outputs[i]
		out.OutputUsageForExecution = out.OutputUsage
		snap.required[socketNameAt(nt.Outputs, i)] = out.OutputUsage == nodestate.Required
	}

	return snap, effs, true
}

// runExecute calls the node type's behavior against snap: a registered
// Execute callback, a MultiFunction, or — for a node type that declares
// neither, execute_unknown_node's fallback — default-constructing
// every required output. Returns false if a lazy node's Execute returned
// ErrInputNotReady, meaning it must be rescheduled rather than treated as
// finished.
func (e *evaluator) runExecute(ctx context.Context, node graph.NodeHandle, snap *execSnapshot) bool {
	start := time.Now()
	params := newParamsProvider(snap)

	var err error
	switch {
	case snap.nt.Execute != nil:
		err = snap.nt.Execute(ctx, params)
	case snap.nt.MultiFunction != nil:
		err = runMultiFunction(snap)
	default:
		defaultConstructOutputs(snap)
	}

	if e.logger != nil {
		e.logger.LogExecutionTime(node, time.Since(start))
	}

	if errors.Is(err, nodetype.ErrInputNotReady) {
		return false
	}
	if err != nil {
		debugLog(ctx, node, "node execution failed", "error", err)
		defaultConstructOutputs(snap)
		return true
	}
	return true
}

// runMultiFunction gathers a MultiFunction node's inputs in socket-
// declaration order and calls it once, storing each returned value — one
// or more, per the multi-function's declared Results — under its
// corresponding declared output's name, positionally.
func runMultiFunction(snap *execSnapshot) error {
	args := make([]value.Value, len(snap.nt.Inputs))
	for i, decl := range snap.nt.Inputs {
		if v, ok := snap.single[decl.Name]; ok {
			args[i] = v
		} else {
			args[i] = decl.Default.Copy()
		}
	}
	outs, err := snap.nt.MultiFunction.Call(args)
	if err != nil {
		return err
	}
	for i, out := range outs {
		if i >= len(snap.nt.Outputs) {
			out.Release()
			continue
		}
		name := snap.nt.Outputs[i].Name
		snap.outputs[name] = out
		snap.outSet[name] = true
	}
	return nil
}

// defaultConstructOutputs fills every required output that Execute didn't
// set with its declared DataType's default value, mirroring
// execute_unknown_node's behavior for both a node type that declares
// neither Execute nor MultiFunction and a node whose Execute or
// MultiFunction returned an error.
func defaultConstructOutputs(snap *execSnapshot) {
	for _, decl := range snap.nt.Outputs {
		if snap.outSet[decl.Name] {
			continue
		}
		if !snap.required[decl.Name] {
			continue
		}
		snap.outputs[decl.Name] = decl.Type.DefaultValue()
		snap.outSet[decl.Name] = true
	}
}

// postprocess is node_task_run's postprocess phase. It always runs,
// whether or not Execute actually ran this cycle, so the schedule
// state machine is resolved either way. On a completed run, every produced
// output is recorded and handed to forwardOutput; the node only finishes —
// finish_node_if_possible's gate — once every output is computed or Unused
// and every force-compute input has actually arrived (NodeState.IsFinishable),
// which is how a MultiFunction node with more than one declared output gets
// retried instead of being marked done after only its first output landed.
// Finishing also marks any input never marked Required as Unused. It then
// resolves Running -> NotScheduled, or Running -> Scheduled (+ re-run) if the
// node was rescheduled while it ran.
func (e *evaluator) postprocess(node graph.NodeHandle, snap *execSnapshot, completed bool) ([]effect, bool) {
	ns := e.states[node]

	ns.Lock()
	var toForward map[string]value.Value
	var effs []effect
	if completed && !ns.NodeHasFinished {
		for i := range ns.Outputs {
			out := &ns.Outputs[i]
			name := socketNameAt(snap.nt.Outputs, i)
			if v, ok := snap.outputs[name]; ok {
				out.HasBeenComputed = true
				if toForward == nil {
					toForward = make(map[string]value.Value)
				}
				toForward[name] = v
			}
		}

		if ns.IsFinishable() {
			ns.NodeHasFinished = true
			ns.HasBeenExecuted = true
			for i := range ns.Inputs {
				if ns.Inputs[i].Usage == nodestate.Maybe {
					effs = append(effs, e.setInputUnused(ns, i)...)
				}
			}
		}
	}

	runAgain := false
	switch ns.ScheduleState {
	case nodestate.Running:
		ns.ScheduleState = nodestate.NotScheduled
	case nodestate.RunningAndRescheduled:
		ns.ScheduleState = nodestate.Scheduled
		runAgain = true
	}
	ns.Unlock()

	for i, decl := range namesOf(snap) {
		if v, ok := toForward[decl]; ok {
			origin := graph.SocketRef{Node: node, Kind: graph.Output, Index: i}
			effs = append(effs, e.forwardOutput(origin, v)...)
		}
	}

	return effs, runAgain
}

// namesOf returns the node type's output names in declaration (index)
// order, or nil when snap is nil (node didn't run this cycle).
func namesOf(snap *execSnapshot) []string {
	if snap == nil {
		return nil
	}
	names := make([]string, len(snap.nt.Outputs))
	for i, d := range snap.nt.Outputs {
		names[i] = d.Name
	}
	return names
}

// socketNameAt returns decls[i].Name, or "" for an index beyond the
// declaration list (a graph node may have more sockets than its type
// declares).
func socketNameAt(decls []nodetype.SocketDecl, i int) string {
	if i < len(decls) {
		return decls[i].Name
	}
	return ""
}
