package evaluator

import (
	"fmt"

	"github.com/specialistvlad/dagflow/internal/nodestate"
)

// runDebugAssertions checks internal consistency properties this package
// guarantees as
// invariants rather than input-dependent behavior, after a run has fully
// drained. It only runs when Options.DebugAssertions is set — these walk
// every reachable node's full state and are not needed for a correct
// production run, matching the source evaluator's #ifdef DEBUG-gated
// assertions.
func (e *evaluator) runDebugAssertions() error {
	for node, ns := range e.states {
		ns.Lock()
		finished := ns.NodeHasFinished
		if finished {
			for i, out := range ns.Outputs {
				if out.OutputUsageForExecution == nodestate.Required && !out.HasBeenComputed {
					ns.Unlock()
					return fmt.Errorf("evaluator: node %s finished without computing required output #%d", node, i)
				}
			}
			for i, in := range ns.Inputs {
				if in.HasType && in.Usage == nodestate.Maybe {
					ns.Unlock()
					return fmt.Errorf("evaluator: node %s finished with input #%d still undecided (Maybe)", node, i)
				}
			}
		}
		ns.Unlock()
	}
	return nil
}
