package evaluator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/dagflow/internal/graph"
	"github.com/specialistvlad/dagflow/internal/nodetype"
	"github.com/specialistvlad/dagflow/internal/value"
)

func numberType() value.DataType {
	return value.DataType{Name: "Number", CtyType: cty.Number, Default: cty.NumberIntVal(0)}
}

// addOneType is a registered node type with one "in" input and one "out"
// output that adds one to its input.
func addOneType(calls *int64) nodetype.NodeType {
	nt := numberType()
	return nodetype.NodeType{
		Name:    "add_one",
		Inputs:  []nodetype.SocketDecl{{Name: "in", Type: nt, Default: nt.DefaultValue()}},
		Outputs: []nodetype.SocketDecl{{Name: "out", Type: nt}},
		Execute: func(ctx context.Context, p nodetype.Params) error {
			if calls != nil {
				atomic.AddInt64(calls, 1)
			}
			in, err := p.Input("in")
			if err != nil {
				return err
			}
			raw := in.Take()
			f, _ := raw.AsBigFloat().Float64()
			return p.SetOutput("out", value.NewSingle(nt, cty.NumberFloatVal(f+1)))
		},
	}
}

// sourceType is a zero-input node type whose single output is seeded via
// Request.Inputs — the group-input convention.
func sourceType() nodetype.NodeType {
	nt := numberType()
	return nodetype.NodeType{
		Name:    "source",
		Outputs: []nodetype.SocketDecl{{Name: "out", Type: nt}},
	}
}

// sinkType is a single-input node type with no outputs; the graph's
// requested "group output" sockets live on nodes of this shape.
func sinkType() nodetype.NodeType {
	nt := numberType()
	return nodetype.NodeType{
		Name:   "sink",
		Inputs: []nodetype.SocketDecl{{Name: "in", Type: nt, Default: nt.DefaultValue()}},
	}
}

func newTestGraph() (*graph.Builder, graph.NodeHandle, graph.NodeHandle, graph.NodeHandle) {
	b := graph.NewBuilder()
	src := b.AddNode("source", 0, 1, false)
	add := b.AddNode("add_one", 1, 1, false)
	sink := b.AddNode("sink", 1, 0, false)
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: add, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: add, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sink, Kind: graph.Input, Index: 0})
	return b, src, add, sink
}

func TestEvaluate_LinearChainProducesExpectedValue(t *testing.T) {
	value.ResetStats()
	var calls int64
	b, src, add, sink := newTestGraph()

	reg := nodetype.New()
	reg.Register(sourceType())
	reg.Register(addOneType(&calls))
	reg.Register(sinkType())

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(41)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	got := res.Values[0]
	raw := got.Take()
	f, _ := raw.AsBigFloat().Float64()
	assert.Equal(t, float64(42), f)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "add_one must run exactly once")
	_ = add
}

func TestEvaluate_UnrequestedBranchNeverExecutes(t *testing.T) {
	value.ResetStats()
	var usedCalls, unusedCalls int64

	reg := nodetype.New()
	reg.Register(sourceType())
	usedNt := addOneType(&usedCalls)
	usedNt.Name = "used_add"
	unusedNt := addOneType(&unusedCalls)
	unusedNt.Name = "unused_add"
	reg.Register(usedNt)
	reg.Register(unusedNt)
	reg.Register(sinkType())

	b := graph.NewBuilder()
	src := b.AddNode("source", 0, 1, false)
	used := b.AddNode("used_add", 1, 1, false)
	unused := b.AddNode("unused_add", 1, 1, false)
	sink := b.AddNode("sink", 1, 0, false)
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: used, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: unused, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: used, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sink, Kind: graph.Input, Index: 0})

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(1)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	res.Values[0].Release()

	assert.Equal(t, int64(1), atomic.LoadInt64(&usedCalls))
	assert.Equal(t, int64(0), atomic.LoadInt64(&unusedCalls), "unreachable-from-demand branch must never execute (laziness)")
}

func TestEvaluate_FanOutSharesSourceValueWithoutDoubleExecution(t *testing.T) {
	value.ResetStats()
	var callsA, callsB int64

	b := graph.NewBuilder()
	src := b.AddNode("source", 0, 1, false)
	a := b.AddNode("branch_a", 1, 1, false)
	bb := b.AddNode("branch_b", 1, 1, false)
	sinkA := b.AddNode("sink", 1, 0, false)
	sinkB := b.AddNode("sink", 1, 0, false)
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: a, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: bb, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: a, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sinkA, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: bb, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sinkB, Kind: graph.Input, Index: 0})

	reg := nodetype.New()
	reg.Register(sourceType())
	aNt := addOneType(&callsA)
	aNt.Name = "branch_a"
	bNt := addOneType(&callsB)
	bNt.Name = "branch_b"
	reg.Register(aNt)
	reg.Register(bNt)
	reg.Register(sinkType())

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(10)),
	}
	outputs := []graph.SocketRef{
		{Node: sinkA, Kind: graph.Input, Index: 0},
		{Node: sinkB, Kind: graph.Input, Index: 0},
	}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	require.Len(t, res.Values, 2)

	for _, v := range res.Values {
		raw := v.Take()
		f, _ := raw.AsBigFloat().Float64()
		assert.Equal(t, float64(11), f)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&callsA), "each branch consuming the fanned-out source value must run exactly once")
	assert.Equal(t, int64(1), atomic.LoadInt64(&callsB))
}

func TestEvaluate_ExecutorlessNodeTypeDefaultsOutputs(t *testing.T) {
	value.ResetStats()
	b := graph.NewBuilder()
	src := b.AddNode("source", 0, 1, false)
	unknown := b.AddNode("passthrough_stub", 1, 1, false)
	sink := b.AddNode("sink", 1, 0, false)
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: unknown, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: unknown, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sink, Kind: graph.Input, Index: 0})

	reg := nodetype.New()
	reg.Register(sourceType())
	// passthrough_stub declares its sockets but has neither Execute nor
	// MultiFunction set — the execute_unknown_node fallback path, which
	// default-constructs every required output instead of running any
	// behavior.
	nt := numberType()
	reg.Register(nodetype.NodeType{
		Name:    "passthrough_stub",
		Inputs:  []nodetype.SocketDecl{{Name: "in", Type: nt, Default: nt.DefaultValue()}},
		Outputs: []nodetype.SocketDecl{{Name: "out", Type: nt}},
	})
	reg.Register(sinkType())

	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(1)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	res.Values[0].Release()
}

// lazySelectType is a lazy node type with three inputs — flag, a, b — that
// requires flag first via LazyRequireInput, then requires only a or only b
// depending on flag's value, never both. It exercises two-phase input
// readiness: the branch it doesn't pick is never marked Required, so the
// node feeding it never runs.
func lazySelectType() nodetype.NodeType {
	nt := numberType()
	return nodetype.NodeType{
		Name: "lazy_select",
		Inputs: []nodetype.SocketDecl{
			{Name: "flag", Type: nt, Default: nt.DefaultValue()},
			{Name: "a", Type: nt, Default: nt.DefaultValue()},
			{Name: "b", Type: nt, Default: nt.DefaultValue()},
		},
		Outputs: []nodetype.SocketDecl{{Name: "result", Type: nt}},
		Execute: func(ctx context.Context, p nodetype.Params) error {
			lp := p.(nodetype.LazyParams)
			flag, ok := lp.LazyRequireInput("flag")
			if !ok {
				return nodetype.ErrInputNotReady
			}
			f, _ := flag.Take().AsBigFloat().Float64()
			branch := "b"
			if f != 0 {
				branch = "a"
			}
			v, ok := lp.LazyRequireInput(branch)
			if !ok {
				return nodetype.ErrInputNotReady
			}
			return p.SetOutput("result", value.NewSingle(nt, v.Take()))
		},
	}
}

func TestEvaluate_LazyNodeNeverRequiresTheBranchItDoesNotPick(t *testing.T) {
	value.ResetStats()
	var callsA, callsB int64

	reg := nodetype.New()
	reg.Register(sourceType())
	aAdd := addOneType(&callsA)
	aAdd.Name = "branch_a_add"
	bAdd := addOneType(&callsB)
	bAdd.Name = "branch_b_add"
	reg.Register(aAdd)
	reg.Register(bAdd)
	reg.Register(lazySelectType())
	reg.Register(sinkType())

	b := graph.NewBuilder()
	flagSrc := b.AddNode("source", 0, 1, false)
	aSrc := b.AddNode("source", 0, 1, false)
	bSrc := b.AddNode("source", 0, 1, false)
	aAddN := b.AddNode("branch_a_add", 1, 1, false)
	bAddN := b.AddNode("branch_b_add", 1, 1, false)
	sel := b.AddNode("lazy_select", 3, 1, true)
	sink := b.AddNode("sink", 1, 0, false)

	b.AddLink(graph.SocketRef{Node: aSrc, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: aAddN, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: bSrc, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: bAddN, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: flagSrc, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sel, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: aAddN, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sel, Kind: graph.Input, Index: 1})
	b.AddLink(graph.SocketRef{Node: bAddN, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sel, Kind: graph.Input, Index: 2})
	b.AddLink(graph.SocketRef{Node: sel, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sink, Kind: graph.Input, Index: 0})

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: flagSrc, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(0)),
		{Node: aSrc, Kind: graph.Output, Index: 0}:     value.NewSingle(nt, cty.NumberIntVal(100)),
		{Node: bSrc, Kind: graph.Output, Index: 0}:     value.NewSingle(nt, cty.NumberIntVal(6)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	got := res.Values[0]
	raw := got.Take()
	f, _ := raw.AsBigFloat().Float64()
	assert.Equal(t, float64(7), f, "flag==0 must pick branch b (6+1)")
	assert.Equal(t, int64(0), atomic.LoadInt64(&callsA), "the unpicked branch must never be required, so it never executes")
	assert.Equal(t, int64(1), atomic.LoadInt64(&callsB))
}

// sumWeightedType reads every value that arrived on its sole multi-input
// socket via InputAll and combines them with position-dependent weights, so
// a wrong ordering (e.g. arrival order instead of declared-link order)
// produces a different result than the one asserted below.
func sumWeightedType() nodetype.NodeType {
	nt := numberType()
	return nodetype.NodeType{
		Name:    "sum_weighted",
		Inputs:  []nodetype.SocketDecl{{Name: "ins", Type: nt, IsMultiInput: true}},
		Outputs: []nodetype.SocketDecl{{Name: "out", Type: nt}},
		Execute: func(ctx context.Context, p nodetype.Params) error {
			vs, err := p.InputAll("ins")
			if err != nil {
				return err
			}
			total := 0.0
			weight := 1.0
			for i := len(vs) - 1; i >= 0; i-- {
				f, _ := vs[i].Take().AsBigFloat().Float64()
				total += f * weight
				weight *= 10
			}
			return p.SetOutput("out", value.NewSingle(nt, cty.NumberFloatVal(total)))
		},
	}
}

func TestEvaluate_MultiInputPreservesDeclaredLinkOrder(t *testing.T) {
	value.ResetStats()
	reg := nodetype.New()
	reg.Register(sourceType())
	reg.Register(sumWeightedType())
	reg.Register(sinkType())

	b := graph.NewBuilder()
	src0 := b.AddNode("source", 0, 1, false)
	src1 := b.AddNode("source", 0, 1, false)
	src2 := b.AddNode("source", 0, 1, false)
	multi := b.AddNode("sum_weighted", 3, 1, false)
	sink := b.AddNode("sink", 1, 0, false)

	b.AddLink(graph.SocketRef{Node: src0, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: multi, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: src1, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: multi, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: src2, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: multi, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: multi, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sink, Kind: graph.Input, Index: 0})

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src0, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(2)),
		{Node: src1, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(3)),
		{Node: src2, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(4)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	raw := res.Values[0].Take()
	f, _ := raw.AsBigFloat().Float64()
	assert.Equal(t, float64(234), f, "weighted sum must reflect declared-link order (2,3,4), not seed-map iteration order")
}

func stringType() value.DataType {
	return value.DataType{Name: "String", CtyType: cty.String, Default: cty.StringVal("")}
}

func stringSinkType() nodetype.NodeType {
	st := stringType()
	return nodetype.NodeType{
		Name:   "string_sink",
		Inputs: []nodetype.SocketDecl{{Name: "in", Type: st, Default: st.DefaultValue()}},
	}
}

func TestEvaluate_ConvertsValueAcrossATypeMismatchedLink(t *testing.T) {
	value.ResetStats()
	reg := nodetype.New()
	reg.Register(sourceType())
	reg.Register(stringSinkType())

	b := graph.NewBuilder()
	src := b.AddNode("source", 0, 1, false)
	sink := b.AddNode("string_sink", 1, 0, false)
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sink, Kind: graph.Input, Index: 0})

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(42)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)

	got := res.Values[0]
	assert.True(t, got.Type().Equal(stringType()))
	assert.Equal(t, "42", got.Take().AsString())
}

func TestEvaluate_ForceComputeRunsABranchNoRequestedOutputNeeds(t *testing.T) {
	value.ResetStats()
	var usedCalls, forcedCalls int64

	reg := nodetype.New()
	reg.Register(sourceType())
	usedNt := addOneType(&usedCalls)
	usedNt.Name = "used_add"
	forcedNt := addOneType(&forcedCalls)
	forcedNt.Name = "forced_add"
	reg.Register(usedNt)
	reg.Register(forcedNt)
	reg.Register(sinkType())

	b := graph.NewBuilder()
	src := b.AddNode("source", 0, 1, false)
	used := b.AddNode("used_add", 1, 1, false)
	forced := b.AddNode("forced_add", 1, 1, false)
	sinkUsed := b.AddNode("sink", 1, 0, false)
	sinkForced := b.AddNode("sink", 1, 0, false)
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: used, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: src, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: forced, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: used, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sinkUsed, Kind: graph.Input, Index: 0})
	b.AddLink(graph.SocketRef{Node: forced, Kind: graph.Output, Index: 0}, graph.SocketRef{Node: sinkForced, Kind: graph.Input, Index: 0})

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(1)),
	}
	outputs := []graph.SocketRef{{Node: sinkUsed, Kind: graph.Input, Index: 0}}
	forceCompute := []graph.SocketRef{{Node: sinkForced, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:        b,
		Registry:     reg,
		Outputs:      outputs,
		Inputs:       seed,
		ForceCompute: forceCompute,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	res.Values[0].Release()

	assert.Equal(t, int64(1), atomic.LoadInt64(&usedCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&forcedCalls), "force-compute must run a branch even though no requested output needs it")
}

func TestEvaluate_ValueConservation(t *testing.T) {
	value.ResetStats()
	b, src, _, sink := newTestGraph()

	reg := nodetype.New()
	reg.Register(sourceType())
	reg.Register(addOneType(nil))
	reg.Register(sinkType())

	nt := numberType()
	seed := map[graph.SocketRef]value.Value{
		{Node: src, Kind: graph.Output, Index: 0}: value.NewSingle(nt, cty.NumberIntVal(1)),
	}
	outputs := []graph.SocketRef{{Node: sink, Kind: graph.Input, Index: 0}}

	res, err := Evaluate(context.Background(), Request{
		Graph:   b,
		Registry: reg,
		Outputs: outputs,
		Inputs:  seed,
	}, Options{Workers: 4, DebugAssertions: true})
	require.NoError(t, err)
	res.Values[0].Release()

	assert.Equal(t, value.Stats.Constructed, value.Stats.Destructed, "every constructed value must eventually be taken or released exactly once")
}
