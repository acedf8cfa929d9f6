package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_AddNodeAndLink(t *testing.T) {
	b := NewBuilder()
	src := b.AddNode("constant", 0, 1, false)
	dst := b.AddNode("identity", 1, 1, false)

	out := SocketRef{Node: src, Kind: Output, Index: 0}
	in := SocketRef{Node: dst, Kind: Input, Index: 0}
	b.AddLink(out, in)

	assert.ElementsMatch(t, []SocketRef{out}, b.Origins(in))
	assert.ElementsMatch(t, []SocketRef{in}, b.Targets(out))
	assert.Len(t, b.Nodes(), 2)
}

func TestBuilder_UnlinkedInputHasNoOrigins(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("identity", 1, 1, false)
	in := SocketRef{Node: n, Kind: Input, Index: 0}

	assert.Empty(t, b.Origins(in))
}

func TestBuilder_AddLink_PanicsOnWrongKind(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("identity", 1, 1, false)
	a := SocketRef{Node: n, Kind: Input, Index: 0}
	c := SocketRef{Node: n, Kind: Input, Index: 0}

	assert.Panics(t, func() { b.AddLink(a, c) })
}

func TestBuilder_AddLink_PanicsOnOutOfRangeIndex(t *testing.T) {
	b := NewBuilder()
	n := b.AddNode("identity", 1, 1, false)
	out := SocketRef{Node: n, Kind: Output, Index: 5}
	in := SocketRef{Node: n, Kind: Input, Index: 0}

	assert.Panics(t, func() { b.AddLink(out, in) })
}

func TestBuilder_FanOut(t *testing.T) {
	b := NewBuilder()
	src := b.AddNode("constant", 0, 1, false)
	d1 := b.AddNode("add", 1, 1, false)
	d2 := b.AddNode("add", 1, 1, false)

	out := SocketRef{Node: src, Kind: Output, Index: 0}
	in1 := SocketRef{Node: d1, Kind: Input, Index: 0}
	in2 := SocketRef{Node: d2, Kind: Input, Index: 0}
	b.AddLink(out, in1)
	b.AddLink(out, in2)

	require.Len(t, b.Targets(out), 2)
	assert.ElementsMatch(t, []SocketRef{in1, in2}, b.Targets(out))
}
