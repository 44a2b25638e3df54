package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, ids []string, edges [][2]string) *Graph {
	t.Helper()
	g := NewGraph("test")
	for _, id := range ids {
		require.NoError(t, g.AddNode(NewNode(id)))
	}
	for _, e := range edges {
		_, err := g.AddEdge(e[0], e[1])
		require.NoError(t, err)
	}
	return g
}

func TestAddNode(t *testing.T) {
	g := NewGraph("g")
	require.NoError(t, g.AddNode(NewNode("a")))
	assert.Len(t, g.Nodes(), 1)

	err := g.AddNode(NewNode("a"))
	assert.ErrorContains(t, err, "duplicate node id")

	err = g.AddNode(&Node{})
	assert.ErrorContains(t, err, "must have an id")

	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a", n.Name)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := buildGraph(t, []string{"a", "b"}, nil)
		e, err := g.AddEdge("a", "b")
		require.NoError(t, err)
		assert.True(t, e.Transmit, "edges transmit variables by default")
		assert.Equal(t, ExceptionNone, e.Exception)

		a, _ := g.Node("a")
		b, _ := g.Node("b")
		assert.Equal(t, []*Node{b}, a.Next())
		got, ok := b.EdgeFrom(a)
		require.True(t, ok)
		assert.Same(t, e, got)
	})

	t.Run("error cases", func(t *testing.T) {
		g := buildGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}})

		_, err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		_, err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		_, err = g.AddEdge("a", "b")
		assert.ErrorContains(t, err, "duplicate edge")
	})
}

func TestSeal_ComputesDepth(t *testing.T) {
	g := buildGraph(t,
		[]string{"root", "a", "b", "c", "orphan"},
		[][2]string{{"root", "a"}, {"a", "b"}, {"root", "b"}, {"b", "c"}, {"c", "a"}},
	)
	require.Error(t, g.Seal(), "sealing without a root must fail")
	require.NoError(t, g.SetRoot("root"))
	require.NoError(t, g.Seal())

	depth := func(id string) int {
		n, _ := g.Node(id)
		return n.Depth()
	}
	assert.Equal(t, 0, depth("root"))
	assert.Equal(t, 1, depth("a"))
	assert.Equal(t, 1, depth("b"))
	assert.Equal(t, 2, depth("c"))
	assert.Equal(t, 0, depth("orphan"))

	_, err := g.AddEdge("root", "c")
	assert.ErrorIs(t, err, ErrSealed)
}

func TestDetectCycles(t *testing.T) {
	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := buildGraph(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("cycle is detected", func(t *testing.T) {
		g := buildGraph(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}})
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})

	t.Run("self loop is detected", func(t *testing.T) {
		g := buildGraph(t, []string{"a"}, [][2]string{{"a", "a"}})
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

func TestParseExceptionRouting(t *testing.T) {
	cases := map[string]ExceptionRouting{
		"":           ExceptionNone,
		"none":       ExceptionNone,
		"on_error":   ExceptionOnly,
		"1":          ExceptionOnly,
		"ON_SUCCESS": SuccessOnly,
		"2":          SuccessOnly,
	}
	for in, want := range cases {
		got, err := ParseExceptionRouting(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseExceptionRouting("sometimes")
	assert.Error(t, err)

	assert.True(t, ExceptionOnly.Allows(true))
	assert.False(t, ExceptionOnly.Allows(false))
	assert.True(t, SuccessOnly.Allows(false))
	assert.False(t, SuccessOnly.Allows(true))
	assert.True(t, ExceptionNone.Allows(true))
}

func TestConfig(t *testing.T) {
	c := NewConfig()
	c.Set("b", "2")
	c.Set("a", " 1.9 ")
	c.Set("b", "3")

	assert.Equal(t, []string{"b", "a"}, c.Keys())
	assert.Equal(t, 3, c.Int("b", 0))
	assert.Equal(t, 1, c.Int("a", 0))
	assert.Equal(t, 7, c.Int("missing", 7))
	assert.Equal(t, "def", c.String("missing", "def"))
}
