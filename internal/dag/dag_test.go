package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specJSON(nodes string) []byte {
	return []byte(`{"nodes":[` + nodes + `]}`)
}

func TestBuild_LinearChain(t *testing.T) {
	spec := specJSON(`
		{"id":"A","handler":"echo"},
		{"id":"B","handler":"echo","dependencies":["A"]},
		{"id":"C","handler":"echo","dependencies":["B"]}
	`)

	d, err := Build(spec)
	require.NoError(t, err)
	require.Len(t, d.Nodes, 3)
	assert.Equal(t, []string{"A"}, d.RootNodes())

	order := d.TopologicalSort()
	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	assert.Less(t, index["A"], index["B"])
	assert.Less(t, index["B"], index["C"])
}

func TestBuild_Deterministic(t *testing.T) {
	spec := specJSON(`
		{"id":"A","handler":"echo"},
		{"id":"B","handler":"echo"},
		{"id":"C","handler":"echo","dependencies":["A","B"]}
	`)

	d, err := Build(spec)
	require.NoError(t, err)

	first := d.TopologicalSort()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, d.TopologicalSort())
	}
}

func TestBuild_EmptyWorkflow(t *testing.T) {
	_, err := Build(specJSON(``))
	assert.ErrorIs(t, err, ErrEmptyWorkflow)
}

func TestBuild_DuplicateNodeID(t *testing.T) {
	spec := specJSON(`
		{"id":"A","handler":"echo"},
		{"id":"A","handler":"echo"}
	`)
	_, err := Build(spec)
	var dup *DuplicateNodeIDError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "A", dup.NodeID)
}

func TestBuild_InvalidNodeReference(t *testing.T) {
	spec := specJSON(`{"id":"A","handler":"echo","dependencies":["ghost"]}`)
	_, err := Build(spec)
	var ref *InvalidNodeReferenceError
	require.True(t, errors.As(err, &ref))
	assert.Equal(t, "ghost", ref.RefID)
}

func TestBuild_CyclicDependency(t *testing.T) {
	spec := specJSON(`
		{"id":"A","handler":"echo","dependencies":["B"]},
		{"id":"B","handler":"echo","dependencies":["A"]}
	`)
	_, err := Build(spec)
	var cyc *CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.ElementsMatch(t, []string{"A", "B"}, cyc.OffendingNodeIDs)
}

func TestTopologicalSort_FanOutFanIn(t *testing.T) {
	spec := specJSON(`
		{"id":"A","handler":"echo"},
		{"id":"B","handler":"echo","dependencies":["A"]},
		{"id":"C","handler":"echo","dependencies":["A"]},
		{"id":"D","handler":"echo","dependencies":["A"]},
		{"id":"E","handler":"echo","dependencies":["B","C","D"]}
	`)
	d, err := Build(spec)
	require.NoError(t, err)

	order := d.TopologicalSort()
	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	for _, dep := range []string{"B", "C", "D"} {
		assert.Less(t, index["A"], index[dep])
		assert.Less(t, index[dep], index["E"])
	}
}

func TestDependentsAndDependencies(t *testing.T) {
	spec := specJSON(`
		{"id":"A","handler":"echo"},
		{"id":"B","handler":"echo","dependencies":["A"]}
	`)
	d, err := Build(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, d.Dependents("A"))
	assert.Equal(t, []string{"A"}, d.Dependencies("B"))
}
