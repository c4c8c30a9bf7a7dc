package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/graphrun/pkg/schema"
)

func orderIDs(nodes []*schema.GraphNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestBuildOrder_ParentBeforeChild(t *testing.T) {
	// Declared child-first on purpose.
	nodes := []*schema.GraphNode{
		{ID: "end", Type: schema.NodeTypeEnd, ParentNode: "mid"},
		{ID: "mid", Type: "transform", ParentNode: "start"},
		{ID: "start", Type: schema.NodeTypeStart},
	}

	ordered := BuildOrder(nodes)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"start", "mid", "end"}, orderIDs(ordered))
}

func TestBuildOrder_EveryNodeExactlyOnce(t *testing.T) {
	nodes := []*schema.GraphNode{
		{ID: "a", Type: schema.NodeTypeStart},
		{ID: "b", Type: "loop", ParentNode: "a"},
		{ID: "c", Type: "text-processor", ParentNode: "b"},
		{ID: "d", Type: schema.NodeTypeEnd, ParentNode: "b"},
	}

	ordered := BuildOrder(nodes)
	require.Len(t, ordered, len(nodes))

	seen := map[string]int{}
	for _, n := range ordered {
		seen[n.ID]++
	}
	for _, n := range nodes {
		assert.Equal(t, 1, seen[n.ID], "node %s", n.ID)
	}
}

func TestBuildOrder_BranchesKeepDocumentOrder(t *testing.T) {
	nodes := []*schema.GraphNode{
		{ID: "root", Type: schema.NodeTypeStart},
		{ID: "left", Type: "transform", ParentNode: "root"},
		{ID: "right", Type: "transform", ParentNode: "root"},
	}

	ids := orderIDs(BuildOrder(nodes))
	assert.Equal(t, []string{"root", "left", "right"}, ids)
}

func TestBuildOrder_DanglingParentTreatedAsRoot(t *testing.T) {
	nodes := []*schema.GraphNode{
		{ID: "orphan", Type: "transform", ParentNode: "not-in-graph"},
		{ID: "start", Type: schema.NodeTypeStart},
	}

	ordered := BuildOrder(nodes)
	require.Len(t, ordered, 2)
	assert.Equal(t, "orphan", ordered[0].ID)
}

func TestBuildOrder_Deterministic(t *testing.T) {
	nodes := []*schema.GraphNode{
		{ID: "s", Type: schema.NodeTypeStart},
		{ID: "x", Type: "transform", ParentNode: "s"},
		{ID: "y", Type: "transform", ParentNode: "x"},
		{ID: "z", Type: schema.NodeTypeEnd, ParentNode: "y"},
	}

	first := orderIDs(BuildOrder(nodes))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, orderIDs(BuildOrder(nodes)))
	}
}

func TestBuildOrder_TransitiveChain(t *testing.T) {
	nodes := []*schema.GraphNode{
		{ID: "n5", ParentNode: "n4"},
		{ID: "n3", ParentNode: "n2"},
		{ID: "n1"},
		{ID: "n4", ParentNode: "n3"},
		{ID: "n2", ParentNode: "n1"},
	}

	ids := orderIDs(BuildOrder(nodes))
	assert.Equal(t, []string{"n1", "n2", "n3", "n4", "n5"}, ids)
	assert.Less(t, indexOf(ids, "n1"), indexOf(ids, "n5"))
}
