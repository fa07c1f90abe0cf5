package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elephantgerald/bartleby-sub001/internal/graph"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

func item(id string, status types.Status) *types.WorkItem {
	return &types.WorkItem{
		ID:        id,
		Title:     "item " + id,
		Status:    status,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// chainGraph builds A <- B <- C (B depends on A, C depends on B).
func chainGraph() *graph.Graph {
	g := graph.New()
	g.AddNode("A", "A")
	g.AddNode("B", "B")
	g.AddNode("C", "C")
	g.AddDependency("B", "A")
	g.AddDependency("C", "B")
	return g
}

func TestReadyChain(t *testing.T) {
	items := []*types.WorkItem{
		item("A", types.StatusComplete),
		item("B", types.StatusPending),
		item("C", types.StatusPending),
	}

	res := New(chainGraph(), items).Resolve()

	require.Len(t, res.ReadyItems, 1)
	assert.Equal(t, "B", res.ReadyItems[0].ID)
	require.Len(t, res.BlockedItems, 1)
	assert.Equal(t, "C", res.BlockedItems[0].ID)
	assert.Empty(t, res.Cycles)
}

func TestTwoNodeCycle(t *testing.T) {
	g := graph.New()
	g.AddNode("A", "A")
	g.AddNode("B", "B")
	g.AddDependency("A", "B")
	g.AddDependency("B", "A")

	items := []*types.WorkItem{
		item("A", types.StatusReady),
		item("B", types.StatusReady),
	}

	res := New(g, items).Resolve()

	assert.Empty(t, res.ReadyItems)
	require.Len(t, res.Cycles, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, res.Cycles[0])
	assert.Equal(t, []string{"A", "B"}, res.CyclicItems)
}

func TestSelfLoopIsCycle(t *testing.T) {
	g := graph.New()
	g.AddNode("A", "A")
	g.AddDependency("A", "A")

	res := New(g, []*types.WorkItem{item("A", types.StatusReady)}).Resolve()

	assert.Empty(t, res.ReadyItems)
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, []string{"A"}, res.Cycles[0])
}

func TestThreeNodeCycle(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"A", "B", "C"} {
		g.AddNode(id, id)
	}
	g.AddDependency("A", "B")
	g.AddDependency("B", "C")
	g.AddDependency("C", "A")

	cycles := New(g, nil).DetectCycles()
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0], 3)
}

func TestIsReadyMatchesGetReadyItems(t *testing.T) {
	items := []*types.WorkItem{
		item("A", types.StatusComplete),
		item("B", types.StatusPending),
		item("C", types.StatusReady),
		item("D", types.StatusInProgress),
	}
	g := chainGraph()
	g.AddNode("D", "D")

	r := New(g, items)
	ready := map[string]bool{}
	for _, it := range r.GetReadyItems() {
		ready[it.ID] = true
	}
	for _, it := range items {
		assert.Equal(t, ready[it.ID], r.IsReady(it.ID), "item %s", it.ID)
	}
}

func TestIncompleteDependencyBlocks(t *testing.T) {
	statuses := []types.Status{
		types.StatusPending, types.StatusReady, types.StatusInProgress,
		types.StatusBlocked, types.StatusFailed,
	}
	for _, depStatus := range statuses {
		items := []*types.WorkItem{
			item("A", depStatus),
			item("B", types.StatusPending),
		}
		r := New(chainGraph(), items)
		assert.False(t, r.IsReady("B"), "dep status %s must block", depStatus)
	}
}

func TestDanglingDependencyBlocks(t *testing.T) {
	// B depends on A but no item A exists in the store.
	r := New(chainGraph(), []*types.WorkItem{item("B", types.StatusPending)})
	assert.False(t, r.IsReady("B"))
}

func TestItemOutsideGraphIsReady(t *testing.T) {
	r := New(graph.New(), []*types.WorkItem{item("X", types.StatusPending)})
	assert.True(t, r.IsReady("X"), "no declared dependencies means ready")
}

func TestGetDependencyChain(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"A", "B", "C", "D"} {
		g.AddNode(id, id)
	}
	g.AddDependency("D", "C")
	g.AddDependency("C", "B")
	g.AddDependency("C", "A")
	g.AddDependency("D", "A") // duplicated transitively

	chain := New(g, nil).GetDependencyChain("D")
	assert.Equal(t, []string{"A", "B", "C"}, chain, "deepest first, deduplicated")
}

func TestReadyItemsOrderedByCreation(t *testing.T) {
	early := item("late-id", types.StatusReady)
	early.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := item("early-id", types.StatusReady)
	late.CreatedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	ready := New(graph.New(), []*types.WorkItem{late, early}).GetReadyItems()
	require.Len(t, ready, 2)
	assert.Equal(t, "late-id", ready[0].ID, "older item first regardless of id")
}

func TestEmptyGraphEmptyItems(t *testing.T) {
	res := New(graph.New(), nil).Resolve()
	assert.Empty(t, res.ReadyItems)
	assert.Empty(t, res.BlockedItems)
	assert.Empty(t, res.Cycles)
}
