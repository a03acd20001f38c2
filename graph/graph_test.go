package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

func writeNode(t *testing.T, c cache.Cache, r rid.RID, profile koi.NodeProfile) {
	t.Helper()
	contents, err := json.Marshal(profile)
	require.NoError(t, err)
	b, err := koi.NewBundle(koi.Manifest{RID: r, Timestamp: time.Now()}, contents)
	require.NoError(t, err)
	require.NoError(t, c.Write(b))
}

func writeEdge(t *testing.T, c cache.Cache, r rid.RID, profile koi.EdgeProfile) {
	t.Helper()
	contents, err := json.Marshal(profile)
	require.NoError(t, err)
	b, err := koi.NewBundle(koi.Manifest{RID: r, Timestamp: time.Now()}, contents)
	require.NoError(t, err)
	require.NoError(t, c.Write(b))
}

func TestRebuildPopulatesNodesAndEdges(t *testing.T) {
	c := cache.NewMemoryCache()
	nodeA := rid.NewNodeRID("a")
	nodeB := rid.NewNodeRID("b")

	writeNode(t, c, nodeA, koi.NodeProfile{NodeType: koi.NodeFull, Provides: koi.Provides{State: []rid.Type{"doc"}}})
	writeNode(t, c, nodeB, koi.NodeProfile{NodeType: koi.NodePartial})

	edge := koi.EdgeProfile{Source: nodeA, Target: nodeB, Type: koi.EdgeWebhook, RIDTypes: []rid.Type{"doc"}, Status: koi.EdgeApproved}
	writeEdge(t, c, rid.NewEdgeRID("e1"), edge)

	g := New()
	require.NoError(t, g.Rebuild(c))

	assert.Len(t, g.Nodes(), 2)

	got, ok := g.GetEdgeProfile(nodeA, nodeB)
	require.True(t, ok)
	assert.Equal(t, koi.EdgeApproved, got.Status)

	neighbors := g.GetNeighbors(nodeA, DirectionOut, "doc")
	assert.Equal(t, []rid.RID{nodeB}, neighbors)
}

func TestGetStateProvidersRequiresFullAndState(t *testing.T) {
	c := cache.NewMemoryCache()
	fullProvider := rid.NewNodeRID("full")
	partialWithState := rid.NewNodeRID("partial")
	fullWithoutState := rid.NewNodeRID("full2")

	writeNode(t, c, fullProvider, koi.NodeProfile{NodeType: koi.NodeFull, Provides: koi.Provides{State: []rid.Type{"doc"}}})
	writeNode(t, c, partialWithState, koi.NodeProfile{NodeType: koi.NodePartial, Provides: koi.Provides{State: []rid.Type{"doc"}}})
	writeNode(t, c, fullWithoutState, koi.NodeProfile{NodeType: koi.NodeFull})

	g := New()
	require.NoError(t, g.Rebuild(c))

	providers := g.GetStateProviders("doc")
	assert.Equal(t, []rid.RID{fullProvider}, providers)
}

func TestGetNeighborsRespectsEdgeStatus(t *testing.T) {
	c := cache.NewMemoryCache()
	nodeA := rid.NewNodeRID("a")
	nodeB := rid.NewNodeRID("b")
	writeNode(t, c, nodeA, koi.NodeProfile{})
	writeNode(t, c, nodeB, koi.NodeProfile{})

	writeEdge(t, c, rid.NewEdgeRID("e1"), koi.EdgeProfile{
		Source: nodeA, Target: nodeB, RIDTypes: []rid.Type{"doc"}, Status: koi.EdgeProposed,
	})

	g := New()
	require.NoError(t, g.Rebuild(c))

	assert.Empty(t, g.GetNeighbors(nodeA, DirectionOut, "doc"))
}

func TestRebuildIsPureFunctionOfCache(t *testing.T) {
	c := cache.NewMemoryCache()
	nodeA := rid.NewNodeRID("a")
	writeNode(t, c, nodeA, koi.NodeProfile{NodeType: koi.NodeFull})

	g1 := New()
	require.NoError(t, g1.Rebuild(c))
	g2 := New()
	require.NoError(t, g2.Rebuild(c))

	assert.Equal(t, g1.Nodes(), g2.Nodes())
}

func TestFindCyclesDetectsMutualSubscription(t *testing.T) {
	c := cache.NewMemoryCache()
	nodeA := rid.NewNodeRID("a")
	nodeB := rid.NewNodeRID("b")
	writeNode(t, c, nodeA, koi.NodeProfile{})
	writeNode(t, c, nodeB, koi.NodeProfile{})

	writeEdge(t, c, rid.NewEdgeRID("e1"), koi.EdgeProfile{
		Source: nodeA, Target: nodeB, RIDTypes: []rid.Type{"doc"}, Status: koi.EdgeApproved,
	})
	writeEdge(t, c, rid.NewEdgeRID("e2"), koi.EdgeProfile{
		Source: nodeB, Target: nodeA, RIDTypes: []rid.Type{"doc"}, Status: koi.EdgeApproved,
	})

	g := New()
	require.NoError(t, g.Rebuild(c))

	cycles := g.FindCycles("doc")
	assert.Len(t, cycles, 1)
}

func TestFindCyclesNoneWhenAcyclic(t *testing.T) {
	c := cache.NewMemoryCache()
	nodeA := rid.NewNodeRID("a")
	nodeB := rid.NewNodeRID("b")
	writeNode(t, c, nodeA, koi.NodeProfile{})
	writeNode(t, c, nodeB, koi.NodeProfile{})

	writeEdge(t, c, rid.NewEdgeRID("e1"), koi.EdgeProfile{
		Source: nodeA, Target: nodeB, RIDTypes: []rid.Type{"doc"}, Status: koi.EdgeApproved,
	})

	g := New()
	require.NoError(t, g.Rebuild(c))

	assert.Empty(t, g.FindCycles("doc"))
}
