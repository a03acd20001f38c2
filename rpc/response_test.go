package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
)

func testResponseHandler(t *testing.T) (*ResponseHandler, cache.Cache) {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	c := cache.NewMemoryCache()
	return &ResponseHandler{
		KeyPair:    kp,
		Cache:      c,
		SelfRID:    kp.NodeRID(),
		KobjQueue:  queue.NewKobjQueue(16),
		PollBuffer: queue.NewPollEventBuffer(),
	}, c
}

func writeBundle(t *testing.T, c cache.Cache, r rid.RID, contents []byte) {
	t.Helper()
	b, err := koi.NewBundle(koi.Manifest{RID: r, Timestamp: time.Now()}, contents)
	require.NoError(t, err)
	require.NoError(t, c.Write(b))
}

func TestResponseHandlerBroadcastEnqueuesEachEvent(t *testing.T) {
	h, _ := testResponseHandler(t)
	sender := rid.New("koi-net.node", "peer-1")
	r1 := rid.New("example.thing", "a")
	r2 := rid.New("example.thing", "b")

	h.Broadcast(sender, []koi.Event{
		{RID: r1, Type: koi.EventNew},
		{RID: r2, Type: koi.EventNew},
	})

	ctx := context.Background()

	ko1, ok := h.KobjQueue.Get(ctx)
	require.True(t, ok)
	require.Equal(t, r1, ko1.RID)
	require.Equal(t, koi.SourceExternal, ko1.Source)
	require.NotNil(t, ko1.SourcePeer)
	require.Equal(t, sender, *ko1.SourcePeer)

	ko2, ok := h.KobjQueue.Get(ctx)
	require.True(t, ok)
	require.Equal(t, r2, ko2.RID)
}

func TestResponseHandlerPollDrainsBufferedEvents(t *testing.T) {
	h, _ := testResponseHandler(t)
	requester := rid.New("koi-net.node", "peer-1")
	ev := koi.Event{RID: rid.New("example.thing", "a"), Type: koi.EventNew}
	h.PollBuffer.Append(requester, ev)

	drained := h.Poll(requester, 0)
	require.Len(t, drained, 1)
	require.Equal(t, ev.RID, drained[0].RID)

	require.Empty(t, h.Poll(requester, 0))
}

func TestResponseHandlerFetchRIDsFiltersByType(t *testing.T) {
	h, c := testResponseHandler(t)
	nodeRID := rid.New("koi-net.node", "n1")
	thingRID := rid.New("example.thing", "a")
	writeBundle(t, c, nodeRID, []byte(`{}`))
	writeBundle(t, c, thingRID, []byte(`{}`))

	all, err := h.FetchRIDs(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := h.FetchRIDs([]rid.Type{rid.TypeKoiNetNode})
	require.NoError(t, err)
	require.Equal(t, []rid.RID{nodeRID}, filtered)
}

func TestResponseHandlerFetchManifestsReportsNotFound(t *testing.T) {
	h, c := testResponseHandler(t)
	present := rid.New("example.thing", "present")
	missing := rid.New("example.thing", "missing")
	writeBundle(t, c, present, []byte(`{"n":1}`))

	manifests, notFound, err := h.FetchManifests(nil, []rid.RID{present, missing})
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.Equal(t, present, manifests[0].RID)
	require.Equal(t, []rid.RID{missing}, notFound)
}

func TestResponseHandlerFetchBundlesReportsNotFound(t *testing.T) {
	h, c := testResponseHandler(t)
	present := rid.New("example.thing", "present")
	missing := rid.New("example.thing", "missing")
	writeBundle(t, c, present, []byte(`{"n":1}`))

	bundles, notFound, err := h.FetchBundles([]rid.RID{present, missing})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Equal(t, present, bundles[0].Manifest.RID)
	require.Equal(t, []rid.RID{missing}, notFound)
}

func TestResponseHandlerFetchRIDsUnionsTypesWithoutDuplicates(t *testing.T) {
	h, c := testResponseHandler(t)
	nodeRID := rid.New("koi-net.node", "n1")
	edgeRID := rid.New("koi-net.edge", "e1")
	writeBundle(t, c, nodeRID, []byte(`{}`))
	writeBundle(t, c, edgeRID, []byte(`{}`))

	manifests, notFound, err := h.FetchManifests([]rid.Type{rid.TypeKoiNetNode, rid.TypeKoiNetEdge}, []rid.RID{nodeRID})
	require.NoError(t, err)
	require.Empty(t, notFound)
	require.Len(t, manifests, 2)
}
