package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

type recordingBroadcaster struct {
	target rid.RID
	events []koi.Event
	err    error
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, target rid.RID, events []koi.Event) error {
	b.target = target
	b.events = events
	return b.err
}

func TestHandshakeSendsForgetThenNewOfOwnProfile(t *testing.T) {
	c := cache.NewMemoryCache()
	selfRID := rid.New("koi-net.node", "self")
	contents := []byte(`{"node_type":"FULL"}`)
	bundle, err := koi.NewBundle(koi.Manifest{RID: selfRID, Timestamp: time.Now()}, contents)
	require.NoError(t, err)
	require.NoError(t, c.Write(bundle))

	rpcClient := &recordingBroadcaster{}
	target := rid.New("koi-net.node", "peer-1")
	h := &Handshaker{RPC: rpcClient, Cache: c, SelfRID: selfRID}

	require.NoError(t, h.Handshake(target))
	require.Equal(t, target, rpcClient.target)
	require.Len(t, rpcClient.events, 2)
	require.Equal(t, koi.EventForget, rpcClient.events[0].Type)
	require.Equal(t, selfRID, rpcClient.events[0].RID)
	require.Equal(t, koi.EventNew, rpcClient.events[1].Type)
	require.Equal(t, selfRID, rpcClient.events[1].RID)
	require.NotNil(t, rpcClient.events[1].Bundle)
}

func TestHandshakeFailsWithoutOwnProfileInCache(t *testing.T) {
	c := cache.NewMemoryCache()
	h := &Handshaker{RPC: &recordingBroadcaster{}, Cache: c, SelfRID: rid.New("koi-net.node", "self")}
	require.Error(t, h.Handshake(rid.New("koi-net.node", "peer-1")))
}

func TestHandshakePropagatesBroadcastFailure(t *testing.T) {
	c := cache.NewMemoryCache()
	selfRID := rid.New("koi-net.node", "self")
	bundle, err := koi.NewBundle(koi.Manifest{RID: selfRID, Timestamp: time.Now()}, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, c.Write(bundle))

	wantErr := errors.New("transport down")
	h := &Handshaker{RPC: &recordingBroadcaster{err: wantErr}, Cache: c, SelfRID: selfRID}
	require.ErrorIs(t, h.Handshake(rid.New("koi-net.node", "peer-1")), wantErr)
}
