package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls int
	failN int
	sent  map[rid.RID][]koi.Event
}

func newFakeBroadcaster(failFirstN int) *fakeBroadcaster {
	return &fakeBroadcaster{failN: failFirstN, sent: make(map[rid.RID][]koi.Event)}
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, target rid.RID, events []koi.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return errors.New("simulated transport failure")
	}
	f.sent[target] = append(f.sent[target], events...)
	return nil
}

func (f *fakeBroadcaster) sentTo(target rid.RID) []koi.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]koi.Event{}, f.sent[target]...)
}

func TestEventWorkerDeliversPendingEvents(t *testing.T) {
	q := queue.NewEventQueue(queue.DefaultFailureThreshold)
	peer := rid.New("koi-net.node", "peer-1")
	ev := koi.Event{RID: rid.New("example.thing", "a"), Type: koi.EventNew}
	q.Enqueue(peer, ev)

	rpcClient := newFakeBroadcaster(0)
	w := &EventWorker{Queue: q, RPC: rpcClient, Interval: 10 * time.Millisecond}

	w.sweep(context.Background(), time.Second)

	require.Equal(t, []koi.Event{ev}, rpcClient.sentTo(peer))
	require.Empty(t, q.Peers())
}

func TestEventWorkerRequeuesOnFailureAndPreservesOrder(t *testing.T) {
	q := queue.NewEventQueue(queue.DefaultFailureThreshold)
	peer := rid.New("koi-net.node", "peer-1")
	ev1 := koi.Event{RID: rid.New("example.thing", "a"), Type: koi.EventNew}
	q.Enqueue(peer, ev1)

	rpcClient := newFakeBroadcaster(1)
	w := &EventWorker{Queue: q, RPC: rpcClient}

	w.sweep(context.Background(), time.Second)
	require.Equal(t, 1, q.FailureCount(peer))
	require.Contains(t, q.Peers(), peer)

	w.sweep(context.Background(), time.Second)
	require.Equal(t, []koi.Event{ev1}, rpcClient.sentTo(peer))
	require.Equal(t, 0, q.FailureCount(peer))
}

func TestEventWorkerTriggersHandshakeRecoveryAtThreshold(t *testing.T) {
	q := queue.NewEventQueue(2)
	peer := rid.New("koi-net.node", "peer-1")

	rpcClient := newFakeBroadcaster(100)
	var recovered []rid.RID
	w := &EventWorker{
		Queue: q,
		RPC:   rpcClient,
		Handshake: func(target rid.RID) error {
			recovered = append(recovered, target)
			return nil
		},
	}

	for i := 0; i < 2; i++ {
		q.Enqueue(peer, koi.Event{RID: rid.New("example.thing", "a"), Type: koi.EventNew})
		w.sweep(context.Background(), time.Second)
	}

	require.Equal(t, []rid.RID{peer}, recovered)
}
