package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

func TestEventQueueEnqueueDrainPreservesOrder(t *testing.T) {
	q := NewEventQueue(3)
	peer := rid.NewNodeRID("peer1")

	ev1 := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}
	ev2 := koi.Event{RID: rid.NewNodeRID("r2"), Type: koi.EventUpdate}

	q.Enqueue(peer, ev1)
	q.Enqueue(peer, ev2)

	drained := q.DrainAll(peer)
	assert.Equal(t, []koi.Event{ev1, ev2}, drained)
}

func TestEventQueueRequeuePreservesFIFOAndIncrementsFailures(t *testing.T) {
	q := NewEventQueue(3)
	peer := rid.NewNodeRID("peer1")

	ev1 := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}
	ev2 := koi.Event{RID: rid.NewNodeRID("r2"), Type: koi.EventUpdate}

	failed := q.DrainAll(peer) // empty, simulating a failed send of nothing yet
	assert.Empty(t, failed)

	needsRecovery := q.Requeue(peer, []koi.Event{ev1, ev2})
	assert.False(t, needsRecovery)
	assert.Equal(t, 1, q.FailureCount(peer))

	drained := q.DrainAll(peer)
	assert.Equal(t, []koi.Event{ev1, ev2}, drained)
}

func TestEventQueueRequeueNewAppendsAfterRequeued(t *testing.T) {
	q := NewEventQueue(3)
	peer := rid.NewNodeRID("peer1")

	ev1 := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}
	ev2 := koi.Event{RID: rid.NewNodeRID("r2"), Type: koi.EventUpdate}

	q.Requeue(peer, []koi.Event{ev1})
	q.Enqueue(peer, ev2)

	assert.Equal(t, []koi.Event{ev1, ev2}, q.DrainAll(peer))
}

func TestEventQueueTriggersHandshakeRecoveryAtThreshold(t *testing.T) {
	q := NewEventQueue(2)
	peer := rid.NewNodeRID("peer1")
	ev := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}

	assert.False(t, q.Requeue(peer, []koi.Event{ev}))
	assert.True(t, q.Requeue(peer, []koi.Event{ev}))
	assert.Equal(t, 0, q.FailureCount(peer))
}

func TestEventQueueRecordSuccessResetsFailures(t *testing.T) {
	q := NewEventQueue(5)
	peer := rid.NewNodeRID("peer1")
	ev := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}

	q.Requeue(peer, []koi.Event{ev})
	assert.Equal(t, 1, q.FailureCount(peer))

	q.RecordSuccess(peer)
	assert.Equal(t, 0, q.FailureCount(peer))
}
