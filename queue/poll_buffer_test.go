package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

func TestPollEventBufferDrainWithoutLimit(t *testing.T) {
	b := NewPollEventBuffer()
	peer := rid.NewNodeRID("peer1")

	ev1 := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}
	ev2 := koi.Event{RID: rid.NewNodeRID("r2"), Type: koi.EventUpdate}
	b.Append(peer, ev1)
	b.Append(peer, ev2)

	drained := b.Drain(peer, 0)
	assert.Equal(t, []koi.Event{ev1, ev2}, drained)
	assert.Empty(t, b.Drain(peer, 0))
}

func TestPollEventBufferDrainPrefixLeavesTail(t *testing.T) {
	b := NewPollEventBuffer()
	peer := rid.NewNodeRID("peer1")

	ev1 := koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew}
	ev2 := koi.Event{RID: rid.NewNodeRID("r2"), Type: koi.EventUpdate}
	ev3 := koi.Event{RID: rid.NewNodeRID("r3"), Type: koi.EventForget}
	b.Append(peer, ev1)
	b.Append(peer, ev2)
	b.Append(peer, ev3)

	first := b.Drain(peer, 2)
	assert.Equal(t, []koi.Event{ev1, ev2}, first)

	rest := b.Drain(peer, 0)
	assert.Equal(t, []koi.Event{ev3}, rest)
}

func TestPollEventBufferIndependentPerPeer(t *testing.T) {
	b := NewPollEventBuffer()
	peerA := rid.NewNodeRID("a")
	peerB := rid.NewNodeRID("b")

	b.Append(peerA, koi.Event{RID: rid.NewNodeRID("r1"), Type: koi.EventNew})

	assert.Len(t, b.Drain(peerA, 0), 1)
	assert.Empty(t, b.Drain(peerB, 0))
}
