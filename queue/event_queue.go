// Copyright (C) 2025 koi-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package queue

import (
	"sync"

	"github.com/koi-net/koi-net/internal/metrics"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// DefaultFailureThreshold is the number of consecutive webhook delivery
// failures to a peer before a fresh handshake is triggered.
const DefaultFailureThreshold = 5

// EventQueue holds one outbound webhook FIFO per peer, plus a
// consecutive-failure counter driving handshake recovery.
type EventQueue struct {
	mu               sync.Mutex
	pending          map[rid.RID][]koi.Event
	failures         map[rid.RID]int
	failureThreshold int
}

// NewEventQueue creates an empty per-peer event queue.
func NewEventQueue(failureThreshold int) *EventQueue {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &EventQueue{
		pending:          make(map[rid.RID][]koi.Event),
		failures:         make(map[rid.RID]int),
		failureThreshold: failureThreshold,
	}
}

// Enqueue appends ev to peer's FIFO.
func (q *EventQueue) Enqueue(peer rid.RID, ev koi.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[peer] = append(q.pending[peer], ev)
	metrics.EventQueueDepth.WithLabelValues(peer.String()).Set(float64(len(q.pending[peer])))
}

// Peers returns the RIDs of every peer with at least one pending event.
func (q *EventQueue) Peers() []rid.RID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]rid.RID, 0, len(q.pending))
	for p, evs := range q.pending {
		if len(evs) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// DrainAll removes and returns every pending event for peer.
func (q *EventQueue) DrainAll(peer rid.RID) []koi.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	evs := q.pending[peer]
	delete(q.pending, peer)
	metrics.EventQueueDepth.WithLabelValues(peer.String()).Set(0)
	return evs
}

// Requeue puts evs back at the front of peer's FIFO, preserving order,
// and increments the peer's failure counter. It reports whether the
// counter has crossed the recovery threshold.
func (q *EventQueue) Requeue(peer rid.RID, evs []koi.Event) (needsHandshakeRecovery bool) {
	if len(evs) == 0 {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[peer] = append(append([]koi.Event{}, evs...), q.pending[peer]...)
	metrics.EventQueueDepth.WithLabelValues(peer.String()).Set(float64(len(q.pending[peer])))

	q.failures[peer]++
	metrics.PeerFailures.WithLabelValues(peer.String()).Inc()
	if q.failures[peer] >= q.failureThreshold {
		q.failures[peer] = 0
		metrics.HandshakeRecoveries.WithLabelValues(peer.String()).Inc()
		return true
	}
	return false
}

// RecordSuccess resets peer's failure counter after a successful send.
func (q *EventQueue) RecordSuccess(peer rid.RID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures[peer] = 0
}

// FailureCount returns peer's current consecutive-failure count, for tests.
func (q *EventQueue) FailureCount(peer rid.RID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failures[peer]
}
