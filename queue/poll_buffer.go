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

// PollEventBuffer holds one append-only FIFO of pending events per
// peer, drained by that peer's own Poll requests. Unlike EventQueue
// there is no background worker; the buffer is purely passive.
type PollEventBuffer struct {
	mu      sync.Mutex
	pending map[rid.RID][]koi.Event
}

// NewPollEventBuffer creates an empty poll buffer.
func NewPollEventBuffer() *PollEventBuffer {
	return &PollEventBuffer{pending: make(map[rid.RID][]koi.Event)}
}

// Append adds ev to peer's buffer.
func (b *PollEventBuffer) Append(peer rid.RID, ev koi.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[peer] = append(b.pending[peer], ev)
	metrics.PollBufferDepth.WithLabelValues(peer.String()).Set(float64(len(b.pending[peer])))
}

// Drain removes and returns up to limit events for peer, in FIFO
// order, leaving any remainder for the next poll. limit <= 0 means no
// limit (drain everything).
func (b *PollEventBuffer) Drain(peer rid.RID, limit int) []koi.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.pending[peer]
	if limit <= 0 || limit >= len(all) {
		delete(b.pending, peer)
		metrics.PollBufferDepth.WithLabelValues(peer.String()).Set(0)
		return all
	}

	head := append([]koi.Event{}, all[:limit]...)
	b.pending[peer] = all[limit:]
	metrics.PollBufferDepth.WithLabelValues(peer.String()).Set(float64(len(b.pending[peer])))
	return head
}
