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

// Package queue holds the node's thread-safe FIFOs: the bounded
// KobjQueue feeding the pipeline, per-peer webhook EventQueues, and
// per-peer poll buffers.
package queue

import (
	"context"

	"github.com/koi-net/koi-net/internal/metrics"
	"github.com/koi-net/koi-net/koi"
)

// KobjQueue is a bounded FIFO of knowledge objects feeding the
// pipeline. Close pushes a shutdown sentinel the worker recognizes via
// Get's second return value.
type KobjQueue struct {
	ch chan *koi.KnowledgeObject
}

// NewKobjQueue creates a queue with the given buffer capacity.
func NewKobjQueue(capacity int) *KobjQueue {
	return &KobjQueue{ch: make(chan *koi.KnowledgeObject, capacity)}
}

// Put enqueues ko, blocking if the queue is full.
func (q *KobjQueue) Put(ko *koi.KnowledgeObject) {
	q.ch <- ko
	metrics.KobjQueueDepth.Set(float64(len(q.ch)))
}

// Get blocks (honoring ctx) for the next KO. ok is false if the queue
// was closed and drained.
func (q *KobjQueue) Get(ctx context.Context) (ko *koi.KnowledgeObject, ok bool) {
	select {
	case ko, ok = <-q.ch:
		metrics.KobjQueueDepth.Set(float64(len(q.ch)))
		return ko, ok
	case <-ctx.Done():
		return nil, false
	}
}

// TryGet is a non-blocking Get: ok is false if the queue was empty (the
// caller should not treat that the same as closed-and-drained).
func (q *KobjQueue) TryGet() (ko *koi.KnowledgeObject, ok bool) {
	select {
	case ko, open := <-q.ch:
		if !open {
			return nil, false
		}
		metrics.KobjQueueDepth.Set(float64(len(q.ch)))
		return ko, true
	default:
		return nil, false
	}
}

// Close signals the worker to stop by closing the channel; any
// in-flight Put calls after Close will panic, so callers must
// coordinate shutdown. lifecycle.Node.Stop does not call Close; it
// stops the worker by cancelling its context.
func (q *KobjQueue) Close() {
	close(q.ch)
}
