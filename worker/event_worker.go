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

package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
)

// DefaultEventWorkerInterval is how often EventWorker sweeps peers with
// pending webhook events when nothing more precise is configured.
const DefaultEventWorkerInterval = 250 * time.Millisecond

// Broadcaster is the narrow surface EventWorker needs from
// rpc.RequestHandler.
type Broadcaster interface {
	Broadcast(ctx context.Context, target rid.RID, events []koi.Event) error
}

// EventWorker is the sole sender of webhook events: on each tick it
// drains every peer with pending events and posts them in one
// broadcast, requeuing (FIFO-preserving) on transport failure. A
// requeue that crosses the per-peer failure threshold invokes
// Handshake, if set, to recover a peer that may have lost its record
// of this node.
type EventWorker struct {
	Queue      *queue.EventQueue
	RPC        Broadcaster
	Interval   time.Duration
	Logger     logger.Logger
	Handshake  func(target rid.RID) error
	RPCTimeout time.Duration

	lastActive atomic.Int64
}

// Run blocks, sweeping peers on Interval until ctx is cancelled.
func (w *EventWorker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultEventWorkerInterval
	}
	timeout := w.RPCTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.touch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, timeout)
			w.touch()
		}
	}
}

func (w *EventWorker) touch() {
	w.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the last time Run completed a sweep (including
// startup), for liveness health checks.
func (w *EventWorker) LastActive() time.Time {
	ns := w.lastActive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (w *EventWorker) sweep(ctx context.Context, timeout time.Duration) {
	for _, peer := range w.Queue.Peers() {
		events := w.Queue.DrainAll(peer)
		if len(events) == 0 {
			continue
		}
		w.deliver(ctx, peer, events, timeout)
	}
}

func (w *EventWorker) deliver(ctx context.Context, peer rid.RID, events []koi.Event, timeout time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := w.RPC.Broadcast(reqCtx, peer, events); err != nil {
		needsRecovery := w.Queue.Requeue(peer, events)
		if w.Logger != nil {
			w.Logger.Warn("webhook delivery failed, requeued",
				logger.String("peer", peer.String()), logger.Int("events", len(events)), logger.Error(err))
		}
		if needsRecovery && w.Handshake != nil {
			if err := w.Handshake(peer); err != nil && w.Logger != nil {
				w.Logger.Warn("handshake recovery failed",
					logger.String("peer", peer.String()), logger.Error(err))
			}
		}
		return
	}
	w.Queue.RecordSuccess(peer)
}
