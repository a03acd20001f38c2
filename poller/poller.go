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

// Package poller runs the partial-node alternative to the EventWorker:
// a single timed loop that polls every in-neighbor and feeds whatever
// events come back into the KobjQueue, since a partial node has no
// inbound HTTP server to receive webhooks on.
package poller

import (
	"context"
	"time"

	"github.com/koi-net/koi-net/graph"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
)

// DefaultInterval is how often the loop polls, absent configuration.
const DefaultInterval = 2 * time.Second

// DefaultLimit is the per-poll event cap; 0 requests everything
// available.
const DefaultLimit = 0

// Poller requires no blocking accessor other than a pull of events.
type Poller interface {
	Poll(ctx context.Context, target rid.RID, limit int) ([]koi.Event, error)
}

// Loop owns the ticker-driven polling of every in-neighbor.
type Loop struct {
	RPC      Poller
	Graph    *graph.NetworkGraph
	SelfRID  rid.RID
	Queue    *queue.KobjQueue
	Interval time.Duration
	Limit    int
	Timeout  time.Duration
	Logger   logger.Logger
}

// Run ticks until ctx is canceled, polling every in-neighbor on each
// tick and enqueuing whatever events it receives.
func (l *Loop) Run(ctx context.Context) {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *Loop) sweep(ctx context.Context) {
	for _, peer := range l.Graph.GetNeighbors(l.SelfRID, graph.DirectionIn, "") {
		edge, ok := l.Graph.GetEdgeProfile(peer, l.SelfRID)
		if !ok || edge.Status != koi.EdgeApproved {
			continue
		}
		l.pollPeer(ctx, peer)
	}
}

func (l *Loop) pollPeer(ctx context.Context, peer rid.RID) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, err := l.RPC.Poll(pollCtx, peer, l.Limit)
	if err != nil {
		if l.Logger != nil {
			l.Logger.Warn("poll failed", logger.String("peer", peer.String()), logger.Error(err))
		}
		return
	}

	for i := range events {
		ko := koi.NewKnowledgeObject(events[i], koi.SourceExternal, &peer)
		l.Queue.Put(ko)
	}
}
