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

// Package worker holds the two long-running threads every node runs:
// KobjWorker, the sole writer of the cache and sole driver of the
// pipeline, and EventWorker, the sole sender of webhook events.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
)

// Pipeline is the narrow surface KobjWorker needs from pipeline.Pipeline,
// kept local to avoid a dependency from worker onto the pipeline package's
// full handler-registration machinery.
type Pipeline interface {
	Process(ko *koi.KnowledgeObject)
}

// KobjWorker drains the KobjQueue, handing every KO to the pipeline in
// strict FIFO order. It is the only goroutine that may do so: running
// more than one would violate the single-writer cache invariant.
type KobjWorker struct {
	Queue    *queue.KobjQueue
	Pipeline Pipeline
	Logger   logger.Logger

	lastActive atomic.Int64
}

// Run blocks, processing KOs until ctx is cancelled or the queue is
// closed (Get returns ok=false). Intended to be launched with `go`.
func (w *KobjWorker) Run(ctx context.Context) {
	w.touch()
	for {
		ko, ok := w.Queue.Get(ctx)
		if !ok {
			return
		}
		w.Pipeline.Process(ko)
		w.touch()
	}
}

func (w *KobjWorker) touch() {
	w.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the last time Run completed an iteration (including
// startup), for liveness health checks.
func (w *KobjWorker) LastActive() time.Time {
	ns := w.lastActive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
