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

// Package sync implements the two procedures that bring a pair of
// nodes into agreement: Handshaker's bootstrap exchange and
// SyncManager's post-admission catch-up fetch.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// DefaultHandshakeTimeout bounds a single handshake broadcast.
const DefaultHandshakeTimeout = 30 * time.Second

// Broadcaster is the narrow surface Handshaker needs from
// rpc.RequestHandler.
type Broadcaster interface {
	Broadcast(ctx context.Context, target rid.RID, events []koi.Event) error
}

// Handshaker runs the bootstrap exchange of §4.8: a FORGET immediately
// followed by a NEW of this node's own profile, in one broadcast, so a
// peer with a stale record of us discards it before re-admitting the
// fresh one.
type Handshaker struct {
	RPC     Broadcaster
	Cache   cache.Cache
	SelfRID rid.RID
	Timeout time.Duration
	Logger  logger.Logger
}

// Handshake sends the bootstrap pair to target.
func (h *Handshaker) Handshake(target rid.RID) error {
	self, err := h.Cache.Read(h.SelfRID)
	if err != nil {
		return fmt.Errorf("sync: read own profile: %w", err)
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	selfBundle := self
	events := []koi.Event{
		{RID: h.SelfRID, Type: koi.EventForget},
		{RID: h.SelfRID, Type: koi.EventNew, Bundle: &selfBundle},
	}

	if err := h.RPC.Broadcast(ctx, target, events); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("handshake broadcast failed",
				logger.String("target", target.String()), logger.Error(err))
		}
		return err
	}
	if h.Logger != nil {
		h.Logger.Info("handshake sent", logger.String("target", target.String()))
	}
	return nil
}
