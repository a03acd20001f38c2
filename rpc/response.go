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

package rpc

import (
	"fmt"
	"time"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/internal/metrics"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
	"github.com/koi-net/koi-net/secure"
)

// ResponseHandler is the inbound RPC dispatcher: every exported method
// corresponds to one path in the wire protocol table and assumes the
// caller has already verified the envelope via Verifier.
type ResponseHandler struct {
	KeyPair    *identity.KeyPair
	Cache      cache.Cache
	SelfRID    rid.RID
	KobjQueue  *queue.KobjQueue
	PollBuffer *queue.PollEventBuffer
}

// Broadcast enqueues each event into the KobjQueue, tagging source as
// the sender. Returns nothing on success, per the wire table.
func (h *ResponseHandler) Broadcast(sender rid.RID, events []koi.Event) {
	for _, ev := range events {
		ko := koi.NewKnowledgeObject(ev, koi.SourceExternal, &sender)
		h.KobjQueue.Put(ko)
	}
	metrics.InboundRequests.WithLabelValues("/events/broadcast", "ok").Inc()
}

// Poll drains up to limit pending events for the requesting node.
// limit <= 0 drains everything.
func (h *ResponseHandler) Poll(requester rid.RID, limit int) []koi.Event {
	metrics.InboundRequests.WithLabelValues("/events/poll", "ok").Inc()
	return h.PollBuffer.Drain(requester, limit)
}

// FetchRIDs lists RIDs in the cache, optionally filtered to ridTypes.
func (h *ResponseHandler) FetchRIDs(ridTypes []rid.Type) ([]rid.RID, error) {
	metrics.InboundRequests.WithLabelValues("/rids/fetch", "ok").Inc()
	if len(ridTypes) == 0 {
		return h.Cache.ListAll()
	}

	var out []rid.RID
	for _, t := range ridTypes {
		rids, err := h.Cache.ListByType(t)
		if err != nil {
			return nil, err
		}
		out = append(out, rids...)
	}
	return out, nil
}

// FetchManifests reads manifests for the union of ridTypes-filtered
// RIDs and explicit rids, reporting any requested RID absent from cache.
func (h *ResponseHandler) FetchManifests(ridTypes []rid.Type, rids []rid.RID) ([]koi.Manifest, []rid.RID, error) {
	requested, err := h.resolveRequestedRIDs(ridTypes, rids)
	if err != nil {
		return nil, nil, err
	}

	var manifests []koi.Manifest
	var notFound []rid.RID
	for _, r := range requested {
		b, err := h.Cache.Read(r)
		if err != nil {
			notFound = append(notFound, r)
			continue
		}
		manifests = append(manifests, b.Manifest)
	}
	metrics.InboundRequests.WithLabelValues("/manifests/fetch", "ok").Inc()
	return manifests, notFound, nil
}

// FetchBundles reads bundles for rids, reporting any absent from cache.
func (h *ResponseHandler) FetchBundles(rids []rid.RID) ([]koi.Bundle, []rid.RID, error) {
	var bundles []koi.Bundle
	var notFound []rid.RID
	for _, r := range rids {
		b, err := h.Cache.Read(r)
		if err != nil {
			notFound = append(notFound, r)
			continue
		}
		bundles = append(bundles, b)
	}
	metrics.InboundRequests.WithLabelValues("/bundles/fetch", "ok").Inc()
	return bundles, notFound, nil
}

// resolveRequestedRIDs unions the type-filtered cache listing with the
// explicit RID list, deduplicating.
func (h *ResponseHandler) resolveRequestedRIDs(ridTypes []rid.Type, rids []rid.RID) ([]rid.RID, error) {
	seen := make(map[rid.RID]struct{})
	var out []rid.RID

	add := func(r rid.RID) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	for _, t := range ridTypes {
		listed, err := h.Cache.ListByType(t)
		if err != nil {
			return nil, err
		}
		for _, r := range listed {
			add(r)
		}
	}
	for _, r := range rids {
		add(r)
	}
	return out, nil
}

// Verifier constructs the envelope verifier every inbound handler call
// must pass an envelope through before dispatch.
func (h *ResponseHandler) Verifier(clockSkew time.Duration) *secure.Verifier {
	return &secure.Verifier{Cache: h.Cache, SelfRID: h.SelfRID, ClockSkew: clockSkew}
}

// EmptyResponse signs an empty payload for target, used by handlers
// whose wire response is the empty object.
func (h *ResponseHandler) EmptyResponse(target rid.RID) (secure.Envelope, error) {
	env, err := secure.Sign(h.KeyPair, struct{}{}, h.SelfRID, target)
	if err != nil {
		return secure.Envelope{}, fmt.Errorf("rpc: sign empty response: %w", err)
	}
	return env, nil
}

// SignResponse wraps payload in a signed envelope addressed to target.
func (h *ResponseHandler) SignResponse(target rid.RID, payload any) (secure.Envelope, error) {
	env, err := secure.Sign(h.KeyPair, payload, h.SelfRID, target)
	if err != nil {
		return secure.Envelope{}, fmt.Errorf("rpc: sign response: %w", err)
	}
	return env, nil
}
