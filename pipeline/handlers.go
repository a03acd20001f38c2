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

package pipeline

import (
	"encoding/json"
	"time"

	"github.com/koi-net/koi-net/graph"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
	"github.com/koi-net/koi-net/secure"
)

// RegisterBuiltins wires the eight admission-default handlers into r,
// in the order the engine is expected to run them.
func RegisterBuiltins(r *Registry) {
	r.Register(StageRID, Filter{}, "basic_rid_filter", basicRIDFilter)
	r.Register(StageManifest, Filter{}, "basic_manifest_filter", basicManifestFilter)
	r.Register(StageBundle, Filter{}, "normalize_event_type", normalizeEventType)
	r.Register(StageBundle, Filter{RIDType: rid.TypeKoiNetNode}, "secure_profile", secureProfileHandler)
	r.Register(StageBundle, Filter{RIDType: rid.TypeKoiNetEdge}, "edge_negotiation", edgeNegotiationHandler)
	r.Register(StageNetwork, Filter{}, "network_output_filter", networkOutputFilter)
	r.Register(StageFinal, Filter{RIDType: rid.TypeKoiNetNode, EventType: koi.EventNew}, "node_contact", nodeContactHandler)
	r.Register(StageFinal, Filter{RIDType: rid.TypeKoiNetNode, EventType: koi.EventForget}, "edge_cascade", edgeCascadeHandler)
}

// selfProvides returns the running node's own declared provides set, or
// a zero value if self is not yet in the graph (e.g. before the first
// self-ingestion at startup).
func selfProvides(env *Env) koi.Provides {
	if p, ok := env.Graph.GetNodeProfile(env.SelfRID); ok {
		return p.Provides
	}
	return koi.Provides{}
}

// basicRIDFilter drops events for RID types listed under neither
// provides.event nor provides.state of this node's own profile.
// KoiNetNode/KoiNetEdge always pass: every node must
// process topology events regardless of its declared provides set.
func basicRIDFilter(env *Env, ko *koi.KnowledgeObject) Result {
	t := ko.RID.Type()
	if t == rid.TypeKoiNetNode || t == rid.TypeKoiNetEdge {
		return ResultContinue
	}
	p := selfProvides(env)
	if !p.HasEvent(t) && !p.HasState(t) {
		return ResultStop
	}
	return ResultContinue
}

// basicManifestFilter drops updates whose manifest is not strictly
// newer than the cached revision. FORGET is unconditional: it always
// wins regardless of any timestamp comparison.
func basicManifestFilter(env *Env, ko *koi.KnowledgeObject) Result {
	if ko.EventType == koi.EventForget {
		return ResultContinue
	}
	if ko.Manifest == nil {
		return ResultContinue
	}

	cached, err := env.Cache.Read(ko.RID)
	if err != nil {
		return ResultContinue
	}
	if !ko.Manifest.Timestamp.After(cached.Manifest.Timestamp) {
		return ResultStop
	}
	return ResultContinue
}

// normalizeEventType sets normalized_event_type for Stage 3, the one
// piece of Stage 3 output every KO needs regardless of type: FORGET
// stays FORGET, and an admitted NEW/UPDATE is reclassified against
// whether the RID already has a cached revision. A KO whose
// normalized_event_type is already set is left alone.
func normalizeEventType(env *Env, ko *koi.KnowledgeObject) Result {
	if ko.NormalizedEventType != "" {
		return ResultContinue
	}
	if ko.EventType == koi.EventForget {
		ko.NormalizedEventType = koi.EventForget
		return ResultContinue
	}
	if env.Cache.Exists(ko.RID) {
		ko.NormalizedEventType = koi.EventUpdate
	} else {
		ko.NormalizedEventType = koi.EventNew
	}
	return ResultContinue
}

// secureProfileHandler verifies hash(pub_key_der) == rid.uuid for every
// admitted KoiNetNode bundle.
func secureProfileHandler(env *Env, ko *koi.KnowledgeObject) Result {
	if ko.EventType == koi.EventForget || ko.Contents == nil {
		return ResultContinue
	}

	var profile koi.NodeProfile
	if err := json.Unmarshal(ko.Contents, &profile); err != nil {
		return ResultStop
	}
	if err := secure.VerifyNodeProfileIdentity(ko.RID, profile.PublicKeyDER); err != nil {
		if env.Logger != nil {
			env.Logger.Warn("rejecting node profile with mismatched identity",
				logger.String("rid", ko.RID.String()), logger.Error(err))
		}
		return ResultStop
	}
	return ResultContinue
}

// edgeNegotiationHandler answers PROPOSED edges that name this node as
// source: the proposer must already be known, and the requested RID
// types must be a subset of this node's provides.event. On success it
// submits an APPROVED update of the same edge, re-entering the
// pipeline as an internally-produced KO.
func edgeNegotiationHandler(env *Env, ko *koi.KnowledgeObject) Result {
	if ko.EventType == koi.EventForget || ko.Contents == nil {
		return ResultContinue
	}

	var edge koi.EdgeProfile
	if err := json.Unmarshal(ko.Contents, &edge); err != nil {
		return ResultStop
	}
	if edge.Status != koi.EdgeProposed || edge.Source != env.SelfRID {
		return ResultContinue
	}

	if _, known := env.Graph.GetNodeProfile(edge.Target); !known {
		return ResultContinue
	}

	provides := selfProvides(env)
	for _, t := range edge.RIDTypes {
		if !provides.HasEvent(t) {
			return ResultContinue
		}
	}

	edge.Status = koi.EdgeApproved
	contents, err := json.Marshal(edge)
	if err != nil {
		return ResultContinue
	}
	bundle, err := koi.NewBundle(koi.Manifest{RID: ko.RID, Timestamp: time.Now()}, contents)
	if err != nil {
		return ResultContinue
	}
	approval := koi.NewKnowledgeObject(koi.Event{RID: ko.RID, Type: koi.EventUpdate, Bundle: &bundle}, koi.SourceInternal, nil)
	if env.Submit != nil {
		env.Submit(approval)
	}
	return ResultContinue
}

// networkOutputFilter populates network_targets with every out-neighbor
// whose APPROVED edge handles the KO's RID type, excluding the peer
// that delivered the event to us (anti-echo).
func networkOutputFilter(env *Env, ko *koi.KnowledgeObject) Result {
	for _, target := range env.Graph.GetNeighbors(env.SelfRID, graph.DirectionOut, ko.RID.Type()) {
		if ko.SourcePeer != nil && target == *ko.SourcePeer {
			continue
		}
		ko.AddTarget(target)
	}
	return ResultContinue
}

// nodeContactHandler triggers a handshake and catch-up toward any
// newly admitted KoiNetNode. Both hooks are optional so the pipeline
// can be exercised standalone before the sync layer is wired in.
func nodeContactHandler(env *Env, ko *koi.KnowledgeObject) Result {
	if ko.RID == env.SelfRID {
		return ResultContinue
	}
	if env.Handshake != nil {
		if err := env.Handshake(ko.RID); err != nil && env.Logger != nil {
			env.Logger.Warn("handshake to newly admitted node failed",
				logger.String("rid", ko.RID.String()), logger.Error(err))
		}
	}
	if env.CatchUp != nil {
		if err := env.CatchUp(ko.RID); err != nil && env.Logger != nil {
			env.Logger.Warn("catch-up with newly admitted node failed",
				logger.String("rid", ko.RID.String()), logger.Error(err))
		}
	}
	return ResultContinue
}

// edgeCascadeHandler forgets every edge incident to a forgotten node.
func edgeCascadeHandler(env *Env, ko *koi.KnowledgeObject) Result {
	if env.Submit == nil {
		return ResultContinue
	}
	for _, edgeRID := range incidentEdges(env, ko.RID) {
		forget := koi.NewKnowledgeObject(koi.Event{RID: edgeRID, Type: koi.EventForget}, koi.SourceInternal, nil)
		env.Submit(forget)
	}
	return ResultContinue
}

// incidentEdges lists every KoiNetEdge RID in the cache whose source or
// target is node.
func incidentEdges(env *Env, node rid.RID) []rid.RID {
	edgeRIDs, err := env.Cache.ListByType(rid.TypeKoiNetEdge)
	if err != nil {
		return nil
	}
	var out []rid.RID
	for _, r := range edgeRIDs {
		b, err := env.Cache.Read(r)
		if err != nil {
			continue
		}
		var edge koi.EdgeProfile
		if err := json.Unmarshal(b.Contents, &edge); err != nil {
			continue
		}
		if edge.Source == node || edge.Target == node {
			out = append(out, r)
		}
	}
	return out
}
