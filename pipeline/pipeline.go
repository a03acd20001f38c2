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

// Package pipeline is the five-stage handler chain that decides the
// fate of every knowledge object: fetch missing parts, write or delete
// in the cache, select broadcast targets, and run any post-effects.
package pipeline

import (
	"time"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/graph"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/internal/metrics"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
)

// Stage is one of the five ordered pipeline stages.
type Stage int

const (
	StageRID Stage = iota
	StageManifest
	StageBundle
	StageNetwork
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageRID:
		return "rid"
	case StageManifest:
		return "manifest"
	case StageBundle:
		return "bundle"
	case StageNetwork:
		return "network"
	case StageFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Result is what a handler returns after inspecting (and possibly
// mutating) a knowledge object.
type Result int

const (
	// ResultContinue keeps the (possibly modified) KO and proceeds to
	// the next matching handler.
	ResultContinue Result = iota
	// ResultStop aborts the entire pipeline immediately (STOP_CHAIN).
	ResultStop
)

// Filter selects which knowledge objects a handler applies to. A zero
// field value means "any".
type Filter struct {
	RIDType   rid.Type
	Source    koi.Source
	EventType koi.EventType
}

func (f Filter) matches(ko *koi.KnowledgeObject) bool {
	if f.RIDType != "" && ko.RID.Type() != f.RIDType {
		return false
	}
	if f.Source != "" && ko.Source != f.Source {
		return false
	}
	if f.EventType != "" {
		// Prefer the normalized classification once Stage 3 has set it
		// (handlers running in Stage 4/5 care about NEW/UPDATE/FORGET
		// as admitted, not as the peer happened to label it).
		effective := ko.NormalizedEventType
		if effective == "" {
			effective = ko.EventType
		}
		if effective != f.EventType {
			return false
		}
	}
	return true
}

// HandlerFunc inspects and may mutate ko, returning how the engine
// should proceed.
type HandlerFunc func(env *Env, ko *koi.KnowledgeObject) Result

// handler is a registered (stage, filter, fn) triple.
type handler struct {
	stage  Stage
	filter Filter
	fn     HandlerFunc
	name   string
}

// Registry holds every registered handler, in registration order, so
// dispatch order within a stage is deterministic and caller-controlled
// (replacing the reflective assembler a dynamically-dispatched source
// would use with a single static slice built at wiring time).
type Registry struct {
	handlers []handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler for stage, matching filter, run in
// registration order relative to other handlers on the same stage.
func (r *Registry) Register(stage Stage, filter Filter, name string, fn HandlerFunc) {
	r.handlers = append(r.handlers, handler{stage: stage, filter: filter, fn: fn, name: name})
}

func (r *Registry) forStage(s Stage) []handler {
	var out []handler
	for _, h := range r.handlers {
		if h.stage == s {
			out = append(out, h)
		}
	}
	return out
}

// RemoteFetcher retrieves manifests/bundles from a specific provider
// node, satisfied by rpc/request's RequestHandler. Kept as a narrow
// interface here so pipeline does not import the RPC layer.
type RemoteFetcher interface {
	FetchManifest(provider rid.RID, r rid.RID) (*koi.Manifest, error)
	FetchBundle(provider rid.RID, r rid.RID) (*koi.Bundle, error)
}

// Env bundles everything a handler or the engine itself needs: the
// cache, the graph, the outbound queues, and a way to reach remote
// state providers.
type Env struct {
	Cache      cache.Cache
	Graph      *graph.NetworkGraph
	SelfRID    rid.RID
	Fetcher    RemoteFetcher
	EventQueue *queue.EventQueue
	PollBuffer *queue.PollEventBuffer
	Logger     logger.Logger

	// Submit hands a handler-produced KO (edge approvals, cascade
	// deletes) back to whatever owns pipeline admission. A caller
	// wiring a real node must set this to enqueue onto KobjQueue, so
	// KobjWorker remains the sole driver of Process; New only defaults
	// it to a direct Process call for pipelines exercised standalone
	// (e.g. in tests) with no queue or worker running.
	Submit func(ko *koi.KnowledgeObject)
	// Handshake and CatchUp are optional hooks into the sync layer,
	// invoked by the node-contact handler. Left nil, a pipeline built
	// standalone simply skips both.
	Handshake func(target rid.RID) error
	CatchUp   func(target rid.RID) error
}

// Pipeline runs knowledge objects through the five stages, applying
// the engine's implicit inter-stage actions.
type Pipeline struct {
	Registry *Registry
	Env      *Env
}

// New builds a pipeline over the given registry and environment. If
// env.Submit is unset, it defaults to feeding re-entrant KOs (edge
// approvals, cascade deletes) straight back through Process.
func New(registry *Registry, env *Env) *Pipeline {
	p := &Pipeline{Registry: registry, Env: env}
	if env.Submit == nil {
		env.Submit = p.Process
	}
	return p
}

// Process runs ko through all five stages. It never returns an error
// for a handler's own logic: handler panics would indicate a
// programmer bug and are not recovered here (mirroring
// HandlerPipelineAbort being a local, logged, per-KO abort rather than
// a propagated Go error).
func (p *Pipeline) Process(ko *koi.KnowledgeObject) {
	outcome := "admitted"
	defer func() {
		metrics.KobjsProcessed.WithLabelValues(outcome).Inc()
	}()

	if !p.runStage(StageRID, ko) {
		outcome = "aborted"
		return
	}
	if !p.afterStage1(ko) {
		outcome = "dropped"
		return
	}

	if !p.runStage(StageManifest, ko) {
		outcome = "aborted"
		return
	}
	if !p.afterStage2(ko) {
		outcome = "dropped"
		return
	}

	if !p.runStage(StageBundle, ko) {
		outcome = "aborted"
		return
	}
	if !p.afterStage3(ko) {
		outcome = "dropped"
		return
	}

	if !p.runStage(StageNetwork, ko) {
		outcome = "aborted"
		return
	}
	p.afterStage4(ko)

	if !p.runStage(StageFinal, ko) {
		outcome = "aborted"
		return
	}
}

// runStage runs every matching handler for s in order, returning false
// if one returned ResultStop.
func (p *Pipeline) runStage(s Stage, ko *koi.KnowledgeObject) bool {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
	}()

	for _, h := range p.Registry.forStage(s) {
		if !h.filter.matches(ko) {
			continue
		}
		if h.fn(p.Env, ko) == ResultStop {
			metrics.HandlerAborts.WithLabelValues(s.String()).Inc()
			if p.Env.Logger != nil {
				p.Env.Logger.Warn("pipeline handler aborted chain",
					logger.String("stage", s.String()),
					logger.String("handler", h.name),
					logger.String("rid", ko.RID.String()))
			}
			return false
		}
	}
	return true
}

// acquireManifest fetches just the manifest for ko.RID per the
// internal/external rule: External KOs are fetched from the source
// peer, falling back to other state providers; Internal ones are read
// straight from the local cache. Stage 1 only ever needs the manifest:
// pulling the full bundle here would pay for remote content the Stage
// 2 staleness filter (basicManifestFilter) might reject outright.
func (p *Pipeline) acquireManifest(ko *koi.KnowledgeObject) (*koi.Manifest, error) {
	if ko.Source == koi.SourceInternal {
		b, err := p.Env.Cache.Read(ko.RID)
		if err != nil {
			return nil, err
		}
		return &b.Manifest, nil
	}

	if ko.SourcePeer != nil && p.Env.Fetcher != nil {
		if m, err := p.Env.Fetcher.FetchManifest(*ko.SourcePeer, ko.RID); err == nil {
			return m, nil
		}
	}

	for _, provider := range p.Env.Graph.GetStateProviders(ko.RID.Type()) {
		if provider == p.Env.SelfRID {
			continue
		}
		if p.Env.Fetcher == nil {
			continue
		}
		if m, err := p.Env.Fetcher.FetchManifest(provider, ko.RID); err == nil {
			return m, nil
		}
	}
	return nil, cache.ErrNotFound
}

// acquireBundle fetches the full bundle for ko.RID, under the same
// internal/external rule as acquireManifest. Only called from Stage 2
// onward, once the manifest has survived the staleness filter.
func (p *Pipeline) acquireBundle(ko *koi.KnowledgeObject) (*koi.Bundle, error) {
	if ko.Source == koi.SourceInternal {
		b, err := p.Env.Cache.Read(ko.RID)
		if err != nil {
			return nil, err
		}
		return &b, nil
	}

	if ko.SourcePeer != nil && p.Env.Fetcher != nil {
		if b, err := p.Env.Fetcher.FetchBundle(*ko.SourcePeer, ko.RID); err == nil {
			return b, nil
		}
	}

	for _, provider := range p.Env.Graph.GetStateProviders(ko.RID.Type()) {
		if provider == p.Env.SelfRID {
			continue
		}
		if p.Env.Fetcher == nil {
			continue
		}
		if b, err := p.Env.Fetcher.FetchBundle(provider, ko.RID); err == nil {
			return b, nil
		}
	}
	return nil, cache.ErrNotFound
}

// afterStage1 implements the implicit action following Stage 1: ensure
// ko has a manifest (never the full bundle yet) so Stage 2's staleness
// filter can reject a stale update before any bundle is pulled.
func (p *Pipeline) afterStage1(ko *koi.KnowledgeObject) bool {
	if ko.EventType == koi.EventForget {
		b, err := p.Env.Cache.Read(ko.RID)
		if err != nil {
			return false
		}
		ko.Manifest = &b.Manifest
		ko.Contents = b.Contents
		return true
	}

	if ko.Manifest != nil {
		return true
	}

	m, err := p.acquireManifest(ko)
	if err != nil {
		return false
	}
	ko.Manifest = m
	return true
}

// afterStage2 implements the implicit action following Stage 2: the
// manifest has passed the staleness filter, so it is now worth paying
// for the full bundle.
func (p *Pipeline) afterStage2(ko *koi.KnowledgeObject) bool {
	if ko.Contents != nil {
		return true
	}

	b, err := p.acquireBundle(ko)
	if err != nil {
		return false
	}
	if ko.Manifest != nil && ko.Manifest.Sha256 != b.Manifest.Sha256 {
		if p.Env.Logger != nil {
			p.Env.Logger.Warn("retrieved manifest differs from kobj manifest, adopting retrieved",
				logger.String("rid", ko.RID.String()))
		}
	}
	ko.Manifest = &b.Manifest
	ko.Contents = b.Contents
	return true
}

// afterStage3 applies the normalized event to the cache and, for
// topology-bearing RIDs, regenerates the graph.
func (p *Pipeline) afterStage3(ko *koi.KnowledgeObject) bool {
	switch ko.NormalizedEventType {
	case koi.EventNew, koi.EventUpdate:
		if ko.Manifest == nil || ko.Contents == nil {
			return false
		}
		if err := p.Env.Cache.Write(koi.Bundle{Manifest: *ko.Manifest, Contents: ko.Contents}); err != nil {
			return false
		}
		metrics.CacheMutations.WithLabelValues("write").Inc()
	case koi.EventForget:
		if err := p.Env.Cache.Delete(ko.RID); err != nil {
			return false
		}
		metrics.CacheMutations.WithLabelValues("delete").Inc()
	default:
		return false
	}

	if ko.RID.Type() == rid.TypeKoiNetNode || ko.RID.Type() == rid.TypeKoiNetEdge {
		if err := p.Env.Graph.Rebuild(p.Env.Cache); err == nil {
			metrics.GraphRegenerations.Inc()
		}
	}
	return true
}

// afterStage4 enqueues the normalized event into every target's
// outbound queue, per edge type with a node-type fallback.
func (p *Pipeline) afterStage4(ko *koi.KnowledgeObject) {
	ev := ko.ToEvent()
	for target := range ko.NetworkTargets {
		useWebhook := true
		if edge, ok := p.Env.Graph.GetEdgeProfile(p.Env.SelfRID, target); ok && edge.Status == koi.EdgeApproved {
			useWebhook = edge.Type == koi.EdgeWebhook
		} else if profile, ok := p.Env.Graph.GetNodeProfile(target); ok {
			useWebhook = profile.NodeType == koi.NodeFull
		}

		if useWebhook {
			p.Env.EventQueue.Enqueue(target, ev)
		} else {
			p.Env.PollBuffer.Append(target, ev)
		}
	}
}
