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

// Package graph maintains the directed multigraph of KoiNetNode
// subscription edges, rebuilt from the cache whenever a node or edge
// bundle changes. Graph derivation is a pure function of cache
// contents: Rebuild never consults anything but the passed-in Cache.
package graph

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// Direction selects which arcs get_neighbors walks.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

type arc struct {
	target  rid.RID
	profile koi.EdgeProfile
}

// NetworkGraph is a directed multigraph over KoiNetNode RIDs with an
// EdgeProfile attached to each arc. It is rebuilt wholesale on every
// change, never mutated incrementally, so readers never observe a
// partially-updated topology.
type NetworkGraph struct {
	mu    sync.RWMutex
	nodes map[rid.RID]koi.NodeProfile
	out   map[rid.RID][]arc // source -> outbound arcs
	in    map[rid.RID][]arc // target -> inbound arcs
}

// New returns an empty graph.
func New() *NetworkGraph {
	return &NetworkGraph{
		nodes: make(map[rid.RID]koi.NodeProfile),
		out:   make(map[rid.RID][]arc),
		in:    make(map[rid.RID][]arc),
	}
}

// Rebuild reconstructs the entire graph from c's current KoiNetNode and
// KoiNetEdge bundles, replacing any prior state atomically.
func (g *NetworkGraph) Rebuild(c cache.Cache) error {
	nodeRIDs, err := c.ListByType(rid.TypeKoiNetNode)
	if err != nil {
		return err
	}
	edgeRIDs, err := c.ListByType(rid.TypeKoiNetEdge)
	if err != nil {
		return err
	}

	nodes := make(map[rid.RID]koi.NodeProfile, len(nodeRIDs))
	for _, r := range nodeRIDs {
		b, err := c.Read(r)
		if err != nil {
			continue
		}
		var profile koi.NodeProfile
		if err := json.Unmarshal(b.Contents, &profile); err != nil {
			continue
		}
		nodes[r] = profile
	}

	out := make(map[rid.RID][]arc)
	in := make(map[rid.RID][]arc)
	for _, r := range edgeRIDs {
		b, err := c.Read(r)
		if err != nil {
			continue
		}
		var profile koi.EdgeProfile
		if err := json.Unmarshal(b.Contents, &profile); err != nil {
			continue
		}
		out[profile.Source] = append(out[profile.Source], arc{target: profile.Target, profile: profile})
		in[profile.Target] = append(in[profile.Target], arc{target: profile.Source, profile: profile})
	}

	g.mu.Lock()
	g.nodes = nodes
	g.out = out
	g.in = in
	g.mu.Unlock()
	return nil
}

// GetNodeProfile returns the cached profile for r and whether it was found.
func (g *NetworkGraph) GetNodeProfile(r rid.RID) (koi.NodeProfile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.nodes[r]
	return p, ok
}

// GetEdgeProfile returns the edge from src to tgt, if one exists.
func (g *NetworkGraph) GetEdgeProfile(src, tgt rid.RID) (koi.EdgeProfile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, a := range g.out[src] {
		if a.target == tgt {
			return a.profile, true
		}
	}
	return koi.EdgeProfile{}, false
}

// GetNeighbors returns the distinct node RIDs reachable by a single arc
// in direction dir. When allowedType is non-empty, only APPROVED edges
// handling that type are considered.
func (g *NetworkGraph) GetNeighbors(r rid.RID, dir Direction, allowedType rid.Type) []rid.RID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[rid.RID]struct{})
	collect := func(arcs []arc) {
		for _, a := range arcs {
			if allowedType != "" && !a.profile.Handles(allowedType) {
				continue
			}
			seen[a.target] = struct{}{}
		}
	}

	switch dir {
	case DirectionOut:
		collect(g.out[r])
	case DirectionIn:
		collect(g.in[r])
	case DirectionBoth:
		collect(g.out[r])
		collect(g.in[r])
	}

	out := make([]rid.RID, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// GetStateProviders returns every FULL node whose profile declares
// ridType among its queryable state types.
func (g *NetworkGraph) GetStateProviders(ridType rid.Type) []rid.RID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []rid.RID
	for r, p := range g.nodes {
		if p.NodeType == koi.NodeFull && p.Provides.HasState(ridType) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Nodes returns every node RID currently in the graph.
func (g *NetworkGraph) Nodes() []rid.RID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]rid.RID, 0, len(g.nodes))
	for r := range g.nodes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
