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

package graph

import (
	"github.com/koi-net/koi-net/rid"
)

// FindCycles is a diagnostic: it returns every simple directed cycle of
// APPROVED subscription edges among allowedType (or every edge if
// empty). A cycle here means the same RID type is rebroadcast around
// it; the pipeline drops an event that comes back around a cycle (its
// manifest is not newer than the cached one, or for a FORGET the cached
// entry is already gone), so the cycle is reported for diagnosis only.
func (g *NetworkGraph) FindCycles(allowedType rid.Type) [][]rid.RID {
	g.mu.RLock()
	adj := make(map[rid.RID][]rid.RID, len(g.out))
	for src, arcs := range g.out {
		for _, a := range arcs {
			if allowedType != "" && !a.profile.Handles(allowedType) {
				continue
			}
			adj[src] = append(adj[src], a.target)
		}
	}
	g.mu.RUnlock()

	var cycles [][]rid.RID
	for start := range adj {
		visited := make(map[rid.RID]bool)
		var dfs func(path []rid.RID)
		dfs = func(path []rid.RID) {
			head := path[len(path)-1]
			if visited[head] {
				if head == start && len(path) > 1 {
					if !containsEquivalentCycle(cycles, path) {
						cycles = append(cycles, append([]rid.RID(nil), path...))
					}
				}
				return
			}
			visited[head] = true
			for _, next := range adj[head] {
				dfs(append(path, next))
			}
			visited[head] = false
		}
		dfs([]rid.RID{start})
	}
	return cycles
}

// containsEquivalentCycle reports whether candidate is a rotation of a
// cycle already recorded in cycles.
func containsEquivalentCycle(cycles [][]rid.RID, candidate []rid.RID) bool {
	body := candidate[:len(candidate)-1]
	for _, existing := range cycles {
		existingBody := existing[:len(existing)-1]
		if len(existingBody) != len(body) {
			continue
		}
		if isRotation(existingBody, body) {
			return true
		}
	}
	return false
}

func isRotation(a, b []rid.RID) bool {
	n := len(a)
	if n == 0 {
		return true
	}
	for shift := 0; shift < n; shift++ {
		match := true
		for i := 0; i < n; i++ {
			if a[i] != b[(i+shift)%n] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
