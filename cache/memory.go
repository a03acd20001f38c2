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

package cache

import (
	"sort"
	"sync"

	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// MemoryCache implements Cache with an in-memory map. Useful for tests
// and for PARTIAL nodes that don't need durability across restarts.
type MemoryCache struct {
	mu      sync.RWMutex
	bundles map[rid.RID]koi.Bundle
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		bundles: make(map[rid.RID]koi.Bundle),
	}
}

// Read implements Cache.
func (c *MemoryCache) Read(r rid.RID) (koi.Bundle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.bundles[r]
	if !ok {
		return koi.Bundle{}, ErrNotFound
	}
	return b, nil
}

// Write implements Cache.
func (c *MemoryCache) Write(b koi.Bundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bundles[b.Manifest.RID] = b
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(r rid.RID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.bundles, r)
	return nil
}

// Exists implements Cache.
func (c *MemoryCache) Exists(r rid.RID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.bundles[r]
	return ok
}

// ListByType implements Cache.
func (c *MemoryCache) ListByType(t rid.Type) ([]rid.RID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []rid.RID
	for r := range c.bundles {
		if r.Type() == t {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// ListAll implements Cache.
func (c *MemoryCache) ListAll() ([]rid.RID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]rid.RID, 0, len(c.bundles))
	for r := range c.bundles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
