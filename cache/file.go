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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// FileCache implements Cache as one JSON file per RID under basePath.
type FileCache struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileCache creates a file-backed cache rooted at basePath, creating
// the directory if it does not exist.
func NewFileCache(basePath string) (*FileCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create cache directory: %w", err)
	}
	return &FileCache{basePath: basePath}, nil
}

// fileName maps an RID to a filesystem-safe file name. Context and
// name are base64url-encoded independently so the mapping is
// collision-free and reversible without relying on any character
// never appearing in either field.
func (c *FileCache) fileName(r rid.RID) string {
	ctx := base64.RawURLEncoding.EncodeToString([]byte(r.Context))
	name := base64.RawURLEncoding.EncodeToString([]byte(r.Name))
	return filepath.Join(c.basePath, ctx+"."+name+".json")
}

type fileCacheRecord struct {
	Manifest koi.Manifest `json:"manifest"`
	Contents []byte       `json:"contents"`
}

// Read implements Cache.
func (c *FileCache) Read(r rid.RID) (koi.Bundle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.fileName(r))
	if err != nil {
		if os.IsNotExist(err) {
			return koi.Bundle{}, ErrNotFound
		}
		return koi.Bundle{}, fmt.Errorf("cache: read %s: %w", r, err)
	}

	var rec fileCacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return koi.Bundle{}, fmt.Errorf("cache: decode %s: %w", r, err)
	}
	return koi.Bundle{Manifest: rec.Manifest, Contents: rec.Contents}, nil
}

// Write implements Cache.
func (c *FileCache) Write(b koi.Bundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := fileCacheRecord{Manifest: b.Manifest, Contents: b.Contents}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", b.Manifest.RID, err)
	}

	path := c.fileName(b.Manifest.RID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", b.Manifest.RID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cache: commit %s: %w", b.Manifest.RID, err)
	}
	return nil
}

// Delete implements Cache.
func (c *FileCache) Delete(r rid.RID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.fileName(r)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: delete %s: %w", r, err)
	}
	return nil
}

// Exists implements Cache.
func (c *FileCache) Exists(r rid.RID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := os.Stat(c.fileName(r))
	return err == nil
}

// ListByType implements Cache.
func (c *FileCache) ListByType(t rid.Type) ([]rid.RID, error) {
	all, err := c.ListAll()
	if err != nil {
		return nil, err
	}
	var out []rid.RID
	for _, r := range all {
		if r.Type() == t {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListAll implements Cache.
func (c *FileCache) ListAll() ([]rid.RID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return nil, fmt.Errorf("cache: list directory: %w", err)
	}

	var out []rid.RID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		parts := strings.SplitN(base, ".", 2)
		if len(parts) != 2 {
			continue
		}
		ctxBytes, err1 := base64.RawURLEncoding.DecodeString(parts[0])
		nameBytes, err2 := base64.RawURLEncoding.DecodeString(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, rid.New(string(ctxBytes), string(nameBytes)))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
