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

// Package cache is the node's persistent RID -> Bundle store: the
// single source of truth the NetworkGraph is rebuilt from and the
// RequestHandler reads node/edge profiles out of.
package cache

import (
	"errors"

	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// ErrNotFound is returned when an RID has no cached bundle.
var ErrNotFound = errors.New("cache: rid not found")

// Cache is the persistence contract every pipeline stage and the
// NetworkGraph depend on.
type Cache interface {
	// Read returns the bundle stored for r, or ErrNotFound.
	Read(r rid.RID) (koi.Bundle, error)

	// Write stores (or overwrites) the bundle for its own RID.
	Write(b koi.Bundle) error

	// Delete removes any bundle stored for r. Deleting an absent RID
	// is not an error.
	Delete(r rid.RID) error

	// Exists reports whether r has a cached bundle.
	Exists(r rid.RID) bool

	// ListByType returns the RIDs of every cached bundle of type t, in
	// no particular order.
	ListByType(t rid.Type) ([]rid.RID, error)

	// ListAll returns every cached RID.
	ListAll() ([]rid.RID, error)
}
