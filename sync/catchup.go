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

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/koi-net/koi-net/graph"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/rid"
)

// DefaultCatchUpTimeout bounds a single manifest-fetch round trip.
const DefaultCatchUpTimeout = 30 * time.Second

// ManifestFetcher is the narrow surface SyncManager needs from
// rpc.RequestHandler.
type ManifestFetcher interface {
	FetchManifests(ctx context.Context, target rid.RID, ridTypes []rid.Type, rids []rid.RID) ([]koi.Manifest, []rid.RID, error)
}

// SyncManager implements §4.9's catch-up: fetch manifests of this
// node's declared event RID types from a provider and feed each as an
// UPDATE KO, letting the pipeline's manifest filter deduplicate
// anything already at or past that revision.
type SyncManager struct {
	RPC     ManifestFetcher
	Graph   *graph.NetworkGraph
	SelfRID rid.RID
	Submit  func(ko *koi.KnowledgeObject)
	Timeout time.Duration
	Logger  logger.Logger
}

// CatchUp fetches manifests for every RID type this node's profile
// lists under provides.event, then submits one UPDATE KO per manifest
// returned by target.
func (s *SyncManager) CatchUp(target rid.RID) error {
	ridTypes := s.consumedTypes()
	if len(ridTypes) == 0 {
		return nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultCatchUpTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	manifests, _, err := s.RPC.FetchManifests(ctx, target, ridTypes, nil)
	if err != nil {
		return fmt.Errorf("sync: fetch manifests from %s: %w", target.String(), err)
	}

	for i := range manifests {
		m := manifests[i]
		ko := koi.NewKnowledgeObject(koi.Event{RID: m.RID, Type: koi.EventUpdate}, koi.SourceExternal, &target)
		ko.Manifest = &m
		if s.Submit != nil {
			s.Submit(ko)
		}
	}

	if s.Logger != nil {
		s.Logger.Info("catch-up complete",
			logger.String("target", target.String()), logger.Int("manifests", len(manifests)))
	}
	return nil
}

// consumedTypes returns the RID types this node's own profile
// lists under provides.event, or nil if self is not yet in the graph.
func (s *SyncManager) consumedTypes() []rid.Type {
	profile, ok := s.Graph.GetNodeProfile(s.SelfRID)
	if !ok {
		return nil
	}
	return profile.Provides.Event
}
