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

// Package rpc holds the five-endpoint outbound client (RequestHandler)
// and the matching inbound dispatcher (ResponseHandler) that
// implement the wire protocol between koi-net nodes.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/internal/metrics"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/koierr"
	"github.com/koi-net/koi-net/rid"
	"github.com/koi-net/koi-net/secure"
)

const (
	pathEventsBroadcast = "/events/broadcast"
	pathEventsPoll      = "/events/poll"
	pathRIDsFetch       = "/rids/fetch"
	pathManifestsFetch  = "/manifests/fetch"
	pathBundlesFetch    = "/bundles/fetch"
)

// RequestHandler is the outbound signed RPC client: it resolves a
// target node's URL, wraps the payload in a signed envelope, and POSTs
// it to the matching path.
type RequestHandler struct {
	KeyPair        *identity.KeyPair
	Cache          cache.Cache
	SelfRID        rid.RID
	FirstContact   rid.RID
	FirstContactURL string
	HTTPClient     *http.Client
}

// NewRequestHandler builds a RequestHandler with a bounded-timeout
// HTTP client, grounded on the teacher's transport/http client pattern.
func NewRequestHandler(kp *identity.KeyPair, c cache.Cache, selfRID rid.RID) *RequestHandler {
	return &RequestHandler{
		KeyPair: kp,
		Cache:   c,
		SelfRID: selfRID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// resolveURL implements §4.3's resolution rule: the target's cached
// NodeProfile base_url, or the configured first-contact URL if the
// target RID matches the configured first-contact RID.
func (h *RequestHandler) resolveURL(target rid.RID) (string, error) {
	if target == h.SelfRID {
		return "", koierr.ErrSelfRequest
	}

	b, err := h.Cache.Read(target)
	if err == nil {
		var profile koi.NodeProfile
		if jsonErr := json.Unmarshal(b.Contents, &profile); jsonErr == nil {
			if profile.NodeType == koi.NodePartial {
				return "", koierr.ErrPartialNodeQuery
			}
			if profile.BaseURL != "" {
				return profile.BaseURL, nil
			}
		}
	}

	if h.FirstContact != (rid.RID{}) && target == h.FirstContact && h.FirstContactURL != "" {
		return h.FirstContactURL, nil
	}

	return "", koierr.ErrNodeNotFound
}

// post signs payload for target, POSTs it to path, and unmarshals a
// non-empty response envelope's payload into out (if out is non-nil).
func (h *RequestHandler) post(ctx context.Context, target rid.RID, path string, payload any, out any) error {
	start := time.Now()
	err := h.doPost(ctx, target, path, payload, out)
	outcome := "ok"
	switch {
	case errors.Is(err, koierr.ErrTransport):
		outcome = "transport_error"
	case err != nil:
		outcome = "protocol_error"
	}
	metrics.OutboundRequests.WithLabelValues(path, outcome).Inc()
	metrics.RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	return err
}

func (h *RequestHandler) doPost(ctx context.Context, target rid.RID, path string, payload any, out any) error {
	baseURL, err := h.resolveURL(target)
	if err != nil {
		return err
	}

	env, err := secure.Sign(h.KeyPair, payload, h.SelfRID, target)
	if err != nil {
		return fmt.Errorf("rpc: sign request: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("rpc: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", koierr.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", koierr.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", koierr.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		var wireErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &wireErr)
		return fmt.Errorf("rpc: peer rejected request: %s", wireErr.Error)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	var respEnv secure.Envelope
	if err := json.Unmarshal(respBody, &respEnv); err != nil {
		return fmt.Errorf("%w: decode response envelope: %v", koierr.ErrTransport, err)
	}
	if err := json.Unmarshal(respEnv.Payload, out); err != nil {
		return fmt.Errorf("%w: decode response payload: %v", koierr.ErrTransport, err)
	}
	return nil
}

// eventsPayload is the shared wire shape for broadcast and poll bodies.
type eventsPayload struct {
	Events []koi.Event `json:"events"`
}

// Broadcast pushes events to target's /events/broadcast.
func (h *RequestHandler) Broadcast(ctx context.Context, target rid.RID, events []koi.Event) error {
	return h.post(ctx, target, pathEventsBroadcast, eventsPayload{Events: events}, nil)
}

// Poll pulls up to limit pending events from target for this node.
// limit <= 0 requests everything available.
func (h *RequestHandler) Poll(ctx context.Context, target rid.RID, limit int) ([]koi.Event, error) {
	req := struct {
		RID   rid.RID `json:"rid"`
		Limit int     `json:"limit"`
	}{RID: h.SelfRID, Limit: limit}

	var resp eventsPayload
	if err := h.post(ctx, target, pathEventsPoll, req, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// FetchRIDs lists target's RIDs, optionally filtered to ridTypes.
func (h *RequestHandler) FetchRIDs(ctx context.Context, target rid.RID, ridTypes []rid.Type) ([]rid.RID, error) {
	req := struct {
		RIDTypes []rid.Type `json:"rid_types"`
	}{RIDTypes: ridTypes}

	var resp struct {
		RIDs []rid.RID `json:"rids"`
	}
	if err := h.post(ctx, target, pathRIDsFetch, req, &resp); err != nil {
		return nil, err
	}
	return resp.RIDs, nil
}

// manifestsResult and bundlesResult are the unexported wire shapes of
// the manifest and bundle responses; FetchManifests and FetchBundles
// return their not_found list to callers.
type manifestsResult struct {
	Manifests []koi.Manifest `json:"manifests"`
	NotFound  []rid.RID      `json:"not_found"`
}

type bundlesResult struct {
	Bundles  []koi.Bundle `json:"bundles"`
	NotFound []rid.RID    `json:"not_found"`
}

// FetchManifests fetches manifests for ridTypes and/or rids from target.
func (h *RequestHandler) FetchManifests(ctx context.Context, target rid.RID, ridTypes []rid.Type, rids []rid.RID) ([]koi.Manifest, []rid.RID, error) {
	req := struct {
		RIDTypes []rid.Type `json:"rid_types"`
		RIDs     []rid.RID  `json:"rids"`
	}{RIDTypes: ridTypes, RIDs: rids}

	var resp manifestsResult
	if err := h.post(ctx, target, pathManifestsFetch, req, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Manifests, resp.NotFound, nil
}

// FetchBundles fetches bundles for rids from target.
func (h *RequestHandler) FetchBundles(ctx context.Context, target rid.RID, rids []rid.RID) ([]koi.Bundle, []rid.RID, error) {
	req := struct {
		RIDs []rid.RID `json:"rids"`
	}{RIDs: rids}

	var resp bundlesResult
	if err := h.post(ctx, target, pathBundlesFetch, req, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Bundles, resp.NotFound, nil
}

// FetchManifest fetches a single manifest, satisfying pipeline.RemoteFetcher.
func (h *RequestHandler) FetchManifest(provider rid.RID, r rid.RID) (*koi.Manifest, error) {
	manifests, _, err := h.FetchManifests(context.Background(), provider, nil, []rid.RID{r})
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		if m.RID == r {
			return &m, nil
		}
	}
	return nil, koierr.ErrNodeNotFound
}

// FetchBundle fetches a single bundle, satisfying pipeline.RemoteFetcher.
func (h *RequestHandler) FetchBundle(provider rid.RID, r rid.RID) (*koi.Bundle, error) {
	bundles, _, err := h.FetchBundles(context.Background(), provider, []rid.RID{r})
	if err != nil {
		return nil, err
	}
	for _, b := range bundles {
		if b.Manifest.RID == r {
			return &b, nil
		}
	}
	return nil, koierr.ErrNodeNotFound
}
