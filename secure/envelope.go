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

// Package secure implements the signed envelope wire format every RPC
// body is wrapped in, and the five-step verification that admits a
// peer (including first-contact handshake admission).
package secure

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/koierr"
	"github.com/koi-net/koi-net/rid"
)

// Envelope is the wire format every RPC body is wrapped in.
type Envelope struct {
	Payload    json.RawMessage `json:"payload"`
	SourceNode rid.RID         `json:"source_node"`
	TargetNode rid.RID         `json:"target_node"`
	Signature  string          `json:"signature,omitempty"`
	// Timestamp is optional; when present it is checked against the
	// verifier's clock-skew window.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type unsignedEnvelope struct {
	Payload    json.RawMessage `json:"payload"`
	SourceNode rid.RID         `json:"source_node"`
	TargetNode rid.RID         `json:"target_node"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`
}

func (e Envelope) canonicalUnsigned() ([]byte, error) {
	u := unsignedEnvelope{
		Payload:    e.Payload,
		SourceNode: e.SourceNode,
		TargetNode: e.TargetNode,
		Timestamp:  e.Timestamp,
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("secure: marshal unsigned envelope: %w", err)
	}
	return koi.Canonicalize(raw)
}

// Sign builds and signs an envelope carrying payload from source to
// target, using kp's private key.
func Sign(kp *identity.KeyPair, payload any, source, target rid.RID) (Envelope, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("secure: marshal payload: %w", err)
	}

	now := time.Now().UTC()
	env := Envelope{
		Payload:    rawPayload,
		SourceNode: source,
		TargetNode: target,
		Timestamp:  &now,
	}

	canon, err := env.canonicalUnsigned()
	if err != nil {
		return Envelope{}, err
	}

	sig, err := kp.Sign(canon)
	if err != nil {
		return Envelope{}, fmt.Errorf("secure: sign envelope: %w", err)
	}
	env.Signature = base64.RawURLEncoding.EncodeToString(sig)
	return env, nil
}

// Verifier checks inbound envelopes against the node's cache and its
// own RID, admitting unknown peers only via the handshake bootstrap
// rule.
type Verifier struct {
	Cache     cache.Cache
	SelfRID   rid.RID
	ClockSkew time.Duration // 0 disables the timestamp check
}

// Verify runs the five-step verification from the envelope protocol.
// On success it returns the verified source NodeProfile.
func (v *Verifier) Verify(env Envelope) (koi.NodeProfile, error) {
	profile, err := v.resolveSourceProfile(env)
	if err != nil {
		return koi.NodeProfile{}, err
	}

	pub, err := profilePublicKey(profile)
	if err != nil {
		return koi.NodeProfile{}, err
	}

	derivedRID, err := identity.RIDForPublicKey(pub)
	if err != nil {
		return koi.NodeProfile{}, koierr.ErrInvalidPublicKey
	}
	if derivedRID != env.SourceNode {
		return koi.NodeProfile{}, koierr.ErrInvalidPublicKey
	}

	canon, err := env.canonicalUnsigned()
	if err != nil {
		return koi.NodeProfile{}, koierr.ErrInvalidSignature
	}
	sig, err := base64.RawURLEncoding.DecodeString(env.Signature)
	if err != nil {
		return koi.NodeProfile{}, koierr.ErrInvalidSignature
	}
	if err := identity.Verify(pub, canon, sig); err != nil {
		return koi.NodeProfile{}, koierr.ErrInvalidSignature
	}

	if env.TargetNode != v.SelfRID {
		return koi.NodeProfile{}, koierr.ErrInvalidTarget
	}

	if v.ClockSkew > 0 && env.Timestamp != nil {
		if d := time.Since(*env.Timestamp); d > v.ClockSkew || d < -v.ClockSkew {
			return koi.NodeProfile{}, koierr.ErrInvalidSignature
		}
	}

	return profile, nil
}

// resolveSourceProfile implements step 1: look up the cached profile,
// or admit a first-contact handshake envelope whose payload is the
// sender's own NodeProfile bundle.
func (v *Verifier) resolveSourceProfile(env Envelope) (koi.NodeProfile, error) {
	b, err := v.Cache.Read(env.SourceNode)
	if err == nil {
		var profile koi.NodeProfile
		if jsonErr := json.Unmarshal(b.Contents, &profile); jsonErr != nil {
			return koi.NodeProfile{}, koierr.ErrInvalidPublicKey
		}
		return profile, nil
	}

	return handshakeProfile(env)
}

// handshakeProfile extracts the bootstrap NodeProfile from a first
// handshake payload: an EventsPayload with exactly one NEW event
// whose RID equals the envelope's source_node.
func handshakeProfile(env Envelope) (koi.NodeProfile, error) {
	var payload struct {
		Events []koi.Event `json:"events"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return koi.NodeProfile{}, koierr.ErrUnknownSourceNode
	}

	for _, ev := range payload.Events {
		if ev.Type != koi.EventNew || ev.RID != env.SourceNode || ev.Bundle == nil {
			continue
		}
		var profile koi.NodeProfile
		if err := json.Unmarshal(ev.Bundle.Contents, &profile); err != nil {
			return koi.NodeProfile{}, koierr.ErrUnknownSourceNode
		}
		return profile, nil
	}

	return koi.NodeProfile{}, koierr.ErrUnknownSourceNode
}

func profilePublicKey(profile koi.NodeProfile) (*ecdsa.PublicKey, error) {
	der, err := base64.RawURLEncoding.DecodeString(profile.PublicKeyDER)
	if err != nil {
		return nil, koierr.ErrInvalidPublicKey
	}
	pub, err := identity.ParsePublicKeyDER(der)
	if err != nil {
		return nil, koierr.ErrInvalidPublicKey
	}
	return pub, nil
}
