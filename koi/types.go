// Package koi holds the core data model shared by every KOI-net
// component: manifests, bundles, events, node/edge profiles, and the
// internal knowledge-object record the pipeline mutates.
package koi

import (
	"time"

	"github.com/koi-net/koi-net/rid"
)

// Manifest identifies a specific revision of an RID.
type Manifest struct {
	RID       rid.RID   `json:"rid"`
	Timestamp time.Time `json:"timestamp"`
	Sha256    string    `json:"sha256_hash"`
}

// Bundle is a manifest plus the contents it describes.
type Bundle struct {
	Manifest Manifest        `json:"manifest"`
	Contents []byte          `json:"contents"`
}

// EventType is the closed set of admissible event kinds.
type EventType string

const (
	EventNew    EventType = "NEW"
	EventUpdate EventType = "UPDATE"
	EventForget EventType = "FORGET"
)

// Event is a change notification for an RID. FORGET carries no bundle;
// NEW/UPDATE should carry one but may omit it, prompting a fetch.
type Event struct {
	RID    rid.RID    `json:"rid"`
	Type   EventType  `json:"event_type"`
	Bundle *Bundle    `json:"bundle,omitempty"`
}

// NodeType distinguishes nodes that serve the five RPC endpoints from
// nodes that only poll.
type NodeType string

const (
	NodeFull    NodeType = "FULL"
	NodePartial NodeType = "PARTIAL"
)

// Provides declares which RID types a node serves as events and as
// queryable state.
type Provides struct {
	Event []rid.Type `json:"event"`
	State []rid.Type `json:"state"`
}

// HasEvent reports whether t is among the declared event types.
func (p Provides) HasEvent(t rid.Type) bool {
	for _, x := range p.Event {
		if x == t {
			return true
		}
	}
	return false
}

// HasState reports whether t is among the declared state types.
func (p Provides) HasState(t rid.Type) bool {
	for _, x := range p.State {
		if x == t {
			return true
		}
	}
	return false
}

// NodeProfile describes a node's identity and capabilities. It is
// itself distributed as the contents of a KoiNetNode bundle.
type NodeProfile struct {
	BaseURL     string   `json:"base_url,omitempty"`
	NodeType    NodeType `json:"node_type"`
	Provides    Provides `json:"provides"`
	PublicKeyDER string  `json:"public_key"` // unpadded base64url-encoded DER SubjectPublicKeyInfo
}

// EdgeType is the delivery discipline a subscription edge uses.
type EdgeType string

const (
	EdgeWebhook EdgeType = "WEBHOOK"
	EdgePoll    EdgeType = "POLL"
)

// EdgeStatus tracks negotiation state. Approval is strictly monotonic:
// PROPOSED -> APPROVED, never backward.
type EdgeStatus string

const (
	EdgeProposed EdgeStatus = "PROPOSED"
	EdgeApproved EdgeStatus = "APPROVED"
)

// EdgeProfile is a directed subscription: Target is subscribed to
// events about RIDTypes originating from Source.
type EdgeProfile struct {
	Source   rid.RID    `json:"source"`
	Target   rid.RID    `json:"target"`
	Type     EdgeType   `json:"edge_type"`
	RIDTypes []rid.Type `json:"rid_types"`
	Status   EdgeStatus `json:"status"`
}

// Handles reports whether this edge is APPROVED and carries t.
func (e EdgeProfile) Handles(t rid.Type) bool {
	if e.Status != EdgeApproved {
		return false
	}
	for _, x := range e.RIDTypes {
		if x == t {
			return true
		}
	}
	return false
}

// Source distinguishes an internally-produced KO (e.g. our own profile
// change) from one that arrived over the network.
type Source string

const (
	SourceInternal Source = "internal"
	SourceExternal Source = "external"
)

// KnowledgeObject is the internal pipeline record: it mutates in place
// as it progresses through the five stages.
type KnowledgeObject struct {
	RID                 rid.RID
	EventType           EventType // as received; may be empty until Stage 1 sets it
	Manifest            *Manifest
	Contents            []byte
	Source              Source
	SourcePeer          *rid.RID // nil for internally-produced KOs
	NormalizedEventType EventType
	NetworkTargets      map[rid.RID]struct{}

	Attempt    int       // supplemental: diagnostic re-fetch counter, never read by handlers
	ReceivedAt time.Time // supplemental: diagnostic receipt timestamp
}

// NewKnowledgeObject seeds a KO from an inbound or internal event.
func NewKnowledgeObject(e Event, source Source, sourcePeer *rid.RID) *KnowledgeObject {
	ko := &KnowledgeObject{
		RID:            e.RID,
		EventType:      e.Type,
		Source:         source,
		SourcePeer:     sourcePeer,
		NetworkTargets: make(map[rid.RID]struct{}),
		ReceivedAt:     time.Now(),
	}
	if e.Bundle != nil {
		m := e.Bundle.Manifest
		ko.Manifest = &m
		ko.Contents = e.Bundle.Contents
	}
	return ko
}

// AddTarget records t as a broadcast destination for this KO.
func (k *KnowledgeObject) AddTarget(t rid.RID) {
	if k.NetworkTargets == nil {
		k.NetworkTargets = make(map[rid.RID]struct{})
	}
	k.NetworkTargets[t] = struct{}{}
}

// BundleOrNil assembles the current manifest/contents into a Bundle, or nil
// if either half is missing (e.g. for a FORGET with no prior state).
func (k *KnowledgeObject) BundleOrNil() *Bundle {
	if k.Manifest == nil || k.Contents == nil {
		return nil
	}
	return &Bundle{Manifest: *k.Manifest, Contents: k.Contents}
}

// ToEvent renders the KO's normalized event for enqueueing to peers.
func (k *KnowledgeObject) ToEvent() Event {
	ev := Event{RID: k.RID, Type: k.NormalizedEventType}
	if ev.Type == "" {
		ev.Type = k.EventType
	}
	if ev.Type != EventForget {
		ev.Bundle = k.BundleOrNil()
	}
	return ev
}
