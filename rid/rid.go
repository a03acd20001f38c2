// Package rid implements the typed reference-identifier scheme used to
// name every piece of knowledge exchanged on the network.
//
// An RID has the form orn:<context>:<name>. Parse splits at the first
// ':' after the orn: prefix and keeps the rest whole as the name; no
// +<uuid> suffix is split out. For a KoiNetNode RID, the name is the
// lower-case hex SHA-256 digest of the node's DER-encoded public key.
package rid

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is an RID's context, the key the core dispatches and filters on.
// KoiNetNode and KoiNetEdge get special handling; every other context
// is carried as an opaque Type of its own. TypeOther, the empty Type,
// is the Type of no RID.
type Type string

const (
	TypeKoiNetNode Type = "koi-net.node"
	TypeKoiNetEdge Type = "koi-net.edge"
	TypeOther      Type = ""
)

// RID is a parsed reference identifier.
type RID struct {
	Context string
	Name    string
}

// New builds an RID from its parts.
func New(context, name string) RID {
	return RID{Context: context, Name: name}
}

// Parse parses the canonical "orn:<context>:<name>" wire form.
func Parse(s string) (RID, error) {
	const prefix = "orn:"
	if !strings.HasPrefix(s, prefix) {
		return RID{}, fmt.Errorf("rid: missing orn: prefix: %q", s)
	}
	rest := s[len(prefix):]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return RID{}, fmt.Errorf("rid: missing context separator: %q", s)
	}
	context := rest[:idx]
	name := rest[idx+1:]
	if context == "" || name == "" {
		return RID{}, fmt.Errorf("rid: empty context or name: %q", s)
	}
	return RID{Context: context, Name: name}, nil
}

// MustParse is Parse but panics on error; useful in tests and constants.
func MustParse(s string) RID {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String renders the canonical wire form.
func (r RID) String() string {
	return fmt.Sprintf("orn:%s:%s", r.Context, r.Name)
}

// Type returns the RID's context as a Type.
func (r RID) Type() Type {
	switch r.Context {
	case string(TypeKoiNetNode):
		return TypeKoiNetNode
	case string(TypeKoiNetEdge):
		return TypeKoiNetEdge
	default:
		return Type(r.Context)
	}
}

// IsNode reports whether this RID names a KoiNetNode.
func (r RID) IsNode() bool { return r.Type() == TypeKoiNetNode }

// IsEdge reports whether this RID names a KoiNetEdge.
func (r RID) IsEdge() bool { return r.Type() == TypeKoiNetEdge }

// UUID returns the node/edge's embedded UUID-like name segment. For
// KoiNetNode this is expected to be the lower-case hex SHA-256 of the
// node's DER public key (verified by secure.VerifyNodeProfileIdentity).
func (r RID) UUID() string {
	return r.Name
}

// Equal reports whether two RIDs name the same thing.
func (r RID) Equal(other RID) bool {
	return r.Context == other.Context && r.Name == other.Name
}

// NewNodeRID builds a KoiNetNode RID from a hash-of-public-key uuid.
func NewNodeRID(uuid string) RID {
	return RID{Context: string(TypeKoiNetNode), Name: uuid}
}

// NewEdgeRID builds a KoiNetEdge RID from an opaque identifier
// (typically a UUID generated at proposal time).
func NewEdgeRID(id string) RID {
	return RID{Context: string(TypeKoiNetEdge), Name: id}
}

// MarshalJSON renders the RID as its canonical wire string, matching
// every other implementation's "orn:<context>:<name>" encoding.
func (r RID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses the canonical wire string form.
func (r *RID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rid: unmarshal: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
