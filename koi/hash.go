package koi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalHash returns the lower-case hex SHA-256 digest of the
// canonical JSON encoding of contents. "Canonical" here means: decode
// to a generic interface{} and re-encode with sorted map keys (which is
// what encoding/json already does for map[string]interface{}), so two
// byte-for-byte different but semantically equal JSON documents hash
// the same.
func CanonicalHash(contents []byte) (string, error) {
	canon, err := Canonicalize(contents)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize re-encodes arbitrary JSON bytes into a stable form:
// object keys sorted, no insignificant whitespace.
func Canonicalize(contents []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(contents, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// VerifyIntegrity checks that manifest.Sha256 matches the canonical
// hash of contents, per the bundle-integrity invariant.
func VerifyIntegrity(m Manifest, contents []byte) (bool, error) {
	h, err := CanonicalHash(contents)
	if err != nil {
		return false, err
	}
	return h == m.Sha256, nil
}

// NewBundle builds a Bundle, computing the manifest hash from contents.
func NewBundle(r Manifest, contents []byte) (Bundle, error) {
	h, err := CanonicalHash(contents)
	if err != nil {
		return Bundle{}, err
	}
	r.Sha256 = h
	return Bundle{Manifest: r, Contents: contents}, nil
}
