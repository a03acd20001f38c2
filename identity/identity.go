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

// Package identity manages a node's P-256 ECDSA signing key: generating
// it on first run, persisting it to a PEM file (optionally passphrase
// encrypted), and deriving the node's own RID from its public key.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/koi-net/koi-net/rid"
)

// ErrKeyNotFound is returned by Load when the key file does not exist.
var ErrKeyNotFound = errors.New("identity: private key file not found")

// ErrInvalidPassphrase is returned when a passphrase-encrypted key
// cannot be decrypted with the supplied passphrase.
var ErrInvalidPassphrase = errors.New("identity: incorrect passphrase or corrupt key file")

// KeyPair holds a node's P-256 ECDSA key pair and its derived RID.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	rid     rid.RID
}

// NodeRID returns the RID derived from this key pair's public key.
func (kp *KeyPair) NodeRID() rid.RID {
	return kp.rid
}

// PublicKeyDER returns the SubjectPublicKeyInfo DER encoding of the
// public key, as carried on the wire in a NodeProfile.
func (kp *KeyPair) PublicKeyDER() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&kp.Private.PublicKey)
}

// Sign produces a signature over the SHA-256 digest of message using a
// 64-byte r||s big-endian encoding.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, kp.Private, digest[:])
	if err != nil {
		return nil, fmt.Errorf("identity: sign: %w", err)
	}
	return serializeSignature(r, s), nil
}

// Verify checks a 64-byte r||s signature over message against pub.
func Verify(pub *ecdsa.PublicKey, message, signature []byte) error {
	if len(signature) != 64 {
		return errors.New("identity: signature must be 64 bytes")
	}
	digest := sha256.Sum256(message)
	r, s := deserializeSignature(signature)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return errors.New("identity: signature verification failed")
	}
	return nil
}

// ParsePublicKeyDER decodes a SubjectPublicKeyInfo DER blob into a P-256
// ECDSA public key.
func ParsePublicKeyDER(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("identity: public key is not ECDSA")
	}
	if ecdsaPub.Curve != elliptic.P256() {
		return nil, errors.New("identity: public key is not on curve P-256")
	}
	return ecdsaPub, nil
}

// RIDForPublicKey derives the koi-net.node RID for a public key: the
// lower-case hex SHA-256 digest of its SubjectPublicKeyInfo DER
// encoding.
func RIDForPublicKey(pub *ecdsa.PublicKey) (rid.RID, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return rid.RID{}, fmt.Errorf("identity: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return rid.NewNodeRID(hex.EncodeToString(sum[:])), nil
}

func newKeyPair(priv *ecdsa.PrivateKey) (*KeyPair, error) {
	nodeRID, err := RIDForPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, rid: nodeRID}, nil
}

// Generate creates a fresh P-256 ECDSA key pair.
func Generate() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return newKeyPair(priv)
}

// LoadOrGenerate loads the key pair from path, generating and
// persisting a new one if the file does not exist. passphrase may be
// empty to store the key unencrypted.
func LoadOrGenerate(path string, passphrase []byte) (*KeyPair, error) {
	kp, err := Load(path, passphrase)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	kp, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := Save(kp, path, passphrase); err != nil {
		return nil, err
	}
	return kp, nil
}

// Load reads a PEM-encoded private key from path, decrypting it with
// passphrase if it was stored encrypted.
func Load(path string, passphrase []byte) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("identity: key file is not valid PEM")
	}

	der := block.Bytes
	if len(passphrase) > 0 {
		der, err = decryptDER(der, passphrase)
		if err != nil {
			return nil, err
		}
	}

	priv, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	return newKeyPair(priv)
}

// Save writes kp's private key to path as PEM, creating parent
// directories as needed. If passphrase is non-empty the key is
// encrypted with AES-256-GCM before being PEM-wrapped.
func Save(kp *KeyPair, path string, passphrase []byte) error {
	der, err := x509.MarshalECPrivateKey(kp.Private)
	if err != nil {
		return fmt.Errorf("identity: marshal private key: %w", err)
	}

	blockType := "EC PRIVATE KEY"
	if len(passphrase) > 0 {
		der, err = encryptDER(der, passphrase)
		if err != nil {
			return err
		}
		blockType = "KOI-NET ENCRYPTED PRIVATE KEY"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: create key directory: %w", err)
	}

	block := &pem.Block{Type: blockType, Bytes: der}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("identity: write key file: %w", err)
	}
	return nil
}

// serializeSignature pads r and s to 32 bytes each and concatenates them.
func serializeSignature(r, s *big.Int) []byte {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	sig := make([]byte, 64)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig
}

func deserializeSignature(data []byte) (*big.Int, *big.Int) {
	r := new(big.Int).SetBytes(data[:32])
	s := new(big.Int).SetBytes(data[32:])
	return r, s
}
