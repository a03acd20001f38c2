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

package secure

import (
	"encoding/base64"
	"fmt"

	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/rid"
)

// EncodePublicKeyDER renders kp's public key as the base64url string a
// NodeProfile carries on the wire.
func EncodePublicKeyDER(kp *identity.KeyPair) (string, error) {
	der, err := kp.PublicKeyDER()
	if err != nil {
		return "", fmt.Errorf("secure: encode public key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(der), nil
}

// VerifyNodeProfileIdentity checks that profile's embedded public key
// hashes to r's uuid segment, the invariant every admitted NodeProfile
// bundle must satisfy.
func VerifyNodeProfileIdentity(r rid.RID, publicKeyDER string) error {
	der, err := base64.RawURLEncoding.DecodeString(publicKeyDER)
	if err != nil {
		return fmt.Errorf("secure: decode public key: %w", err)
	}
	pub, err := identity.ParsePublicKeyDER(der)
	if err != nil {
		return err
	}
	derivedRID, err := identity.RIDForPublicKey(pub)
	if err != nil {
		return err
	}
	if derivedRID.UUID() != r.UUID() {
		return fmt.Errorf("secure: public key does not hash to claimed rid")
	}
	return nil
}
