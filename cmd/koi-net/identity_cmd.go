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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koi-net/koi-net/identity"
)

var (
	identityKeyFile    string
	identityPassphrase string
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage this node's signing key and RID",
}

var identityInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new P-256 key pair and derive the node's RID",
	RunE:  runIdentityInit,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the node's RID for an existing key file",
	RunE:  runIdentityShow,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityInitCmd)
	identityCmd.AddCommand(identityShowCmd)

	for _, c := range []*cobra.Command{identityInitCmd, identityShowCmd} {
		c.Flags().StringVar(&identityKeyFile, "key-file", ".koi/identity.pem", "path to the node's private key PEM file")
		c.Flags().StringVar(&identityPassphrase, "passphrase-env", "", "environment variable holding the key's passphrase, if encrypted")
	}
}

func runIdentityInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(identityKeyFile); err == nil {
		return fmt.Errorf("key file %q already exists; use 'identity show' to inspect it", identityKeyFile)
	}

	kp, err := identity.LoadOrGenerate(identityKeyFile, passphraseBytes())
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	fmt.Printf("generated key at %s\n", identityKeyFile)
	fmt.Printf("node rid: %s\n", kp.NodeRID().String())
	return nil
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	kp, err := identity.Load(identityKeyFile, passphraseBytes())
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	fmt.Printf("node rid: %s\n", kp.NodeRID().String())
	return nil
}

func passphraseBytes() []byte {
	if identityPassphrase == "" {
		return nil
	}
	return []byte(os.Getenv(identityPassphrase))
}
