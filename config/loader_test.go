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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPrefersEnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "default.yaml", "node:\n  name: default-node\n  type: PARTIAL\n")
	writeConfigFile(t, dir, "production.yaml", "node:\n  name: prod-node\n  type: PARTIAL\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "production"})
	require.NoError(t, err)
	assert.Equal(t, "prod-node", cfg.Node.Name)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadFallsBackToDefaultYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "default.yaml", "node:\n  name: default-node\n  type: PARTIAL\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "default-node", cfg.Node.Name)
}

func TestLoadFallsBackToConfigYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", "node:\n  name: only-node\n  type: PARTIAL\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "only-node", cfg.Node.Name)
}

func TestLoadWithNoFilesReturnsDefaultedEmptyConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "FULL", cfg.Node.Type)
}

func TestLoadValidatesByDefault(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", "node:\n  type: FULL\n")

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	assert.Error(t, err)
}

func TestLoadSkipValidation(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", "node:\n  type: FULL\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging", SkipValidation: true})
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestApplyEnvironmentOverridesWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", "node:\n  name: file-node\n  type: PARTIAL\n")

	os.Setenv("KOI_NET_NODE_NAME", "env-node")
	defer os.Unsetenv("KOI_NET_NODE_NAME")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "env-node", cfg.Node.Name)
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "config.yaml", "node:\n  type: FULL\n")

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	})
}
