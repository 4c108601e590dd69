// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/abistore/store"
)

func TestConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg, err := getConfig(nil)
	require.NoError(t, err)
	assert.False(cfg.Version)
	assert.Equal(store.DriverPQ, cfg.Store.Driver)
	assert.Equal(16, cfg.Store.MaxOpenConns)
	assert.Equal(30*time.Minute, cfg.Store.ConnMaxLifetime)
	assert.Equal(uint(9650), cfg.HTTPPort)
	assert.Equal("info", cfg.LogLevel)
	assert.Empty(cfg.ABIs)
}

func TestConfigFlags(t *testing.T) {
	assert := assert.New(t)

	cfg, err := getConfig([]string{
		"--version",
		"--db-driver=pgx",
		"--database-url=postgres://localhost/abistore",
		"--abi=a.json, b.json",
		"--http-port=8080",
	})
	require.NoError(t, err)
	assert.True(cfg.Version)
	assert.Equal(store.DriverPGX, cfg.Store.Driver)
	assert.Equal("postgres://localhost/abistore", cfg.Store.URL)
	assert.Equal([]string{"a.json", "b.json"}, cfg.ABIs)
	assert.Equal(uint(8080), cfg.HTTPPort)
}

func TestConfigFileAndEnv(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(os.WriteFile(path, []byte(`{"log-level": "debug", "db-max-idle-conns": 2}`), 0o600))
	t.Setenv("ABISTORE_HTTP_HOST", "0.0.0.0")

	cfg, err := getConfig([]string{"--config-file=" + path})
	require.NoError(err)
	require.Equal("debug", cfg.LogLevel)
	require.Equal(2, cfg.Store.MaxIdleConns)
	require.Equal("0.0.0.0", cfg.HTTPHost)
}
