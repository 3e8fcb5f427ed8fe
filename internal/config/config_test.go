// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"LEDGER_URL",
		"CONTRACT_ADDRESS",
		"VOTESYNC_LEDGER_URL",
		"VOTESYNC_CONTRACT_ADDRESS",
		"VOTESYNC_METADATA_PLUGIN",
		"VOTESYNC_SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "votesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.LedgerUrl)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
}

func TestLoadConfigFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
ledgerUrl: "ws://ledger:8546"
contractAddress: "`+testContract+`"
metadataPlugin: "postgres"
databaseDsn: "host=db user=votesync"
abiPath: "/opt/votesync/Voting.json"
databaseMaxConnections: 8
startBlock: 1200
sweepInterval: 30s
pollInterval: 2s
metricsPort: 9100
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	expected := DefaultConfig()
	expected.LedgerUrl = "ws://ledger:8546"
	expected.ContractAddress = testContract
	expected.MetadataPlugin = "postgres"
	expected.DatabaseDsn = "host=db user=votesync"
	expected.AbiPath = "/opt/votesync/Voting.json"
	expected.DatabaseMaxConnections = 8
	expected.StartBlock = 1200
	expected.SweepInterval = 30 * time.Second
	expected.PollInterval = 2 * time.Second
	expected.MetricsPort = 9100
	assert.Equal(t, expected, cfg)
}

func TestLoadConfigEnvironment(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `ledgerUrl: "http://from-file:8545"`)
	t.Setenv("LEDGER_URL", "http://from-env:8545")
	t.Setenv("CONTRACT_ADDRESS", testContract)
	t.Setenv("VOTESYNC_SWEEP_INTERVAL", "5s")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8545", cfg.LedgerUrl)
	assert.Equal(t, testContract, cfg.ContractAddress)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
}

func TestLoadConfigPrefixedEnvironmentWins(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LEDGER_URL", "http://plain:8545")
	t.Setenv("VOTESYNC_LEDGER_URL", "http://prefixed:8545")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://prefixed:8545", cfg.LedgerUrl)
}

func TestLoadConfigUserFile(t *testing.T) {
	isolateEnv(t)
	home := os.Getenv("HOME")
	dir := filepath.Join(home, ".votesync")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "votesync.yaml"),
		[]byte("startBlock: 77\n"),
		0o600,
	))
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint64(77), cfg.StartBlock)
}

func TestLoadConfigErrors(t *testing.T) {
	isolateEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeConfig(t, "sweepInterval: [not a duration\n")
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.ContractAddress = testContract
	require.NoError(t, valid.Validate())
	assert.Equal(t, testContract, valid.Contract().Hex())

	testDefs := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{
			name:   "missing contract",
			mutate: func(c *Config) { c.ContractAddress = "" },
			err:    ErrInvalidContractAddress,
		},
		{
			name:   "malformed contract",
			mutate: func(c *Config) { c.ContractAddress = "0x1234" },
			err:    ErrInvalidContractAddress,
		},
		{
			name:   "unknown plugin",
			mutate: func(c *Config) { c.MetadataPlugin = "oracle" },
			err:    ErrUnknownMetadataPlugin,
		},
		{
			name:   "missing abi file",
			mutate: func(c *Config) { c.AbiPath = filepath.Join(t.TempDir(), "Voting.json") },
			err:    os.ErrNotExist,
		},
		{
			name:   "zero sweep interval",
			mutate: func(c *Config) { c.SweepInterval = 0 },
			err:    ErrInvalidInterval,
		},
		{
			name:   "negative poll interval",
			mutate: func(c *Config) { c.PollInterval = -time.Second },
			err:    ErrInvalidInterval,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			cfg := *valid
			testDef.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), testDef.err)
		})
	}
}

func TestMetadataPluginNames(t *testing.T) {
	assert.Equal(
		t,
		[]string{"mysql", "postgres", "sqlite"},
		MetadataPluginNames(),
	)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
