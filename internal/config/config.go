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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/blinklabs-io/votesync/database/plugin"
	// Register the metadata plugins so they can be validated by name
	_ "github.com/blinklabs-io/votesync/database/plugin/metadata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "votesync.config"

const (
	DefaultMetadataPlugin  = "sqlite"
	DefaultLedgerUrl       = "http://127.0.0.1:8545"
	DefaultDatabasePath    = ".votesync"
	DefaultBindAddr        = "0.0.0.0"
	DefaultMetricsPort     = 12799
	DefaultSweepInterval   = 60 * time.Second
	DefaultPollInterval    = 4 * time.Second
	DefaultDialTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

var (
	ErrInvalidContractAddress = errors.New("invalid contract address")
	ErrUnknownMetadataPlugin  = errors.New("unknown metadata plugin")
	ErrInvalidInterval        = errors.New("interval must be positive")
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	LedgerUrl              string        `yaml:"ledgerUrl"              envconfig:"LEDGER_URL"`
	ContractAddress        string        `yaml:"contractAddress"        envconfig:"CONTRACT_ADDRESS"`
	MetadataPlugin         string        `yaml:"metadataPlugin"                                        split_words:"true"`
	DatabasePath           string        `yaml:"databasePath"                                          split_words:"true"`
	DatabaseDsn            string        `yaml:"databaseDsn"                                           split_words:"true"`
	AbiPath                string        `yaml:"abiPath"                                               split_words:"true"`
	BindAddr               string        `yaml:"bindAddr"                                              split_words:"true"`
	StartBlock             uint64        `yaml:"startBlock"                                            split_words:"true"`
	DatabaseMaxConnections int           `yaml:"databaseMaxConnections"                                split_words:"true"`
	MetricsPort            uint          `yaml:"metricsPort"                                           split_words:"true"`
	SweepInterval          time.Duration `yaml:"sweepInterval"                                         split_words:"true"`
	PollInterval           time.Duration `yaml:"pollInterval"                                          split_words:"true"`
	DialTimeout            time.Duration `yaml:"dialTimeout"                                           split_words:"true"`
	ShutdownTimeout        time.Duration `yaml:"shutdownTimeout"                                       split_words:"true"`
	Tracing                bool          `yaml:"tracing"`
	TracingStdout          bool          `yaml:"tracingStdout"                                         split_words:"true"`
}

// DefaultConfig returns a Config populated with the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		LedgerUrl:       DefaultLedgerUrl,
		MetadataPlugin:  DefaultMetadataPlugin,
		DatabasePath:    DefaultDatabasePath,
		BindAddr:        DefaultBindAddr,
		MetricsPort:     DefaultMetricsPort,
		SweepInterval:   DefaultSweepInterval,
		PollInterval:    DefaultPollInterval,
		DialTimeout:     DefaultDialTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadConfig builds the config from defaults, an optional YAML file and the
// environment, in that order of precedence
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Environment variables use the VOTESYNC_ prefix, with the unprefixed
	// LEDGER_URL and CONTRACT_ADDRESS also accepted
	if err := envconfig.Process("votesync", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	// ~/.votesync/votesync.yaml
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".votesync", "votesync.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/votesync/votesync.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// Validate checks the settings needed to run the sync engine
func (c *Config) Validate() error {
	if c.ContractAddress == "" || !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf(
			"%w: %q",
			ErrInvalidContractAddress,
			c.ContractAddress,
		)
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.AbiPath != "" {
		if _, err := os.Stat(c.AbiPath); err != nil {
			return fmt.Errorf("abiPath: %w", err)
		}
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweepInterval: %w", ErrInvalidInterval)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval: %w", ErrInvalidInterval)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dialTimeout: %w", ErrInvalidInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout: %w", ErrInvalidInterval)
	}
	return nil
}

// ValidateDatabase checks only the read store settings, for commands that
// don't talk to the ledger
func (c *Config) ValidateDatabase() error {
	if !slices.Contains(MetadataPluginNames(), c.MetadataPlugin) {
		return fmt.Errorf(
			"%w: %q",
			ErrUnknownMetadataPlugin,
			c.MetadataPlugin,
		)
	}
	if c.DatabaseMaxConnections < 0 {
		return errors.New("databaseMaxConnections must not be negative")
	}
	return nil
}

// Contract returns the parsed contract address
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// MetadataPluginNames lists the registered metadata store plugins
func MetadataPluginNames() []string {
	var ret []string
	for _, p := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
		ret = append(ret, p.Name)
	}
	return ret
}
