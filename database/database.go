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

package database

import (
	"io"
	"log/slog"

	"github.com/blinklabs-io/votesync/database/plugin"
	"github.com/blinklabs-io/votesync/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the settings used to open the read store
type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	DataDir        string
	Dsn            string
	MetadataPlugin string
	MaxConnections int
}

// Database is the read store: the local, queryable replica of the ledger's
// election state
type Database struct {
	logger   *slog.Logger
	metadata metadata.MetadataStore
	dataDir  string
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	if d.metadata == nil {
		return nil
	}
	return d.metadata.Close()
}

// New opens the read store described by cfg. An empty DataDir with the
// sqlite plugin gives a private in-memory store.
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataDb, err := metadata.New(
		cfg.MetadataPlugin,
		plugin.Options{
			Logger:         logger,
			PromRegistry:   cfg.PromRegistry,
			DataDir:        cfg.DataDir,
			Dsn:            cfg.Dsn,
			MaxConnections: cfg.MaxConnections,
		},
	)
	if err != nil {
		return nil, err
	}
	return &Database{
		logger:   logger,
		metadata: metadataDb,
		dataDir:  cfg.DataDir,
	}, nil
}
