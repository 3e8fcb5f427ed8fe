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

package votesync

import (
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	database        *database.Database
	logSource       ledger.LogSource
	contract        *ledger.Contract
	sweepTicks      <-chan time.Time
	now             func() time.Time
	dataDir         string
	metadataPlugin  string
	databaseDsn     string
	maxConnections  int
	startBlock      uint64
	pollInterval    time.Duration
	sweepInterval   time.Duration
	shutdownTimeout time.Duration
	contractAddress common.Address
	tracing         bool
	tracingStdout   bool
}

// ConfigOptionFunc is a type that represents functions that modify the Engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new engine config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		sweepInterval: 60 * time.Second,
		pollInterval:  ledger.DefaultPollInterval,
		now:           time.Now,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabase specifies an open read store. The engine does not close it.
func WithDatabase(db *database.Database) ConfigOptionFunc {
	return func(c *Config) {
		c.database = db
	}
}

// WithDatabasePath specifies the persistent storage directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataPlugin specifies the storage plugin used for the read store
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithDatabaseDsn specifies the connection string for server-backed storage plugins
func WithDatabaseDsn(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.databaseDsn = dsn
	}
}

// WithDatabaseMaxConnections limits the read store connection pool
func WithDatabaseMaxConnections(maxConnections int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxConnections = maxConnections
	}
}

// WithLogSource specifies the ledger client to follow
func WithLogSource(source ledger.LogSource) ConfigOptionFunc {
	return func(c *Config) {
		c.logSource = source
	}
}

// WithContractAddress specifies the election contract to follow
func WithContractAddress(address common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.contractAddress = address
	}
}

// WithContract specifies the contract ABI used to decode logs. The built-in
// ABI is used by default.
func WithContract(contract *ledger.Contract) ConfigOptionFunc {
	return func(c *Config) {
		c.contract = contract
	}
}

// WithStartBlock specifies the block to replay from when no checkpoint exists
func WithStartBlock(block uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.startBlock = block
	}
}

// WithPollInterval specifies how often ledger endpoints without push
// subscriptions are polled
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithSweepInterval specifies the period of the election status sweep
func WithSweepInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepInterval = interval
	}
}

// WithSweepTicks drives the status sweep from the given channel instead of
// the sweep interval
func WithSweepTicks(ticks <-chan time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepTicks = ticks
	}
}

// WithClock specifies the time source used for status decisions
func WithClock(now func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.now = now
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown.
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
