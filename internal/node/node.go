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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/votesync"
	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/internal/config"
	"github.com/blinklabs-io/votesync/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run connects to the ledger, starts the sync engine and blocks until
// SIGINT/SIGTERM or a fatal metrics listener error
func Run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	var contract *ledger.Contract
	if cfg.AbiPath != "" {
		var err error
		contract, err = ledger.LoadContract(cfg.AbiPath)
		if err != nil {
			return err
		}
		logger.Info(
			"loaded contract ABI",
			"component", "node",
			"path", cfg.AbiPath,
		)
	}

	logger.Info(
		"connecting to ledger",
		"component", "node",
		"url", cfg.LedgerUrl,
	)
	client, err := ledger.Dial(signalCtx, cfg.LedgerUrl, cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	engine, err := votesync.New(
		votesync.NewConfig(
			votesync.WithLogger(logger),
			votesync.WithLogSource(client),
			votesync.WithContractAddress(cfg.Contract()),
			votesync.WithContract(contract),
			votesync.WithStartBlock(cfg.StartBlock),
			votesync.WithPollInterval(cfg.PollInterval),
			votesync.WithSweepInterval(cfg.SweepInterval),
			votesync.WithDatabasePath(cfg.DatabasePath),
			votesync.WithMetadataPlugin(cfg.MetadataPlugin),
			votesync.WithDatabaseDsn(cfg.DatabaseDsn),
			votesync.WithDatabaseMaxConnections(cfg.DatabaseMaxConnections),
			votesync.WithShutdownTimeout(cfg.ShutdownTimeout),
			votesync.WithTracing(cfg.Tracing),
			votesync.WithTracingStdout(cfg.TracingStdout),
			// Enable metrics with default prometheus registry
			votesync.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}
	if err := engine.Start(signalCtx); err != nil {
		return err
	}

	// Metrics listener
	metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	logger.Info(
		"serving prometheus metrics on "+metricsAddr,
		"component", "node",
	)
	errChan := make(chan error, 1)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics listener: %w", err)
		}
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info(
			"signal received, initiating graceful shutdown",
			"component", "node",
		)
	case runErr = <-errChan:
		logger.Error("node error", "component", "node", "error", runErr)
	}
	signalCtxStop()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(
			"metrics server shutdown error",
			"component", "node",
			"error", err,
		)
	}
	if err := engine.Stop(); err != nil {
		logger.Error(
			"shutdown errors occurred",
			"component", "node",
			"error", err,
		)
		return errors.Join(runErr, err)
	}
	if runErr == nil {
		logger.Info("shutdown complete", "component", "node")
	}
	return runErr
}

// OpenDatabase opens the configured read store directly, for one-shot
// operator commands
func OpenDatabase(
	cfg *config.Config,
	logger *slog.Logger,
) (*database.Database, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	db, err := database.New(&database.Config{
		Logger:         logger,
		DataDir:        cfg.DatabasePath,
		Dsn:            cfg.DatabaseDsn,
		MetadataPlugin: cfg.MetadataPlugin,
		MaxConnections: cfg.DatabaseMaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
