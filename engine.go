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

// Package votesync keeps a local read store in sync with an election
// contract on a smart-contract ledger.
package votesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/event"
	"github.com/blinklabs-io/votesync/ledger"
	"github.com/blinklabs-io/votesync/projection"
	"github.com/blinklabs-io/votesync/sweeper"
	"github.com/ethereum/go-ethereum/common"
)

// Engine owns the synchronization pipeline: ledger subscriber, event bus,
// projection handlers and status sweeper
type Engine struct {
	config     Config
	db         *database.Database
	eventBus   *event.EventBus
	projector  *projection.Projector
	subscriber *ledger.Subscriber
	sweeper    *sweeper.Sweeper
	tracerStop func(context.Context) error
	ownsDb     bool
	running    bool
	mu         sync.Mutex
}

func New(cfg Config) (*Engine, error) {
	if cfg.contractAddress == (common.Address{}) {
		return nil, fmt.Errorf("invalid configuration: %w", ledger.ErrNoContractAddress)
	}
	if cfg.logSource == nil {
		return nil, errors.New("invalid configuration: no ledger log source")
	}
	if cfg.sweepInterval <= 0 {
		return nil, fmt.Errorf(
			"invalid configuration: sweep interval must be positive: %s",
			cfg.sweepInterval,
		)
	}
	return &Engine{config: cfg}, nil
}

// Database returns the read store, or nil before Start
func (e *Engine) Database() *database.Database {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

// Start opens the read store if needed and starts following the ledger. A
// ledger stream that cannot be established fails Start and nothing is left
// running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already running")
	}
	logger := e.config.logger
	if e.config.tracing {
		if err := e.setupTracing(ctx); err != nil {
			return err
		}
	}
	db := e.config.database
	if db == nil {
		var err error
		db, err = database.New(&database.Config{
			Logger:         logger,
			PromRegistry:   e.config.promRegistry,
			DataDir:        e.config.dataDir,
			Dsn:            e.config.databaseDsn,
			MetadataPlugin: e.config.metadataPlugin,
			MaxConnections: e.config.maxConnections,
		})
		if err != nil {
			return errors.Join(
				fmt.Errorf("failed to open database: %w", err),
				e.shutdown(),
			)
		}
		e.ownsDb = true
	}
	e.db = db
	e.eventBus = event.NewEventBus(e.config.promRegistry, logger)
	projector, err := projection.New(projection.Config{
		Logger:       logger,
		PromRegistry: e.config.promRegistry,
		Database:     db,
		Now:          e.config.now,
	})
	if err != nil {
		return errors.Join(err, e.shutdown())
	}
	e.projector = projector
	e.projector.Subscribe(e.eventBus)
	subscriber, err := ledger.NewSubscriber(ledger.SubscriberConfig{
		Logger:          logger,
		PromRegistry:    e.config.promRegistry,
		Source:          e.config.logSource,
		EventBus:        e.eventBus,
		Checkpoints:     db,
		ContractAddress: e.config.contractAddress,
		Contract:        e.config.contract,
		StartBlock:      e.config.startBlock,
		PollInterval:    e.config.pollInterval,
		Replay: func(evt event.Event) {
			projector.HandleEvent(evt)
		},
	})
	if err != nil {
		return errors.Join(err, e.shutdown())
	}
	e.subscriber = subscriber
	if err := e.subscriber.Start(ctx); err != nil {
		return errors.Join(
			fmt.Errorf("failed to start ledger subscriber: %w", err),
			e.shutdown(),
		)
	}
	statusSweeper, err := sweeper.New(sweeper.Config{
		Logger:       logger,
		PromRegistry: e.config.promRegistry,
		Database:     db,
		Now:          e.config.now,
		TickSource:   e.config.sweepTicks,
		Interval:     e.config.sweepInterval,
	})
	if err != nil {
		return errors.Join(err, e.shutdown())
	}
	e.sweeper = statusSweeper
	// Catch up on transitions missed while the engine was down
	if _, _, err := e.sweeper.Sweep(ctx); err != nil {
		logger.Warn(
			"initial status sweep failed",
			"component", "engine",
			"error", err,
		)
	}
	if err := e.sweeper.Start(); err != nil {
		return errors.Join(err, e.shutdown())
	}
	e.running = true
	logger.Info(
		"synchronization engine started",
		"component", "engine",
		"contract", e.config.contractAddress.Hex(),
		"sweep_interval", e.config.sweepInterval,
	)
	return nil
}

// Stop shuts the pipeline down, waiting for queued events to be projected
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	return e.shutdown()
}

func (e *Engine) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if e.config.shutdownTimeout > 0 {
		shutdownTimeout = e.config.shutdownTimeout
	}
	done := make(chan error, 1)
	go func() {
		done <- e.stopComponents()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}
}

func (e *Engine) stopComponents() error {
	var err error
	e.config.logger.Debug("stopping synchronization engine", "component", "engine")
	// Stop producing events first
	if e.subscriber != nil {
		if stopErr := e.subscriber.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("ledger subscriber shutdown: %w", stopErr))
		}
		e.subscriber = nil
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
		e.sweeper = nil
	}
	// Drain queued events into the store
	if e.eventBus != nil {
		e.eventBus.Stop()
	}
	if e.projector != nil {
		e.projector.Unsubscribe()
		e.projector = nil
	}
	if e.db != nil && e.ownsDb {
		if closeErr := e.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
		e.db = nil
		e.ownsDb = false
	}
	if e.tracerStop != nil {
		if stopErr := e.tracerStop(context.Background()); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("tracer shutdown: %w", stopErr))
		}
		e.tracerStop = nil
	}
	return err
}
