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

// Package sweeper keeps election statuses in step with the clock.
package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/votesync/database"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultInterval = 60 * time.Second

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Database     *database.Database
	// Now returns the time each sweep compares against. Defaults to time.Now
	Now func() time.Time
	// TickSource replaces the interval ticker, mainly for tests
	TickSource <-chan time.Time
	Interval   time.Duration
}

// Sweeper periodically advances election statuses:
// notStarted -> ongoing once the start time has passed, and
// ongoing -> ended once the end time has passed.
type Sweeper struct {
	config    Config
	logger    *slog.Logger
	metrics   *sweepMetrics
	scheduler *Scheduler
	cancel    context.CancelFunc
	mu        sync.Mutex
}

func New(cfg Config) (*Sweeper, error) {
	if cfg.Database == nil {
		return nil, errors.New("no database configured")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Sweeper{
		config: cfg,
		logger: cfg.Logger,
	}
	if cfg.PromRegistry != nil {
		s.metrics = &sweepMetrics{}
		s.metrics.init(cfg.PromRegistry)
	}
	return s, nil
}

// Sweep runs a single pass and returns the number of elections started and
// ended
func (s *Sweeper) Sweep(ctx context.Context) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	start := time.Now()
	now := s.config.Now()
	started, ended, err := s.config.Database.AdvanceElectionStatuses(now, nil)
	if s.metrics != nil {
		s.metrics.duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.runsTotal.WithLabelValues("error").Inc()
		}
		return 0, 0, err
	}
	if s.metrics != nil {
		s.metrics.runsTotal.WithLabelValues("ok").Inc()
		s.metrics.transitionsTotal.WithLabelValues("ongoing").Add(float64(started))
		s.metrics.transitionsTotal.WithLabelValues("ended").Add(float64(ended))
	}
	if started > 0 || ended > 0 {
		s.logger.Info(
			"election statuses updated",
			"component", "sweeper",
			"started", started,
			"ended", ended,
		)
	}
	return started, ended, nil
}

// Start runs a sweep on every scheduler tick until Stop is called
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return errors.New("sweeper already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	var opts []SchedulerOptionFunc
	if s.config.TickSource != nil {
		opts = append(opts, WithTickSource(s.config.TickSource))
	}
	scheduler := NewScheduler(s.config.Interval, opts...)
	scheduler.Register(1, func() {
		if _, _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(
				"status sweep failed",
				"component", "sweeper",
				"error", err,
			)
		}
	})
	scheduler.Start()
	s.scheduler = scheduler
	s.cancel = cancel
	s.logger.Debug(
		"status sweeper started",
		"component", "sweeper",
		"interval", s.config.Interval,
	)
	return nil
}

// Stop stops the scheduler, waiting for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return
	}
	s.cancel()
	s.scheduler.Stop()
	s.scheduler = nil
	s.cancel = nil
}
