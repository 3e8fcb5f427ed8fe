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

package sweeper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/database/models"
	"github.com/blinklabs-io/votesync/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a settable time source
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func createElection(t *testing.T, db *database.Database, id uint64, start, end time.Time) {
	t.Helper()
	_, _, err := db.CreateElection(
		&models.Election{
			ID:        id,
			Name:      "Referendum",
			StartTime: start,
			EndTime:   end,
			IsPublic:  true,
		},
		nil,
	)
	require.NoError(t, err)
}

func electionStatus(t *testing.T, db *database.Database, id uint64) string {
	t.Helper()
	election, err := db.GetElection(id, nil)
	require.NoError(t, err)
	return election.Status
}

func TestSweepScenarios(t *testing.T) {
	db := newTestDatabase(t)
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	now := clock.Now()
	// Started one second ago
	createElection(t, db, 1, now.Add(-time.Second), now.Add(time.Hour))
	// Starts in an hour
	createElection(t, db, 2, now.Add(time.Hour), now.Add(2*time.Hour))
	// Ended one second ago
	createElection(t, db, 3, now.Add(-time.Hour), now.Add(-time.Second))

	s, err := sweeper.New(sweeper.Config{
		Database:     db,
		Now:          clock.Now,
		PromRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	started, ended, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), started)
	assert.Equal(t, int64(1), ended)
	assert.Equal(t, models.ElectionStatusOngoing, electionStatus(t, db, 1))
	assert.Equal(t, models.ElectionStatusNotStarted, electionStatus(t, db, 2))
	assert.Equal(t, models.ElectionStatusEnded, electionStatus(t, db, 3))

	// Statuses only move forward, even if the clock goes back
	clock.Set(now.Add(-24 * time.Hour))
	_, _, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ElectionStatusOngoing, electionStatus(t, db, 1))
	assert.Equal(t, models.ElectionStatusEnded, electionStatus(t, db, 3))
}

func TestSweepCancelledContext(t *testing.T) {
	db := newTestDatabase(t)
	s, err := sweeper.New(sweeper.Config{Database: db})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = s.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSweeperRunsOnTick(t *testing.T) {
	db := newTestDatabase(t)
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	now := clock.Now()
	createElection(t, db, 1, now.Add(time.Minute), now.Add(2*time.Minute))

	ticks := make(chan time.Time)
	s, err := sweeper.New(sweeper.Config{
		Database:   db,
		Now:        clock.Now,
		TickSource: ticks,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	ticks <- now
	// A second tick is only taken after the first sweep completes
	clock.Set(now.Add(90 * time.Second))
	ticks <- now
	clock.Set(now.Add(3 * time.Minute))
	ticks <- now
	ticks <- now
	s.Stop()
	assert.Equal(t, models.ElectionStatusEnded, electionStatus(t, db, 1))
	s.Stop()
}
