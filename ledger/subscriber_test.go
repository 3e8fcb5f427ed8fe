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

package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/votesync/event"
	"github.com/blinklabs-io/votesync/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSubscriber(
	t *testing.T,
	source *fakeSource,
	cfg ledger.SubscriberConfig,
) (*ledger.Subscriber, *collector) {
	t.Helper()
	bus := event.NewEventBus(nil, nil)
	votes := &collector{}
	bus.SubscribeFunc(event.VotedEventType, votes.handle)
	cfg.Source = source
	cfg.EventBus = bus
	cfg.ContractAddress = testContract
	cfg.PromRegistry = prometheus.NewRegistry()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	cfg.RetryInterval = 5 * time.Millisecond
	cfg.MaxRetryInterval = 20 * time.Millisecond
	sub, err := ledger.NewSubscriber(cfg)
	require.NoError(t, err)
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, sub.Stop())
		bus.Stop()
	})
	return sub, votes
}

func TestNewSubscriberRequiresContract(t *testing.T) {
	_, err := ledger.NewSubscriber(ledger.SubscriberConfig{
		Source:   &fakeSource{},
		EventBus: event.NewEventBus(nil, nil),
	})
	require.ErrorIs(t, err, ledger.ErrNoContractAddress)
}

func TestSubscriberStartFailure(t *testing.T) {
	source := &fakeSource{subscribeErr: errors.New("connection refused")}
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	sub, err := ledger.NewSubscriber(ledger.SubscriberConfig{
		Source:          source,
		EventBus:        bus,
		ContractAddress: testContract,
	})
	require.NoError(t, err)
	require.Error(t, sub.Start(context.Background()))
	require.NoError(t, sub.Stop())
}

func TestSubscriberLiveOnly(t *testing.T) {
	source := &fakeSource{}
	// Logs before start are not replayed without a resume point
	source.add(votedLog(t, 5, 0))
	_, votes := newTestSubscriber(t, source, ledger.SubscriberConfig{})
	require.Equal(t, len(event.LedgerEventTypes), source.liveCount())
	source.push(votedLog(t, 6, 0))
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{6}, votes.blocks())
}

func TestSubscriberBackfillFromCheckpoint(t *testing.T) {
	source := &fakeSource{}
	source.add(votedLog(t, 3, 0), votedLog(t, 5, 0), votedLog(t, 7, 0))
	_, votes := newTestSubscriber(t, source, ledger.SubscriberConfig{
		Checkpoints: fakeCheckpoints{string(event.VotedEventType): 5},
	})
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 2
	}, time.Second, 5*time.Millisecond)
	// A live copy of a backfilled log is skipped
	source.push(votedLog(t, 7, 0))
	source.push(votedLog(t, 8, 0))
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{5, 7, 8}, votes.blocks())
}

func TestSubscriberPollingFallback(t *testing.T) {
	source := &fakeSource{pushUnsupported: true}
	source.add(votedLog(t, 2, 0))
	_, votes := newTestSubscriber(t, source, ledger.SubscriberConfig{
		StartBlock: 1,
	})
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 1
	}, time.Second, 5*time.Millisecond)
	source.add(votedLog(t, 4, 0), votedLog(t, 4, 1))
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{2, 4, 4}, votes.blocks())
	assert.Zero(t, source.liveCount())
}

func TestSubscriberResubscribes(t *testing.T) {
	source := &fakeSource{}
	source.add(votedLog(t, 1, 0))
	_, votes := newTestSubscriber(t, source, ledger.SubscriberConfig{})
	initialCalls := source.calls()
	// Logs missed by a dropped subscription are recovered by the backfill
	source.add(votedLog(t, 2, 0))
	source.fail(errors.New("websocket closed"))
	require.Eventually(t, func() bool {
		return source.calls() >= initialCalls+len(event.LedgerEventTypes)
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{2}, votes.blocks())
}

func TestSubscriberSkipsMalformedAndRemoved(t *testing.T) {
	source := &fakeSource{}
	_, votes := newTestSubscriber(t, source, ledger.SubscriberConfig{})
	bad := votedLog(t, 3, 0)
	bad.Topics = bad.Topics[:2]
	source.push(bad)
	removed := votedLog(t, 3, 1)
	removed.Removed = true
	source.push(removed)
	source.push(votedLog(t, 4, 0))
	require.Eventually(t, func() bool {
		return len(votes.blocks()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{4}, votes.blocks())
	assert.Equal(
		t,
		common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex(),
		votes.events[0].Voter,
	)
}

func TestSubscriberReplaysHistoryInLedgerOrder(t *testing.T) {
	source := &fakeSource{}
	added := buildLog(t, event.CandidateAddedEventType, []any{big.NewInt(1)}, big.NewInt(2), "Ivy")
	added.BlockNumber = 4
	added.Index = 0
	registered := buildLog(
		t,
		event.VoterRegisteredEventType,
		[]any{common.HexToAddress("0x00000000000000000000000000000000000000bb")},
		big.NewInt(40),
		"phd",
	)
	registered.BlockNumber = 4
	registered.Index = 2
	// Stored out of ledger order
	source.add(votedLog(t, 6, 0), registered, votedLog(t, 4, 1), added, votedLog(t, 2, 0))
	var (
		mu     sync.Mutex
		replay []event.EventType
		blocks []uint64
	)
	sub, votes := newTestSubscriber(t, source, ledger.SubscriberConfig{
		BlockRange:  3,
		Checkpoints: fakeCheckpoints{string(event.VotedEventType): 3},
		StartBlock:  1,
		Replay: func(evt event.Event) {
			mu.Lock()
			defer mu.Unlock()
			replay = append(replay, evt.Type)
			switch data := evt.Data.(type) {
			case event.VotedEvent:
				blocks = append(blocks, data.Log.BlockNumber)
			case event.CandidateAddedEvent:
				blocks = append(blocks, data.Log.BlockNumber)
			case event.VoterRegisteredEvent:
				blocks = append(blocks, data.Log.BlockNumber)
			}
		},
	})
	require.NotNil(t, sub)
	mu.Lock()
	defer mu.Unlock()
	// The vote at block 2 is behind the Voted checkpoint
	assert.Equal(
		t,
		[]event.EventType{
			event.CandidateAddedEventType,
			event.VotedEventType,
			event.VoterRegisteredEventType,
			event.VotedEventType,
		},
		replay,
	)
	assert.Equal(t, []uint64{4, 4, 4, 6}, blocks)
	// Replayed events are not published again
	assert.Empty(t, votes.blocks())
}
