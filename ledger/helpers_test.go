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
	"math/big"
	"slices"
	"sync"
	"testing"

	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/event"
	"github.com/blinklabs-io/votesync/ledger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f013c7d7C1b3d5A2b3C4")

// buildLog encodes a contract log the way the ledger emits it
func buildLog(
	t *testing.T,
	eventType event.EventType,
	indexed []any,
	nonIndexed ...any,
) types.Log {
	t.Helper()
	return buildLogFor(t, ledger.ContractABI(), eventType, indexed, nonIndexed...)
}

// buildLogFor encodes a log using the given contract ABI
func buildLogFor(
	t *testing.T,
	contractABI abi.ABI,
	eventType event.EventType,
	indexed []any,
	nonIndexed ...any,
) types.Log {
	t.Helper()
	ev, ok := contractABI.Events[string(eventType)]
	require.True(t, ok)
	query := make([][]any, 0, len(indexed))
	for _, v := range indexed {
		query = append(query, []any{v})
	}
	topics := []common.Hash{ev.ID}
	if len(query) > 0 {
		indexedTopics, err := abi.MakeTopics(query...)
		require.NoError(t, err)
		for _, topic := range indexedTopics {
			topics = append(topics, topic[0])
		}
	}
	data, err := ev.Inputs.NonIndexed().Pack(nonIndexed...)
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics:  topics,
		Data:    data,
	}
}

func votedLog(t *testing.T, block uint64, index uint) types.Log {
	t.Helper()
	log := buildLog(
		t,
		event.VotedEventType,
		[]any{
			big.NewInt(1),
			big.NewInt(2),
			common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		},
	)
	log.BlockNumber = block
	log.Index = index
	log.TxHash = common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index)))
	return log
}

type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (f *fakeSubscription) Unsubscribe() {
	f.once.Do(func() {
		close(f.errCh)
	})
}

func (f *fakeSubscription) Err() <-chan error {
	return f.errCh
}

type liveSub struct {
	query ethereum.FilterQuery
	ch    chan<- types.Log
	sub   *fakeSubscription
}

// fakeSource is an in-memory ledger holding a list of logs
type fakeSource struct {
	subscribeErr    error
	logs            []types.Log
	live            []*liveSub
	head            uint64
	subscribeCalls  int
	pushUnsupported bool
	mu              sync.Mutex
}

func matches(query ethereum.FilterQuery, log types.Log) bool {
	if len(query.Addresses) > 0 && !slices.Contains(query.Addresses, log.Address) {
		return false
	}
	if len(query.Topics) > 0 && len(query.Topics[0]) > 0 {
		if len(log.Topics) == 0 || !slices.Contains(query.Topics[0], log.Topics[0]) {
			return false
		}
	}
	if query.FromBlock != nil && log.BlockNumber < query.FromBlock.Uint64() {
		return false
	}
	if query.ToBlock != nil && log.BlockNumber > query.ToBlock.Uint64() {
		return false
	}
	return true
}

func (f *fakeSource) FilterLogs(
	_ context.Context,
	query ethereum.FilterQuery,
) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []types.Log
	for _, log := range f.logs {
		if matches(query, log) {
			ret = append(ret, log)
		}
	}
	return ret, nil
}

func (f *fakeSource) SubscribeFilterLogs(
	_ context.Context,
	query ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.pushUnsupported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := newFakeSubscription()
	f.live = append(f.live, &liveSub{query: query, ch: ch, sub: sub})
	return sub, nil
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

// add stores logs without pushing them to live subscribers
func (f *fakeSource) add(logs ...types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, log := range logs {
		f.logs = append(f.logs, log)
		f.head = max(f.head, log.BlockNumber)
	}
}

// push stores a log and delivers it to matching live subscribers
func (f *fakeSource) push(log types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	f.head = max(f.head, log.BlockNumber)
	for _, sub := range f.live {
		if matches(sub.query, log) {
			sub.ch <- log
		}
	}
}

// fail breaks every live subscription
func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.live {
		sub.sub.errCh <- err
	}
	f.live = nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

func (f *fakeSource) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fakeCheckpoints map[string]uint64

func (f fakeCheckpoints) GetSyncCheckpoint(
	eventType string,
	_ *database.Txn,
) (uint64, bool, error) {
	block, ok := f[eventType]
	return block, ok, nil
}

// collector records the payloads published for one event type
type collector struct {
	events []event.VotedEvent
	mu     sync.Mutex
}

func (c *collector) handle(evt event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt.Data.(event.VotedEvent))
}

func (c *collector) blocks() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]uint64, 0, len(c.events))
	for _, evt := range c.events {
		ret = append(ret, evt.Log.BlockNumber)
	}
	return ret
}
