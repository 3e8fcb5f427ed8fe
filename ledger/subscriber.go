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

package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/event"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval     = 4 * time.Second
	DefaultRetryInterval    = 1 * time.Second
	DefaultMaxRetryInterval = 30 * time.Second
	DefaultBlockRange       = 5000
	logBufferSize           = 128
)

var errSubscriptionClosed = errors.New("log subscription closed")

// LogSource is the part of a ledger client used to follow contract logs.
// *ethclient.Client satisfies it.
type LogSource interface {
	ethereum.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
}

// CheckpointReader returns the last projected block of an event type
type CheckpointReader interface {
	GetSyncCheckpoint(eventType string, txn *database.Txn) (uint64, bool, error)
}

type SubscriberConfig struct {
	Logger           *slog.Logger
	PromRegistry     prometheus.Registerer
	Source           LogSource
	EventBus         *event.EventBus
	Checkpoints      CheckpointReader
	StartBlock       uint64
	BlockRange       uint64
	PollInterval     time.Duration
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
	ContractAddress  common.Address

	// Contract decodes logs. The built-in ABI is used when nil.
	Contract *Contract

	// Replay applies a historical event before Start returns. Historical
	// events are published on the event bus when nil.
	Replay func(event.Event)
}

// Subscriber follows the election contract on the ledger and publishes every
// decoded log on the event bus. It keeps one stream per event type.
type Subscriber struct {
	config   SubscriberConfig
	contract *Contract
	logger   *slog.Logger
	metrics  *subscriberMetrics
	streams  []*stream
	cancel   context.CancelFunc
	group    *errgroup.Group
	mu       sync.Mutex
}

type stream struct {
	eventType event.EventType
	query     ethereum.FilterQuery
	// next is the first block not yet fetched when resume is set
	next   uint64
	resume bool
}

// conn is an established stream. sub is nil when the source only supports
// polling.
type conn struct {
	sub  ethereum.Subscription
	logs chan types.Log
	head uint64
}

func (c *conn) close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
}

func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.ContractAddress == (common.Address{}) {
		return nil, ErrNoContractAddress
	}
	if cfg.Source == nil {
		return nil, errors.New("no log source configured")
	}
	if cfg.EventBus == nil {
		return nil, errors.New("no event bus configured")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.MaxRetryInterval < cfg.RetryInterval {
		cfg.MaxRetryInterval = max(DefaultMaxRetryInterval, cfg.RetryInterval)
	}
	if cfg.BlockRange == 0 {
		cfg.BlockRange = DefaultBlockRange
	}
	s := &Subscriber{
		config:   cfg,
		contract: cfg.Contract,
		logger:   cfg.Logger,
	}
	if s.contract == nil {
		s.contract = DefaultContract()
	}
	if cfg.PromRegistry != nil {
		s.metrics = &subscriberMetrics{}
		s.metrics.init(cfg.PromRegistry)
	}
	for _, eventType := range event.LedgerEventTypes {
		topic, err := s.contract.EventTopic(eventType)
		if err != nil {
			return nil, err
		}
		s.streams = append(s.streams, &stream{
			eventType: eventType,
			query: ethereum.FilterQuery{
				Addresses: []common.Address{cfg.ContractAddress},
				Topics:    [][]common.Hash{{topic}},
			},
		})
	}
	return s, nil
}

// Start replays the ledger history since the resume point in ledger order,
// then establishes a stream for every event type. It fails if the replay or
// any stream fails; after that, stream failures are retried until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("subscriber already started")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	conns := make([]*conn, 0, len(s.streams))
	closeAll := func() {
		for _, c := range conns {
			c.close()
		}
		cancel()
	}
	for _, st := range s.streams {
		if err := s.loadResumePoint(st); err != nil {
			closeAll()
			return err
		}
	}
	if err := s.replayHistory(streamCtx); err != nil {
		closeAll()
		return fmt.Errorf("replay ledger history: %w", err)
	}
	for _, st := range s.streams {
		c, err := s.connect(streamCtx, st)
		if err != nil {
			closeAll()
			return fmt.Errorf("establish %s stream: %w", st.eventType, err)
		}
		conns = append(conns, c)
	}
	group := &errgroup.Group{}
	for i, st := range s.streams {
		c := conns[i]
		group.Go(func() error {
			s.runStream(streamCtx, st, c)
			return nil
		})
	}
	s.cancel = cancel
	s.group = group
	s.logger.Info(
		"following ledger contract",
		"component", "ledger",
		"contract", s.config.ContractAddress.Hex(),
		"streams", len(s.streams),
	)
	return nil
}

// Stop cancels all streams and waits for them to exit
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := s.group.Wait()
	s.cancel = nil
	s.group = nil
	return err
}

func (s *Subscriber) loadResumePoint(st *stream) error {
	if s.config.StartBlock > 0 {
		st.next = s.config.StartBlock
		st.resume = true
	}
	if s.config.Checkpoints == nil {
		return nil
	}
	block, found, err := s.config.Checkpoints.GetSyncCheckpoint(
		string(st.eventType),
		nil,
	)
	if err != nil {
		return fmt.Errorf("load %s checkpoint: %w", st.eventType, err)
	}
	if found && (!st.resume || block > st.next) {
		// The checkpoint block is replayed; projections ignore repeats
		st.next = block
		st.resume = true
	}
	return nil
}

// replayHistory fetches the logs of every resumed stream with one query per
// block chunk and dispatches them ordered by block and log index, so that an
// event never reaches projection before the events it depends on
func (s *Subscriber) replayHistory(ctx context.Context) error {
	var resumed []*stream
	byTopic := make(map[common.Hash]*stream, len(s.streams))
	topics := make([]common.Hash, 0, len(s.streams))
	var from uint64
	for _, st := range s.streams {
		if !st.resume {
			continue
		}
		if len(resumed) == 0 || st.next < from {
			from = st.next
		}
		resumed = append(resumed, st)
		topic := st.query.Topics[0][0]
		byTopic[topic] = st
		topics = append(topics, topic)
	}
	if len(resumed) == 0 {
		return nil
	}
	head, err := s.config.Source.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get block number: %w", err)
	}
	if head < from {
		return nil
	}
	dispatch := s.publish
	if s.config.Replay != nil {
		dispatch = s.config.Replay
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.config.ContractAddress},
		Topics:    [][]common.Hash{topics},
	}
	replayed := 0
	for start := from; start <= head; {
		end := min(head, start+s.config.BlockRange-1)
		query.FromBlock = new(big.Int).SetUint64(start)
		query.ToBlock = new(big.Int).SetUint64(end)
		logs, err := s.config.Source.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", start, end, err)
		}
		slices.SortFunc(logs, func(a, b types.Log) int {
			return cmp.Or(
				cmp.Compare(a.BlockNumber, b.BlockNumber),
				cmp.Compare(a.Index, b.Index),
			)
		})
		for _, log := range logs {
			if len(log.Topics) == 0 {
				continue
			}
			st, ok := byTopic[log.Topics[0]]
			if !ok || log.BlockNumber < st.next {
				continue
			}
			if s.handleLog(st, log, dispatch) {
				replayed++
			}
		}
		for _, st := range resumed {
			if st.next <= end {
				st.next = end + 1
				if s.metrics != nil {
					s.metrics.lastBlock.WithLabelValues(string(st.eventType)).Set(float64(end))
				}
			}
		}
		start = end + 1
	}
	s.logger.Info(
		"replayed ledger history",
		"component", "ledger",
		"from_block", from,
		"to_block", head,
		"events", replayed,
	)
	return nil
}

func (s *Subscriber) connect(ctx context.Context, st *stream) (*conn, error) {
	ret := &conn{logs: make(chan types.Log, logBufferSize)}
	sub, err := s.config.Source.SubscribeFilterLogs(ctx, st.query, ret.logs)
	if err != nil {
		if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		s.logger.Debug(
			"ledger endpoint does not support subscriptions, polling",
			"component", "ledger",
			"type", st.eventType,
			"interval", s.config.PollInterval,
		)
		ret.logs = nil
	} else {
		ret.sub = sub
	}
	head, err := s.config.Source.BlockNumber(ctx)
	if err != nil {
		ret.close()
		return nil, fmt.Errorf("get block number: %w", err)
	}
	ret.head = head
	return ret, nil
}

// runStream follows one event type until ctx is cancelled, re-establishing
// the stream with capped exponential backoff after each failure
func (s *Subscriber) runStream(ctx context.Context, st *stream, c *conn) {
	backoff := s.config.RetryInterval
	for {
		err := s.follow(ctx, st, c)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn(
			"ledger log stream failed",
			"component", "ledger",
			"type", st.eventType,
			"error", err,
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.config.MaxRetryInterval)
			if s.metrics != nil {
				s.metrics.resubscribeTotal.WithLabelValues(string(st.eventType)).Inc()
			}
			c, err = s.connect(ctx, st)
			if err == nil {
				backoff = s.config.RetryInterval
				s.logger.Info(
					"ledger log stream re-established",
					"component", "ledger",
					"type", st.eventType,
					"from_block", st.next,
				)
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(
				"failed to re-establish ledger log stream",
				"component", "ledger",
				"type", st.eventType,
				"error", err,
				"retry_in", backoff,
			)
		}
	}
}

func (s *Subscriber) follow(ctx context.Context, st *stream, c *conn) error {
	defer c.close()
	if st.resume && st.next <= c.head {
		if err := s.fetchRange(ctx, st, st.next, c.head); err != nil {
			return err
		}
	}
	// Live logs below liveFrom were already delivered
	var liveFrom uint64
	if st.resume {
		liveFrom = st.next
	}
	if !st.resume {
		st.next = c.head + 1
		st.resume = true
	}
	if c.sub == nil {
		return s.poll(ctx, st)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.sub.Err():
			if err == nil {
				err = errSubscriptionClosed
			}
			return err
		case log := <-c.logs:
			if log.BlockNumber < liveFrom {
				s.countLog(st.eventType, "skipped")
				continue
			}
			s.handleLog(st, log, s.publish)
			if log.BlockNumber > st.next {
				st.next = log.BlockNumber
			}
		}
	}
}

func (s *Subscriber) poll(ctx context.Context, st *stream) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		head, err := s.config.Source.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get block number: %w", err)
		}
		if head < st.next {
			continue
		}
		if err := s.fetchRange(ctx, st, st.next, head); err != nil {
			return err
		}
	}
}

// fetchRange publishes the logs of [from, to] in chunks of at most
// BlockRange blocks
func (s *Subscriber) fetchRange(
	ctx context.Context,
	st *stream,
	from uint64,
	to uint64,
) error {
	for start := from; start <= to; {
		end := min(to, start+s.config.BlockRange-1)
		query := st.query
		query.FromBlock = new(big.Int).SetUint64(start)
		query.ToBlock = new(big.Int).SetUint64(end)
		logs, err := s.config.Source.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", start, end, err)
		}
		for _, log := range logs {
			s.handleLog(st, log, s.publish)
		}
		st.next = end + 1
		if s.metrics != nil {
			s.metrics.lastBlock.WithLabelValues(string(st.eventType)).Set(float64(end))
		}
		start = end + 1
	}
	return nil
}

func (s *Subscriber) publish(evt event.Event) {
	s.config.EventBus.Publish(evt.Type, evt)
}

// handleLog decodes a log of the stream's event type and dispatches it. It
// reports whether the log was dispatched.
func (s *Subscriber) handleLog(
	st *stream,
	log types.Log,
	dispatch func(event.Event),
) bool {
	if log.Removed {
		s.logger.Warn(
			"ignoring removed ledger log",
			"component", "ledger",
			"type", st.eventType,
			"block", log.BlockNumber,
			"tx", log.TxHash.Hex(),
			"index", log.Index,
		)
		s.countLog(st.eventType, "removed")
		return false
	}
	eventType, payload, err := s.contract.DecodeLog(log)
	if err == nil && eventType != st.eventType {
		err = fmt.Errorf("%w: %s log on %s stream", ErrUnknownEvent, eventType, st.eventType)
	}
	if err != nil {
		s.logger.Warn(
			"dropping undecodable ledger log",
			"component", "ledger",
			"type", st.eventType,
			"block", log.BlockNumber,
			"tx", log.TxHash.Hex(),
			"index", log.Index,
			"error", err,
		)
		s.countLog(st.eventType, "malformed")
		return false
	}
	dispatch(event.NewEvent(eventType, payload))
	s.countLog(st.eventType, "published")
	if s.metrics != nil {
		s.metrics.lastBlock.WithLabelValues(string(st.eventType)).Set(float64(log.BlockNumber))
	}
	return true
}

func (s *Subscriber) countLog(eventType event.EventType, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.logsTotal.WithLabelValues(string(eventType), result).Inc()
}
