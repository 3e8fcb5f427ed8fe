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

// Package projection applies ledger events to the read store.
package projection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/votesync/database"
	"github.com/blinklabs-io/votesync/database/models"
	"github.com/blinklabs-io/votesync/event"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/blinklabs-io/votesync/projection"

// Result is the outcome of projecting one event
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultRejected  Result = "rejected"
	ResultFailed    Result = "failed"
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Database     *database.Database
	// Now returns the wall-clock time used for derived fields. Defaults to
	// time.Now
	Now func() time.Time
}

// Projector turns ledger events into read store mutations. Every handler is
// idempotent and never lets an error or panic escape.
type Projector struct {
	db      *database.Database
	logger  *slog.Logger
	metrics *projectionMetrics
	now     func() time.Time
	bus     *event.EventBus
	subIds  map[event.EventType]event.EventSubscriberId
	mu      sync.Mutex
}

func New(cfg Config) (*Projector, error) {
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
	p := &Projector{
		db:     cfg.Database,
		logger: cfg.Logger,
		now:    cfg.Now,
		subIds: make(map[event.EventType]event.EventSubscriberId),
	}
	if cfg.PromRegistry != nil {
		p.metrics = &projectionMetrics{}
		p.metrics.init(cfg.PromRegistry)
	}
	return p, nil
}

// Subscribe registers a handler for every ledger event type on the bus
func (p *Projector) Subscribe(bus *event.EventBus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	for _, eventType := range event.LedgerEventTypes {
		if _, ok := p.subIds[eventType]; ok {
			continue
		}
		p.subIds[eventType] = bus.SubscribeFunc(
			eventType,
			func(evt event.Event) {
				p.HandleEvent(evt)
			},
		)
	}
}

// Unsubscribe removes the handlers registered by Subscribe
func (p *Projector) Unsubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return
	}
	for eventType, subId := range p.subIds {
		p.bus.Unsubscribe(eventType, subId)
		delete(p.subIds, eventType)
	}
	p.bus = nil
}

// HandleEvent dispatches a bus event to the handler for its type
func (p *Projector) HandleEvent(evt event.Event) Result {
	switch data := evt.Data.(type) {
	case event.ElectionCreatedEvent:
		return p.HandleElectionCreated(data)
	case event.CandidateAddedEvent:
		return p.HandleCandidateAdded(data)
	case event.VotedEvent:
		return p.HandleVoted(data)
	case event.VoterRegisteredEvent:
		return p.HandleVoterRegistered(data)
	case event.AdminTransferredEvent:
		return p.HandleAdminTransferred(data)
	default:
		p.logger.Error(
			"unexpected event payload",
			"component", "projection",
			"type", evt.Type,
			"payload", fmt.Sprintf("%T", evt.Data),
		)
		p.count(evt.Type, ResultFailed)
		return ResultFailed
	}
}

// project runs fn inside the failure boundary. It records the result and,
// unless the projection failed, advances the checkpoint of the event type.
func (p *Projector) project(
	eventType event.EventType,
	meta event.LogMeta,
	attrs []any,
	fn func() (Result, error),
) (ret Result) {
	start := time.Now()
	logAttrs := append(
		[]any{
			"component", "projection",
			"type", eventType,
			"block", meta.BlockNumber,
			"tx", meta.TxHash,
			"index", meta.LogIndex,
		},
		attrs...,
	)
	_, span := otel.Tracer(tracerName).Start(
		context.Background(),
		"project "+string(eventType),
		trace.WithAttributes(
			attribute.String("votesync.event.type", string(eventType)),
			attribute.Int64("votesync.event.block", int64(meta.BlockNumber)), //nolint:gosec
			attribute.String("votesync.event.tx", meta.TxHash),
		),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(
				"panic while projecting event",
				append(logAttrs, "panic", r)...,
			)
			span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
			ret = ResultFailed
			p.count(eventType, ret)
		}
	}()
	result, err := fn()
	if err != nil {
		p.logger.Error(
			"failed to project event",
			append(logAttrs, "error", err)...,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = ResultFailed
	}
	span.SetAttributes(attribute.String("votesync.result", string(result)))
	p.count(eventType, result)
	if p.metrics != nil {
		p.metrics.duration.WithLabelValues(string(eventType)).
			Observe(time.Since(start).Seconds())
	}
	if result != ResultFailed {
		p.advanceCheckpoint(eventType, meta)
	}
	return result
}

func (p *Projector) advanceCheckpoint(eventType event.EventType, meta event.LogMeta) {
	if meta.BlockNumber == 0 {
		return
	}
	if err := p.db.SetSyncCheckpoint(string(eventType), meta.BlockNumber, nil); err != nil {
		p.logger.Warn(
			"failed to advance sync checkpoint",
			"component", "projection",
			"type", eventType,
			"block", meta.BlockNumber,
			"error", err,
		)
	}
}

func (p *Projector) count(eventType event.EventType, result Result) {
	if p.metrics == nil {
		return
	}
	p.metrics.eventsTotal.WithLabelValues(string(eventType), string(result)).Inc()
}

// HandleElectionCreated stores a new election. The initial status reflects
// whether the election has already started.
func (p *Projector) HandleElectionCreated(evt event.ElectionCreatedEvent) Result {
	return p.project(
		event.ElectionCreatedEventType,
		evt.Log,
		[]any{"election_id", evt.ElectionID},
		func() (Result, error) {
			status := models.ElectionStatusNotStarted
			if !evt.StartTime.After(p.now()) {
				status = models.ElectionStatusOngoing
			}
			election := &models.Election{
				ID:        evt.ElectionID,
				Name:      evt.Name,
				StartTime: evt.StartTime,
				EndTime:   evt.EndTime,
				Status:    status,
				IsPublic:  evt.IsPublic,
			}
			if !evt.IsPublic {
				minAge := evt.MinAge
				education := evt.RequiredEducation
				election.MinAge = &minAge
				election.RequiredEducation = &education
			}
			_, created, err := p.db.CreateElection(election, nil)
			if err != nil {
				if errors.Is(err, database.ErrInvalidElection) {
					p.logger.Warn(
						"rejecting invalid election",
						"component", "projection",
						"election_id", evt.ElectionID,
						"error", err,
					)
					return ResultRejected, nil
				}
				return ResultFailed, err
			}
			if !created {
				return ResultDuplicate, nil
			}
			p.logger.Info(
				"election created",
				"component", "projection",
				"election_id", evt.ElectionID,
				"status", status,
			)
			return ResultApplied, nil
		},
	)
}

// HandleCandidateAdded stores a candidate of a known election
func (p *Projector) HandleCandidateAdded(evt event.CandidateAddedEvent) Result {
	return p.project(
		event.CandidateAddedEventType,
		evt.Log,
		[]any{"election_id", evt.ElectionID, "candidate_id", evt.CandidateID},
		func() (Result, error) {
			_, created, err := p.db.CreateCandidate(
				&models.Candidate{
					ElectionID:   evt.ElectionID,
					BlockchainID: evt.CandidateID,
					Name:         evt.Name,
				},
				nil,
			)
			if err != nil {
				if errors.Is(err, database.ErrElectionNotFound) {
					p.logger.Warn(
						"dropping candidate for unknown election",
						"component", "projection",
						"election_id", evt.ElectionID,
						"candidate_id", evt.CandidateID,
					)
					return ResultRejected, nil
				}
				return ResultFailed, err
			}
			if !created {
				return ResultDuplicate, nil
			}
			return ResultApplied, nil
		},
	)
}

// HandleVoted records a vote and counts it towards its candidate
func (p *Projector) HandleVoted(evt event.VotedEvent) Result {
	return p.project(
		event.VotedEventType,
		evt.Log,
		[]any{
			"election_id", evt.ElectionID,
			"candidate_id", evt.CandidateID,
			"voter", evt.Voter,
		},
		func() (Result, error) {
			recorded, err := p.db.RecordVote(
				evt.CandidateID,
				&models.Vote{
					ElectionID:   evt.ElectionID,
					VoterAddress: evt.Voter,
					TxHash:       evt.Log.TxHash,
					LogIndex:     evt.Log.LogIndex,
					BlockNumber:  evt.Log.BlockNumber,
					Timestamp:    p.now(),
				},
				nil,
			)
			if err != nil {
				if errors.Is(err, database.ErrCandidateNotFound) {
					p.logger.Warn(
						"dropping vote for unknown candidate",
						"component", "projection",
						"election_id", evt.ElectionID,
						"candidate_id", evt.CandidateID,
					)
					return ResultRejected, nil
				}
				return ResultFailed, err
			}
			if !recorded {
				return ResultDuplicate, nil
			}
			return ResultApplied, nil
		},
	)
}

// HandleVoterRegistered stores a voter the first time its address is seen
func (p *Projector) HandleVoterRegistered(evt event.VoterRegisteredEvent) Result {
	return p.project(
		event.VoterRegisteredEventType,
		evt.Log,
		[]any{"voter", evt.Voter},
		func() (Result, error) {
			_, created, err := p.db.CreateVoter(
				&models.Voter{
					Address:      evt.Voter,
					Age:          evt.Age,
					Education:    evt.Education,
					RegisteredAt: p.now(),
				},
				nil,
			)
			if err != nil {
				return ResultFailed, err
			}
			if !created {
				return ResultDuplicate, nil
			}
			return ResultApplied, nil
		},
	)
}

// HandleAdminTransferred records a change of contract administrator
func (p *Projector) HandleAdminTransferred(evt event.AdminTransferredEvent) Result {
	return p.project(
		event.AdminTransferredEventType,
		evt.Log,
		[]any{"old_admin", evt.OldAdmin, "new_admin", evt.NewAdmin},
		func() (Result, error) {
			recorded, err := p.db.RecordAdminTransfer(
				&models.AdminTransfer{
					OldAdmin:    evt.OldAdmin,
					NewAdmin:    evt.NewAdmin,
					TxHash:      evt.Log.TxHash,
					LogIndex:    evt.Log.LogIndex,
					BlockNumber: evt.Log.BlockNumber,
					ObservedAt:  p.now(),
				},
				nil,
			)
			if err != nil {
				return ResultFailed, err
			}
			if !recorded {
				return ResultDuplicate, nil
			}
			p.logger.Info(
				"contract admin transferred",
				"component", "projection",
				"old_admin", evt.OldAdmin,
				"new_admin", evt.NewAdmin,
			)
			return ResultApplied, nil
		},
	)
}
