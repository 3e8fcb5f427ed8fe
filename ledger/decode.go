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
	"fmt"
	"math/big"

	"github.com/blinklabs-io/votesync/event"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventTopic returns the topic-0 signature hash of a ledger event type
func (c *Contract) EventTopic(eventType event.EventType) (common.Hash, error) {
	ev, err := c.abiEvent(eventType)
	if err != nil {
		return common.Hash{}, err
	}
	return ev.ID, nil
}

// EventTopic returns the topic-0 hash of a ledger event type in the built-in
// ABI
func EventTopic(eventType event.EventType) (common.Hash, error) {
	return defaultContract.EventTopic(eventType)
}

// DecodeLog decodes a contract log with the built-in ABI
func DecodeLog(log types.Log) (event.EventType, any, error) {
	return defaultContract.DecodeLog(log)
}

// DecodeLog decodes a contract log into its event type and typed payload
func (c *Contract) DecodeLog(log types.Log) (event.EventType, any, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("%w: no topics", ErrMalformedLog)
	}
	eventType, ok := c.byTopic[log.Topics[0]]
	if !ok {
		return "", nil, fmt.Errorf(
			"%w: topic %s",
			ErrUnknownEvent,
			log.Topics[0].Hex(),
		)
	}
	fields, err := c.unpackLog(eventType, log)
	if err != nil {
		return eventType, nil, fmt.Errorf("%w: %s: %w", ErrMalformedLog, eventType, err)
	}
	meta := event.LogMeta{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
	}
	var payload any
	switch eventType {
	case event.ElectionCreatedEventType:
		payload, err = decodeElectionCreated(meta, fields)
	case event.CandidateAddedEventType:
		payload, err = decodeCandidateAdded(meta, fields)
	case event.VotedEventType:
		payload, err = decodeVoted(meta, fields)
	case event.VoterRegisteredEventType:
		payload, err = decodeVoterRegistered(meta, fields)
	case event.AdminTransferredEventType:
		payload, err = decodeAdminTransferred(meta, fields)
	}
	if err != nil {
		return eventType, nil, fmt.Errorf("%w: %s: %w", ErrMalformedLog, eventType, err)
	}
	return eventType, payload, nil
}

// unpackLog collects the indexed and non-indexed inputs of a log by name
func (c *Contract) unpackLog(eventType event.EventType, log types.Log) (map[string]any, error) {
	ev, err := c.abiEvent(eventType)
	if err != nil {
		return nil, err
	}
	ret := map[string]any{}
	if len(ev.Inputs.NonIndexed()) > 0 {
		if err := c.abi.UnpackIntoMap(ret, ev.Name, log.Data); err != nil {
			return nil, err
		}
	}
	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf(
			"expected %d indexed topics, got %d",
			len(indexed),
			len(log.Topics)-1,
		)
	}
	if err := abi.ParseTopicsIntoMap(ret, indexed, log.Topics[1:]); err != nil {
		return nil, err
	}
	return ret, nil
}

func fieldBig(fields map[string]any, name string) (*big.Int, error) {
	v, ok := fields[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("field %s: unexpected type %T", name, fields[name])
	}
	return v, nil
}

func fieldUint64(fields map[string]any, name string) (uint64, error) {
	v, err := fieldBig(fields, name)
	if err != nil {
		return 0, err
	}
	ret, err := uint64FromBig(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return ret, nil
}

func fieldUint(fields map[string]any, name string) (uint, error) {
	v, err := fieldBig(fields, name)
	if err != nil {
		return 0, err
	}
	ret, err := uintFromBig(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return ret, nil
}

func fieldString(fields map[string]any, name string) (string, error) {
	v, ok := fields[name].(string)
	if !ok {
		return "", fmt.Errorf("field %s: unexpected type %T", name, fields[name])
	}
	return v, nil
}

func fieldAddress(fields map[string]any, name string) (string, error) {
	v, ok := fields[name].(common.Address)
	if !ok {
		return "", fmt.Errorf("field %s: unexpected type %T", name, fields[name])
	}
	return v.Hex(), nil
}

func decodeElectionCreated(
	meta event.LogMeta,
	fields map[string]any,
) (event.ElectionCreatedEvent, error) {
	ret := event.ElectionCreatedEvent{Log: meta}
	var err error
	if ret.ElectionID, err = fieldUint64(fields, "electionId"); err != nil {
		return ret, err
	}
	if ret.Name, err = fieldString(fields, "name"); err != nil {
		return ret, err
	}
	startTime, err := fieldBig(fields, "startTime")
	if err != nil {
		return ret, err
	}
	if ret.StartTime, err = timeFromBig(startTime); err != nil {
		return ret, fmt.Errorf("field startTime: %w", err)
	}
	endTime, err := fieldBig(fields, "endTime")
	if err != nil {
		return ret, err
	}
	if ret.EndTime, err = timeFromBig(endTime); err != nil {
		return ret, fmt.Errorf("field endTime: %w", err)
	}
	isPublic, ok := fields["isPublic"].(bool)
	if !ok {
		return ret, fmt.Errorf("field isPublic: unexpected type %T", fields["isPublic"])
	}
	ret.IsPublic = isPublic
	if ret.MinAge, err = fieldUint(fields, "minAge"); err != nil {
		return ret, err
	}
	if ret.RequiredEducation, err = fieldString(fields, "requiredEducation"); err != nil {
		return ret, err
	}
	return ret, nil
}

func decodeCandidateAdded(
	meta event.LogMeta,
	fields map[string]any,
) (event.CandidateAddedEvent, error) {
	ret := event.CandidateAddedEvent{Log: meta}
	var err error
	if ret.ElectionID, err = fieldUint64(fields, "electionId"); err != nil {
		return ret, err
	}
	if ret.CandidateID, err = fieldUint64(fields, "candidateId"); err != nil {
		return ret, err
	}
	if ret.Name, err = fieldString(fields, "name"); err != nil {
		return ret, err
	}
	return ret, nil
}

func decodeVoted(
	meta event.LogMeta,
	fields map[string]any,
) (event.VotedEvent, error) {
	ret := event.VotedEvent{Log: meta}
	var err error
	if ret.ElectionID, err = fieldUint64(fields, "electionId"); err != nil {
		return ret, err
	}
	if ret.CandidateID, err = fieldUint64(fields, "candidateId"); err != nil {
		return ret, err
	}
	if ret.Voter, err = fieldAddress(fields, "voter"); err != nil {
		return ret, err
	}
	return ret, nil
}

func decodeVoterRegistered(
	meta event.LogMeta,
	fields map[string]any,
) (event.VoterRegisteredEvent, error) {
	ret := event.VoterRegisteredEvent{Log: meta}
	var err error
	if ret.Voter, err = fieldAddress(fields, "voter"); err != nil {
		return ret, err
	}
	if ret.Age, err = fieldUint(fields, "age"); err != nil {
		return ret, err
	}
	if ret.Education, err = fieldString(fields, "education"); err != nil {
		return ret, err
	}
	return ret, nil
}

func decodeAdminTransferred(
	meta event.LogMeta,
	fields map[string]any,
) (event.AdminTransferredEvent, error) {
	ret := event.AdminTransferredEvent{Log: meta}
	var err error
	if ret.OldAdmin, err = fieldAddress(fields, "oldAdmin"); err != nil {
		return ret, err
	}
	if ret.NewAdmin, err = fieldAddress(fields, "newAdmin"); err != nil {
		return ret, err
	}
	return ret, nil
}
