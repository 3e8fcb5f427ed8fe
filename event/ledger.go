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

package event

import "time"

// Ledger event types. The values match the contract event names and are
// used as sync checkpoint keys.
const (
	ElectionCreatedEventType  = EventType("ElectionCreated")
	CandidateAddedEventType   = EventType("CandidateAdded")
	VotedEventType            = EventType("Voted")
	VoterRegisteredEventType  = EventType("VoterRegistered")
	AdminTransferredEventType = EventType("AdminTransferred")
)

// LedgerEventTypes lists every event type the ledger subscriber publishes
var LedgerEventTypes = []EventType{
	ElectionCreatedEventType,
	CandidateAddedEventType,
	VotedEventType,
	VoterRegisteredEventType,
	AdminTransferredEventType,
}

// LogMeta locates the ledger log an event was decoded from
type LogMeta struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
}

type ElectionCreatedEvent struct {
	StartTime         time.Time
	EndTime           time.Time
	Name              string
	RequiredEducation string
	Log               LogMeta
	ElectionID        uint64
	MinAge            uint
	IsPublic          bool
}

type CandidateAddedEvent struct {
	Name        string
	Log         LogMeta
	ElectionID  uint64
	CandidateID uint64
}

type VotedEvent struct {
	// Voter is the checksummed hex address of the voter
	Voter       string
	Log         LogMeta
	ElectionID  uint64
	CandidateID uint64
}

type VoterRegisteredEvent struct {
	Voter     string
	Education string
	Log       LogMeta
	Age       uint
}

// AdminTransferredEvent is emitted when contract administration moves to a
// new address
type AdminTransferredEvent struct {
	OldAdmin string
	NewAdmin string
	Log      LogMeta
}
