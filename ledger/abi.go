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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blinklabs-io/votesync/event"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// contractABI is the event fragment of the election contract ABI, used when
// no compiler artifact is configured
const contractABI = `[
	{"type":"event","name":"ElectionCreated","anonymous":false,"inputs":[
		{"name":"electionId","type":"uint256","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"startTime","type":"uint256","indexed":false},
		{"name":"endTime","type":"uint256","indexed":false},
		{"name":"isPublic","type":"bool","indexed":false},
		{"name":"minAge","type":"uint256","indexed":false},
		{"name":"requiredEducation","type":"string","indexed":false}]},
	{"type":"event","name":"CandidateAdded","anonymous":false,"inputs":[
		{"name":"electionId","type":"uint256","indexed":true},
		{"name":"candidateId","type":"uint256","indexed":false},
		{"name":"name","type":"string","indexed":false}]},
	{"type":"event","name":"Voted","anonymous":false,"inputs":[
		{"name":"electionId","type":"uint256","indexed":true},
		{"name":"candidateId","type":"uint256","indexed":true},
		{"name":"voter","type":"address","indexed":true}]},
	{"type":"event","name":"VoterRegistered","anonymous":false,"inputs":[
		{"name":"voter","type":"address","indexed":true},
		{"name":"age","type":"uint256","indexed":false},
		{"name":"education","type":"string","indexed":false}]},
	{"type":"event","name":"AdminTransferred","anonymous":false,"inputs":[
		{"name":"oldAdmin","type":"address","indexed":true},
		{"name":"newAdmin","type":"address","indexed":true}]}
]`

// Contract is the event ABI of the election contract, indexed by topic
type Contract struct {
	abi     abi.ABI
	byTopic map[common.Hash]event.EventType
}

var defaultContract = func() *Contract {
	ret, err := NewContract(strings.NewReader(contractABI))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %s", err))
	}
	return ret
}()

// DefaultContract returns the built-in event ABI of the election contract
func DefaultContract() *Contract {
	return defaultContract
}

// ContractABI returns the parsed built-in event ABI of the election contract
func ContractABI() abi.ABI {
	return defaultContract.abi
}

// NewContract parses a JSON ABI array. Every ledger event type must be
// present; other entries are ignored.
func NewContract(r io.Reader) (*Contract, error) {
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}
	ret := &Contract{
		abi:     parsed,
		byTopic: make(map[common.Hash]event.EventType, len(event.LedgerEventTypes)),
	}
	for _, eventType := range event.LedgerEventTypes {
		ev, err := ret.abiEvent(eventType)
		if err != nil {
			return nil, err
		}
		ret.byTopic[ev.ID] = eventType
	}
	return ret, nil
}

// LoadContract reads the contract ABI from a file holding either a bare ABI
// array or a compiler artifact with an "abi" member
func LoadContract(path string) (*Contract, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract ABI: %w", err)
	}
	buf = bytes.TrimSpace(buf)
	if len(buf) > 0 && buf[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(buf, &artifact); err != nil {
			return nil, fmt.Errorf("parse contract artifact %s: %w", path, err)
		}
		if len(artifact.ABI) == 0 {
			return nil, fmt.Errorf("contract artifact %s has no abi member", path)
		}
		buf = artifact.ABI
	}
	ret, err := NewContract(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ret, nil
}

// ABI returns the parsed contract ABI
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

func (c *Contract) abiEvent(eventType event.EventType) (abi.Event, error) {
	ev, ok := c.abi.Events[string(eventType)]
	if !ok {
		return abi.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	return ev, nil
}
