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

package models

// Candidate is identified on the ledger by its index within an election
// (BlockchainID). ID is a local surrogate key referenced by votes.
type Candidate struct {
	Name         string `gorm:"not null"`
	ID           uint   `gorm:"primarykey"`
	ElectionID   uint64 `gorm:"uniqueIndex:idx_candidate_election_blockchain;not null"`
	BlockchainID uint64 `gorm:"uniqueIndex:idx_candidate_election_blockchain;not null"`
	VoteCount    uint64 `gorm:"not null;default:0"`
}

func (Candidate) TableName() string {
	return "candidates"
}
