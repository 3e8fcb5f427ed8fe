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

package database

import (
	"fmt"

	"github.com/blinklabs-io/votesync/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordVote stores a vote for the candidate identified by its election and
// ledger candidate ID, and increments the candidate's vote count in the same
// transaction. A vote already recorded for the same transaction hash and log
// index is ignored, so redelivery never counts twice. It reports whether the
// vote was recorded.
func (d *Database) RecordVote(
	candidateBlockchainID uint64,
	vote *models.Vote,
	txn *Txn,
) (bool, error) {
	var recorded bool
	err := d.withTxn(txn, true, func(txn *Txn) error {
		candidate, err := getCandidate(
			txn.Metadata(),
			vote.ElectionID,
			candidateBlockchainID,
		)
		if err != nil {
			return err
		}
		vote.ID = 0
		vote.CandidateID = candidate.ID
		vote.Timestamp = vote.Timestamp.UTC()
		result := txn.Metadata().
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(vote)
		if result.Error != nil {
			return fmt.Errorf("create vote: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		result = txn.Metadata().
			Model(&models.Candidate{}).
			Where("id = ?", candidate.ID).
			Update("vote_count", gorm.Expr("vote_count + ?", 1))
		if result.Error != nil {
			return fmt.Errorf("increment vote count: %w", result.Error)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// ListVotes returns the votes cast in an election in the order they were
// recorded
func (d *Database) ListVotes(
	electionID uint64,
	txn *Txn,
) ([]models.Vote, error) {
	var ret []models.Vote
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("election_id = ?", electionID).
			Order("id").
			Find(&ret).Error
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
