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
	"errors"
	"fmt"

	"github.com/blinklabs-io/votesync/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateCandidate stores a candidate of an existing election. Candidates are
// keyed by election ID and ledger candidate ID; a repeat is not modified.
// ErrElectionNotFound is returned when the election is not in the store.
func (d *Database) CreateCandidate(
	candidate *models.Candidate,
	txn *Txn,
) (*models.Candidate, bool, error) {
	var ret *models.Candidate
	var created bool
	err := d.withTxn(txn, true, func(txn *Txn) error {
		if _, err := getElection(txn.Metadata(), candidate.ElectionID); err != nil {
			return err
		}
		candidate.ID = 0
		candidate.VoteCount = 0
		result := txn.Metadata().
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(candidate)
		if result.Error != nil {
			return fmt.Errorf(
				"create candidate %d/%d: %w",
				candidate.ElectionID,
				candidate.BlockchainID,
				result.Error,
			)
		}
		if result.RowsAffected > 0 {
			created = true
			ret = candidate
			return nil
		}
		existing, err := getCandidate(
			txn.Metadata(),
			candidate.ElectionID,
			candidate.BlockchainID,
		)
		if err != nil {
			return err
		}
		ret = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return ret, created, nil
}

func getCandidate(
	db *gorm.DB,
	electionID uint64,
	blockchainID uint64,
) (*models.Candidate, error) {
	ret := &models.Candidate{}
	result := db.Where(
		"election_id = ? AND blockchain_id = ?",
		electionID,
		blockchainID,
	).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetCandidate returns a candidate by its election and ledger candidate ID
func (d *Database) GetCandidate(
	electionID uint64,
	blockchainID uint64,
	txn *Txn,
) (*models.Candidate, error) {
	var ret *models.Candidate
	err := d.withTxn(txn, false, func(txn *Txn) error {
		var err error
		ret, err = getCandidate(txn.Metadata(), electionID, blockchainID)
		return err
	})
	return ret, err
}

// ListCandidates returns the candidates of an election ordered by ledger ID
func (d *Database) ListCandidates(
	electionID uint64,
	txn *Txn,
) ([]models.Candidate, error) {
	var ret []models.Candidate
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Where("election_id = ?", electionID).
			Order("blockchain_id").
			Find(&ret).Error
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
