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

// CreateVoter stores a registered voter unless the address is already known
func (d *Database) CreateVoter(
	voter *models.Voter,
	txn *Txn,
) (*models.Voter, bool, error) {
	var ret *models.Voter
	var created bool
	err := d.withTxn(txn, true, func(txn *Txn) error {
		voter.RegisteredAt = voter.RegisteredAt.UTC()
		result := txn.Metadata().
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(voter)
		if result.Error != nil {
			return fmt.Errorf("create voter %s: %w", voter.Address, result.Error)
		}
		if result.RowsAffected > 0 {
			created = true
			ret = voter
			return nil
		}
		existing, err := getVoter(txn.Metadata(), voter.Address)
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

func getVoter(db *gorm.DB, address string) (*models.Voter, error) {
	ret := &models.Voter{}
	result := db.Where("address = ?", address).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrVoterNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetVoter returns the voter registered under the given address
func (d *Database) GetVoter(address string, txn *Txn) (*models.Voter, error) {
	var ret *models.Voter
	err := d.withTxn(txn, false, func(txn *Txn) error {
		var err error
		ret, err = getVoter(txn.Metadata(), address)
		return err
	})
	return ret, err
}
