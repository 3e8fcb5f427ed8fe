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
	"time"

	"github.com/blinklabs-io/votesync/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateElection stores the election unless one with the same ID already
// exists. It returns the stored row and whether this call created it. The
// first observation of an election wins; later ones never modify it.
func (d *Database) CreateElection(
	election *models.Election,
	txn *Txn,
) (*models.Election, bool, error) {
	if err := normalizeElection(election); err != nil {
		return nil, false, err
	}
	var ret *models.Election
	var created bool
	err := d.withTxn(txn, true, func(txn *Txn) error {
		result := txn.Metadata().
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(election)
		if result.Error != nil {
			return fmt.Errorf("create election %d: %w", election.ID, result.Error)
		}
		if result.RowsAffected > 0 {
			created = true
			ret = election
			return nil
		}
		existing, err := getElection(txn.Metadata(), election.ID)
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

func normalizeElection(election *models.Election) error {
	if election == nil {
		return fmt.Errorf("%w: nil election", ErrInvalidElection)
	}
	if election.Status == "" {
		election.Status = models.ElectionStatusNotStarted
	}
	if models.ElectionStatusRank(election.Status) < 0 {
		return fmt.Errorf(
			"%w: unknown status %q",
			ErrInvalidElection,
			election.Status,
		)
	}
	if election.EndTime.Before(election.StartTime) {
		return fmt.Errorf(
			"%w: election %d ends before it starts",
			ErrInvalidElection,
			election.ID,
		)
	}
	election.StartTime = election.StartTime.UTC()
	election.EndTime = election.EndTime.UTC()
	if election.IsPublic {
		election.MinAge = nil
		election.RequiredEducation = nil
		return nil
	}
	if election.MinAge == nil || election.RequiredEducation == nil {
		return fmt.Errorf(
			"%w: private election %d without eligibility criteria",
			ErrInvalidElection,
			election.ID,
		)
	}
	return nil
}

func getElection(db *gorm.DB, id uint64) (*models.Election, error) {
	ret := &models.Election{}
	result := db.Where("id = ?", id).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetElection returns the election with the given ledger ID
func (d *Database) GetElection(id uint64, txn *Txn) (*models.Election, error) {
	var ret *models.Election
	err := d.withTxn(txn, false, func(txn *Txn) error {
		var err error
		ret, err = getElection(txn.Metadata(), id)
		return err
	})
	return ret, err
}

// ListElections returns elections ordered by ID. An empty status returns
// all elections.
func (d *Database) ListElections(
	status string,
	txn *Txn,
) ([]models.Election, error) {
	var ret []models.Election
	err := d.withTxn(txn, false, func(txn *Txn) error {
		query := txn.Metadata().Order("id")
		if status != "" {
			query = query.Where("status = ?", status)
		}
		return query.Find(&ret).Error
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// AdvanceElectionStatuses moves elections forward through their lifecycle
// as of now: notStarted elections whose start time has passed become
// ongoing, then ongoing elections whose end time has passed become ended.
// Each transition is a single conditional update, so concurrent writers can
// never move a status backwards.
func (d *Database) AdvanceElectionStatuses(
	now time.Time,
	txn *Txn,
) (int64, int64, error) {
	now = now.UTC()
	var started, ended int64
	err := d.withTxn(txn, true, func(txn *Txn) error {
		result := txn.Metadata().
			Model(&models.Election{}).
			Where(
				"status = ? AND start_time <= ?",
				models.ElectionStatusNotStarted,
				now,
			).
			Update("status", models.ElectionStatusOngoing)
		if result.Error != nil {
			return fmt.Errorf("start elections: %w", result.Error)
		}
		started = result.RowsAffected
		result = txn.Metadata().
			Model(&models.Election{}).
			Where(
				"status = ? AND end_time <= ?",
				models.ElectionStatusOngoing,
				now,
			).
			Update("status", models.ElectionStatusEnded)
		if result.Error != nil {
			return fmt.Errorf("end elections: %w", result.Error)
		}
		ended = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return started, ended, nil
}

// EndElection marks an election as ended regardless of its end time. It
// reports whether the status changed; ending an already ended election is a
// no-op.
func (d *Database) EndElection(id uint64, txn *Txn) (bool, error) {
	var changed bool
	err := d.withTxn(txn, true, func(txn *Txn) error {
		result := txn.Metadata().
			Model(&models.Election{}).
			Where("id = ? AND status <> ?", id, models.ElectionStatusEnded).
			Update("status", models.ElectionStatusEnded)
		if result.Error != nil {
			return fmt.Errorf("end election %d: %w", id, result.Error)
		}
		if result.RowsAffected > 0 {
			changed = true
			return nil
		}
		_, err := getElection(txn.Metadata(), id)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
