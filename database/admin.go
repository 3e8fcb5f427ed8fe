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
	"gorm.io/gorm/clause"
)

// RecordAdminTransfer appends an admin transfer to the audit log. A transfer
// already recorded for the same transaction hash and log index is ignored.
func (d *Database) RecordAdminTransfer(
	transfer *models.AdminTransfer,
	txn *Txn,
) (bool, error) {
	var recorded bool
	err := d.withTxn(txn, true, func(txn *Txn) error {
		transfer.ID = 0
		transfer.ObservedAt = transfer.ObservedAt.UTC()
		result := txn.Metadata().
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(transfer)
		if result.Error != nil {
			return fmt.Errorf("create admin transfer: %w", result.Error)
		}
		recorded = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// ListAdminTransfers returns the admin transfer audit log, oldest first
func (d *Database) ListAdminTransfers(txn *Txn) ([]models.AdminTransfer, error) {
	var ret []models.AdminTransfer
	err := d.withTxn(txn, false, func(txn *Txn) error {
		return txn.Metadata().
			Order("block_number").
			Order("log_index").
			Find(&ret).Error
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
