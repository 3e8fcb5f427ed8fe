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

// GetSyncCheckpoint returns the last projected block for an event type. The
// boolean is false when no checkpoint has been recorded yet.
func (d *Database) GetSyncCheckpoint(
	eventType string,
	txn *Txn,
) (uint64, bool, error) {
	var ret models.SyncCheckpoint
	var found bool
	err := d.withTxn(txn, false, func(txn *Txn) error {
		result := txn.Metadata().
			Where("event_type = ?", eventType).
			First(&ret)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return ret.LastBlock, found, nil
}

// SetSyncCheckpoint records that logs of an event type have been projected up
// to blockNumber. A checkpoint never moves backwards.
func (d *Database) SetSyncCheckpoint(
	eventType string,
	blockNumber uint64,
	txn *Txn,
) error {
	return d.withTxn(txn, true, func(txn *Txn) error {
		now := time.Now().UTC()
		checkpoint := &models.SyncCheckpoint{
			EventType: eventType,
			LastBlock: blockNumber,
			UpdatedAt: now,
		}
		result := txn.Metadata().
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(checkpoint)
		if result.Error != nil {
			return fmt.Errorf("create checkpoint %s: %w", eventType, result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		result = txn.Metadata().
			Model(&models.SyncCheckpoint{}).
			Where("event_type = ? AND last_block < ?", eventType, blockNumber).
			Updates(map[string]any{
				"last_block": blockNumber,
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("update checkpoint %s: %w", eventType, result.Error)
		}
		return nil
	})
}
