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

import "time"

// AdminTransfer is an append-only audit record of contract admin changes
type AdminTransfer struct {
	ObservedAt  time.Time `gorm:"not null"`
	OldAdmin    string    `gorm:"size:42;not null"`
	NewAdmin    string    `gorm:"index;size:42;not null"`
	TxHash      string    `gorm:"uniqueIndex:idx_admin_transfer_tx_log;size:66;not null"`
	ID          uint      `gorm:"primarykey"`
	LogIndex    uint      `gorm:"uniqueIndex:idx_admin_transfer_tx_log;not null"`
	BlockNumber uint64    `gorm:"index"`
}

func (AdminTransfer) TableName() string {
	return "admin_transfers"
}
