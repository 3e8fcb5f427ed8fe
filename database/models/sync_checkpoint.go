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

// SyncCheckpoint tracks the highest block for which a log of the given event
// type has been projected. On restart, the ledger subscriber replays logs
// from this block onward; projections are idempotent so the overlap is safe.
type SyncCheckpoint struct {
	UpdatedAt time.Time
	EventType string `gorm:"uniqueIndex;size:64;not null"`
	ID        uint   `gorm:"primarykey"`
	LastBlock uint64 `gorm:"not null"`
}

func (SyncCheckpoint) TableName() string {
	return "sync_checkpoints"
}
