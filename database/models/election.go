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

// Election status values. The lifecycle only moves forward:
// notStarted -> ongoing -> ended.
const (
	ElectionStatusNotStarted = "notStarted"
	ElectionStatusOngoing    = "ongoing"
	ElectionStatusEnded      = "ended"
)

// Election mirrors an election created on the ledger. The ID is assigned by
// the contract and used verbatim as the primary key.
type Election struct {
	StartTime         time.Time `gorm:"index;not null"`
	EndTime           time.Time `gorm:"index;not null"`
	MinAge            *uint
	RequiredEducation *string
	Name              string `gorm:"not null"`
	Status            string `gorm:"index;size:16;not null;default:notStarted"`
	ID                uint64 `gorm:"primaryKey;autoIncrement:false"`
	IsPublic          bool   `gorm:"not null"`
}

func (Election) TableName() string {
	return "elections"
}

// ElectionStatusRank returns the position of a status in the election
// lifecycle, or -1 for unknown values
func ElectionStatusRank(status string) int {
	switch status {
	case ElectionStatusNotStarted:
		return 0
	case ElectionStatusOngoing:
		return 1
	case ElectionStatusEnded:
		return 2
	default:
		return -1
	}
}
