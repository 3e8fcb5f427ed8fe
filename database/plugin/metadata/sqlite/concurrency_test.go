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

package sqlite

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/blinklabs-io/votesync/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestConcurrentReadsDuringWrites verifies that concurrent readers and
// transactional writers on a file-based store do not fail with SQLITE_BUSY
func TestConcurrentReadsDuringWrites(t *testing.T) {
	store, err := NewWithOptions(
		WithDataDir(t.TempDir()),
		WithMaxConnections(DefaultMaxConnections),
	)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	defer store.Close() //nolint:errcheck

	const (
		numWriters   = 3
		numReaders   = 5
		opsPerWorker = 20
	)

	var (
		writeErrors atomic.Int64
		readErrors  atomic.Int64
		wg          sync.WaitGroup
	)

	for w := range numWriters {
		wg.Add(1)
		go func(writerID int) {
			defer wg.Done()
			for i := range opsPerWorker {
				err := store.DB().Transaction(func(tx *gorm.DB) error {
					return tx.Create(&models.Voter{
						Address: fmt.Sprintf("0xw%d_%d", writerID, i),
						Age:     uint(18 + i),
					}).Error
				})
				if err != nil {
					writeErrors.Add(1)
					t.Logf("writer %d op %d error: %v", writerID, i, err)
				}
			}
		}(w)
	}

	for r := range numReaders {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()
			for range opsPerWorker {
				var count int64
				if err := store.DB().Model(&models.Voter{}).Count(&count).Error; err != nil {
					readErrors.Add(1)
					t.Logf("reader %d error: %v", readerID, err)
				}
			}
		}(r)
	}

	wg.Wait()
	assert.Equal(t, int64(0), writeErrors.Load())
	assert.Equal(t, int64(0), readErrors.Load())

	var count int64
	require.NoError(t, store.DB().Model(&models.Voter{}).Count(&count).Error)
	assert.Equal(t, int64(numWriters*opsPerWorker), count)
}
