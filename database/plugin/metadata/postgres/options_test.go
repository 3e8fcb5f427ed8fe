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

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOptionsDefaults(t *testing.T) {
	p, err := NewWithOptions(WithDsn("host=db user=votesync"))
	require.NoError(t, err)
	assert.Equal(t, "host=db user=votesync", p.dsn)
	assert.Equal(t, DefaultMaxConnections, p.maxConnections)
}

func TestStartWithoutDsn(t *testing.T) {
	p, err := NewWithOptions()
	require.NoError(t, err)
	require.Error(t, p.Start())
	// Close must be safe after a failed Start
	require.NoError(t, p.Close())
}

func TestNewWithOptionsRejectsNegativeMaxConnections(t *testing.T) {
	_, err := NewWithOptions(WithMaxConnections(-5))
	require.Error(t, err)
}
