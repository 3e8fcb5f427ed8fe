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

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const DefaultDialTimeout = 10 * time.Second

// Dial connects to a ledger node and verifies that it answers by fetching
// the chain ID. Websocket and IPC endpoints support push subscriptions;
// HTTP endpoints are polled.
func Dial(
	ctx context.Context,
	url string,
	timeout time.Duration,
) (*ethclient.Client, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", url, err)
	}
	if _, err := client.ChainID(dialCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger %s unreachable: %w", url, err)
	}
	return client, nil
}
