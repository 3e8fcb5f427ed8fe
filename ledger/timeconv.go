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
	"fmt"
	"math/big"
	"time"
)

// maxTimestamp is the last second of year 9999
const maxTimestamp = 253402300799

// TimeFromSeconds converts a ledger timestamp in seconds since the Unix
// epoch to a UTC time
func TimeFromSeconds(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

func timeFromBig(v *big.Int) (time.Time, error) {
	if v == nil || v.Sign() < 0 || !v.IsInt64() || v.Int64() > maxTimestamp {
		return time.Time{}, fmt.Errorf("timestamp out of range: %v", v)
	}
	return TimeFromSeconds(v.Int64()), nil
}

func uint64FromBig(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("value out of range: %v", v)
	}
	return v.Uint64(), nil
}

func uintFromBig(v *big.Int) (uint, error) {
	ret, err := uint64FromBig(v)
	if err != nil {
		return 0, err
	}
	if uint64(uint(ret)) != ret {
		return 0, fmt.Errorf("value out of range: %v", v)
	}
	return uint(ret), nil
}
