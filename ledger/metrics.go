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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type subscriberMetrics struct {
	logsTotal        *prometheus.CounterVec
	resubscribeTotal *prometheus.CounterVec
	lastBlock        *prometheus.GaugeVec
}

func (m *subscriberMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.logsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesync_ledger_logs_total",
			Help: "ledger logs received by event type and outcome",
		},
		[]string{"type", "result"},
	)
	m.resubscribeTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesync_ledger_resubscribes_total",
			Help: "ledger log streams re-established after a failure",
		},
		[]string{"type"},
	)
	m.lastBlock = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "votesync_ledger_last_block",
			Help: "highest block observed per event stream",
		},
		[]string{"type"},
	)
}
