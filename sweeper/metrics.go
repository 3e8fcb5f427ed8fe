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

package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type sweepMetrics struct {
	runsTotal        *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	duration         prometheus.Histogram
}

func (m *sweepMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.runsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesync_sweep_runs_total",
			Help: "status sweeps run by outcome",
		},
		[]string{"result"},
	)
	m.transitionsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesync_sweep_transitions_total",
			Help: "election status transitions applied by the sweeper",
		},
		[]string{"status"},
	)
	m.duration = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "votesync_sweep_duration_seconds",
			Help:    "time spent in one status sweep",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
	)
}
