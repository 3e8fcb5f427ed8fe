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

package projection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type projectionMetrics struct {
	eventsTotal *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func (m *projectionMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.eventsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesync_projection_events_total",
			Help: "ledger events projected by type and result",
		},
		[]string{"type", "result"},
	)
	m.duration = promautoFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "votesync_projection_duration_seconds",
			Help:    "time spent projecting one ledger event",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"type"},
	)
}
