// Copyright 2025 Tom Barlow
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

package handoff

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomeFatal = "fatal"
)

var (
	// queueDepth tracks tasks waiting in each handler's queue
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "servicehost_handoff_queue_depth",
			Help: "Number of tasks waiting to be dispatched by handler name",
		},
		[]string{"handler"},
	)

	// tasksDispatched tracks tasks delivered to callbacks
	tasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehost_handoff_tasks_dispatched_total",
			Help: "Total tasks dispatched by handler name and outcome",
		},
		[]string{"handler", "outcome"},
	)
)

// recordDispatch increments the dispatched counter
func recordDispatch(handler, outcome string) {
	tasksDispatched.WithLabelValues(handler, outcome).Inc()
}
