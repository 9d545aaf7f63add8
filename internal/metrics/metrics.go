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

// Package metrics holds the host's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehost_commands_total",
			Help: "Total lifecycle commands executed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	commandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehost_command_errors_total",
			Help: "Total lifecycle command failures by kind and error type",
		},
		[]string{"kind", "error_type"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "servicehost_command_duration_seconds",
			Help:    "Lifecycle command execution time by kind",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"kind"},
	)

	hostedServices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "servicehost_hosted_services",
			Help: "Number of services currently hosted",
		},
	)

	suppressedTrims = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "servicehost_trim_memory_suppressed_total",
			Help: "Background trim requests ignored because the process is in the foreground",
		},
	)

	outboundCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehost_orchestrator_calls_total",
			Help: "Outbound orchestrator calls by call name and outcome",
		},
		[]string{"call", "outcome"},
	)

	journalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehost_journal_errors_total",
			Help: "Total journal write failures by operation",
		},
		[]string{"operation"},
	)
)

// RecordCommand records one executed command. errorType is "" on success.
func RecordCommand(kind string, seconds float64, errorType string) {
	commandDuration.WithLabelValues(kind).Observe(seconds)
	if errorType == "" {
		commandsTotal.WithLabelValues(kind, OutcomeOK).Inc()
		return
	}
	commandsTotal.WithLabelValues(kind, OutcomeError).Inc()
	commandErrors.WithLabelValues(kind, errorType).Inc()
}

// SetHostedServices sets the hosted services gauge.
func SetHostedServices(n int) {
	hostedServices.Set(float64(n))
}

// RecordSuppressedTrim increments the suppressed trim counter.
func RecordSuppressedTrim() {
	suppressedTrims.Inc()
}

// RecordOutboundCall records one orchestrator call.
func RecordOutboundCall(call string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	outboundCalls.WithLabelValues(call, outcome).Inc()
}

// RecordJournalError increments the journal error counter.
func RecordJournalError(operation string) {
	journalErrors.WithLabelValues(operation).Inc()
}
