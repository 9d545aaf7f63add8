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

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCommand(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		errorType string
		outcome   string
	}{
		{name: "success", kind: "create_service", outcome: OutcomeOK},
		{name: "not found", kind: "destroy_service", errorType: "not_found", outcome: OutcomeError},
		{name: "protocol", kind: "trim_memory", errorType: "protocol", outcome: OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := prometheus.Labels{"kind": tt.kind, "outcome": tt.outcome}
			initial := testutil.ToFloat64(commandsTotal.With(labels))

			RecordCommand(tt.kind, 0.001, tt.errorType)

			if got := testutil.ToFloat64(commandsTotal.With(labels)); got != initial+1 {
				t.Errorf("expected count to increment by 1, got initial=%f, new=%f", initial, got)
			}
			if tt.errorType != "" {
				errLabels := prometheus.Labels{"kind": tt.kind, "error_type": tt.errorType}
				if got := testutil.ToFloat64(commandErrors.With(errLabels)); got < 1 {
					t.Errorf("expected error counter to be incremented, got %f", got)
				}
			}
		})
	}
}

func TestSetHostedServices(t *testing.T) {
	SetHostedServices(3)
	if got := testutil.ToFloat64(hostedServices); got != 3 {
		t.Errorf("expected 3 hosted services, got %f", got)
	}
	SetHostedServices(0)
	if got := testutil.ToFloat64(hostedServices); got != 0 {
		t.Errorf("expected 0 hosted services, got %f", got)
	}
}

func TestRecordOutboundCall(t *testing.T) {
	ok := testutil.ToFloat64(outboundCalls.WithLabelValues("publishService", OutcomeOK))
	failed := testutil.ToFloat64(outboundCalls.WithLabelValues("publishService", OutcomeError))

	RecordOutboundCall("publishService", nil)
	RecordOutboundCall("publishService", errors.New("refused"))

	if got := testutil.ToFloat64(outboundCalls.WithLabelValues("publishService", OutcomeOK)); got != ok+1 {
		t.Errorf("expected ok count %f, got %f", ok+1, got)
	}
	if got := testutil.ToFloat64(outboundCalls.WithLabelValues("publishService", OutcomeError)); got != failed+1 {
		t.Errorf("expected error count %f, got %f", failed+1, got)
	}
}

func TestRecordSuppressedTrimAndJournalError(t *testing.T) {
	before := testutil.ToFloat64(suppressedTrims)
	RecordSuppressedTrim()
	if got := testutil.ToFloat64(suppressedTrims); got != before+1 {
		t.Errorf("expected %f, got %f", before+1, got)
	}

	beforeJournal := testutil.ToFloat64(journalErrors.WithLabelValues("append"))
	RecordJournalError("append")
	if got := testutil.ToFloat64(journalErrors.WithLabelValues("append")); got != beforeJournal+1 {
		t.Errorf("expected %f, got %f", beforeJournal+1, got)
	}
}
