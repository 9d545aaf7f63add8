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

/*
Package tracing provides OpenTelemetry setup and correlation ID propagation
for the service host.

# Spans

Setup installs a global tracer provider and meter provider. Components obtain
tracers with otel.Tracer and wrap each lifecycle command, and each call into
module code, in a span:

	provider, err := tracing.Setup(ctx, tracing.Config{
	    Enabled:  true,
	    Exporter: tracing.ExporterStdout,
	})
	defer provider.Shutdown(ctx)

When tracing is disabled the no-op providers stay installed and spans cost
nothing.

# Metrics

The meter provider exports through the Prometheus registry, so OpenTelemetry
instruments appear on the same /metrics endpoint as the host's Prometheus
collectors.

# Correlation IDs

Correlation IDs link an inbound orchestrator request with the outbound calls
it causes:

  - CorrelationMiddleware extracts or generates an ID for inbound requests
  - the orchestrator client forwards it in the X-Correlation-ID header
  - log records written while handling the request carry the same ID
*/
package tracing
