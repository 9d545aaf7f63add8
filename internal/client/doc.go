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
Package client provides an HTTP client for the servicehostd endpoint.

Operator tooling uses it to submit lifecycle commands and to read the
daemon's status. Commands are asynchronous: a successful call means the
daemon accepted the command for execution, not that the module ran.

# Basic Usage

	c, err := client.New()
	if err != nil {
	    log.Fatal(err)
	}

	accepted, err := c.CreateService(ctx, "svc-1", endpoint.CreateServiceRequest{
	    LibraryPaths:   []string{"/usr/lib/servicehost"},
	    LibraryName:    "libecho.so",
	    BaseSymbolName: "ServiceHostCreate",
	})

	snap, err := c.Services(ctx)

# Address

The default address is http://127.0.0.1:7460. Override it with WithBaseURL
or the SERVICEHOST_HOST environment variable:

	export SERVICEHOST_HOST=http://10.0.0.5:7460

# Correlation

When the request context carries a correlation ID (see package tracing) it
is sent as X-Correlation-ID, and the daemon tags the command's log records,
span and journal entry with it.
*/
package client
