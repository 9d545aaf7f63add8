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
Package endpoint is the inbound surface the orchestrator drives.

An Endpoint converts each call into a command.Command and hands it to a
Sender. Calls return as soon as the command is queued: acknowledgement means
"accepted", not "executed". Completion is reported later through the
orchestrator client.

The HTTP binding maps one route to each call:

	POST   /v1/services/{token}         create
	DELETE /v1/services/{token}         destroy
	POST   /v1/services/{token}/bind    bind or rebind
	POST   /v1/services/{token}/unbind  unbind
	POST   /v1/trim-memory              trim memory
	PUT    /v1/process-state            set process state
	POST   /v1/bind-application         bind application

Accepted commands answer 202. A body that cannot be decoded answers 400 and
nothing is queued. A command the host can no longer accept answers 503.
*/
package endpoint
