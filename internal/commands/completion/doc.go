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

// Package completion generates shell completion scripts for servicehost and
// supplies the ValidArgsFunction and flag completion callbacks used by the
// other commands. Service tokens come from the daemon's /v1/services view;
// trim levels, process states and loader backends are fixed lists.
//
// Every callback is wrapped so that a daemon that is down, slow or
// misbehaving produces no candidates rather than an error in the shell.
package completion
