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

// Package handoff moves tasks from arbitrary goroutines onto a single owner
// goroutine.
//
// A Reactor owns one goroutine, locked to its OS thread, that sleeps until one
// of its Sources is woken. NewHandler registers a Source with the reactor and
// returns a Handler, which lives on the owner goroutine, and a Sender, which
// may be copied freely and used from any goroutine.
//
//	reactor := handoff.NewReactor(logger)
//	h, sender, err := handoff.NewHandler[command.Command](reactor, manager)
//	go reactor.Run(ctx)
//	sender.Send(cmd)
//
// Tasks are delivered to the Callback in the order Send was called, one at a
// time, never concurrently and never on the sending goroutine.
package handoff
