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

package command

import (
	"fmt"
	"strings"
)

// ProcessState is the orchestrator's importance level for the host process.
// Lower values are more important.
type ProcessState int32

// Process states, numbered as the platform's process manager numbers them.
const (
	ProcessStateUnknown                ProcessState = -1
	ProcessStatePersistent             ProcessState = 0
	ProcessStatePersistentUI           ProcessState = 1
	ProcessStateTop                    ProcessState = 2
	ProcessStateBoundTop               ProcessState = 3
	ProcessStateForegroundService      ProcessState = 4
	ProcessStateBoundForegroundService ProcessState = 5
	ProcessStateImportantForeground    ProcessState = 6
	ProcessStateImportantBackground    ProcessState = 7
	ProcessStateTransientBackground    ProcessState = 8
	ProcessStateBackup                 ProcessState = 9
	ProcessStateService                ProcessState = 10
	ProcessStateReceiver               ProcessState = 11
	ProcessStateTopSleeping            ProcessState = 12
	ProcessStateHeavyWeight            ProcessState = 13
	ProcessStateHome                   ProcessState = 14
	ProcessStateLastActivity           ProcessState = 15
	ProcessStateCachedActivity         ProcessState = 16
	ProcessStateCachedActivityClient   ProcessState = 17
	ProcessStateCachedRecent           ProcessState = 18
	ProcessStateCachedEmpty            ProcessState = 19
	ProcessStateNonexistent            ProcessState = 20
)

var processStateNames = map[ProcessState]string{
	ProcessStateUnknown:                "unknown",
	ProcessStatePersistent:             "persistent",
	ProcessStatePersistentUI:           "persistent-ui",
	ProcessStateTop:                    "top",
	ProcessStateBoundTop:               "bound-top",
	ProcessStateForegroundService:      "foreground-service",
	ProcessStateBoundForegroundService: "bound-foreground-service",
	ProcessStateImportantForeground:    "important-foreground",
	ProcessStateImportantBackground:    "important-background",
	ProcessStateTransientBackground:    "transient-background",
	ProcessStateBackup:                 "backup",
	ProcessStateService:                "service",
	ProcessStateReceiver:               "receiver",
	ProcessStateTopSleeping:            "top-sleeping",
	ProcessStateHeavyWeight:            "heavy-weight",
	ProcessStateHome:                   "home",
	ProcessStateLastActivity:           "last-activity",
	ProcessStateCachedActivity:         "cached-activity",
	ProcessStateCachedActivityClient:   "cached-activity-client",
	ProcessStateCachedRecent:           "cached-recent",
	ProcessStateCachedEmpty:            "cached-empty",
	ProcessStateNonexistent:            "nonexistent",
}

// String implements fmt.Stringer.
func (s ProcessState) String() string {
	if name, ok := processStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ProcessState(%d)", int32(s))
}

// IsAtLeastImportantForeground reports whether the process is at least as
// important as an important foreground process. Unknown counts as important.
func (s ProcessState) IsAtLeastImportantForeground() bool {
	return s <= ProcessStateImportantForeground
}

// ParseProcessState accepts the names String returns as well as the
// symbolic upper-case forms such as IMPORTANT_FOREGROUND.
func ParseProcessState(s string) (ProcessState, bool) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for state, name := range processStateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}
