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

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/servicehost/internal/commands/shared"
)

func TestNewRootCommand_Tree(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "servicehost", cmd.Use)

	groups := map[string]string{
		"service":          GroupLifecycle,
		"trim-memory":      GroupLifecycle,
		"process-state":    GroupLifecycle,
		"bind-application": GroupLifecycle,
		"services":         GroupInspect,
		"journal":          GroupInspect,
		"health":           GroupInspect,
		"daemon":           GroupAdmin,
		"config":           GroupAdmin,
		"completion":       GroupAdmin,
		"version":          GroupAdmin,
	}
	for name, group := range groups {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
		assert.Equal(t, group, sub.GroupID, name)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"verbose", "quiet", "json", "host", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestCheckGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--verbose", "--quiet", "version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))

	cmd = NewRootCommand()
	cmd.SetArgs([]string{"--timeout", "0s", "version"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")
	defer SetVersion("dev", "unknown", "unknown")

	v, c, b := shared.GetVersion()
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "abc123", c)
	assert.Equal(t, "2025-12-22", b)
}
