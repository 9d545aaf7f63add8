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

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/servicehost/internal/commands/shared"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv("SERVICEHOST_ORCHESTRATOR_URL", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := NewConfigCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestShow_YAML(t *testing.T) {
	path := writeConfig(t, "orchestrator:\n  url: http://127.0.0.1:7700\nstart_seq: 9\n")

	out, err := execute(t, "show", "--config", path)
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "url: http://127.0.0.1:7700") {
		t.Errorf("expected orchestrator URL in output, got:\n%s", out)
	}
	if !strings.Contains(out, "start_seq: 9") {
		t.Errorf("expected start_seq in output, got:\n%s", out)
	}
	if !strings.Contains(out, "backend: static") {
		t.Errorf("expected default backend in output, got:\n%s", out)
	}
}

func TestValidate_Valid(t *testing.T) {
	path := writeConfig(t, "orchestrator:\n  url: http://127.0.0.1:7700\n")

	out, err := execute(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "configuration is valid") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	path := writeConfig(t, "loader:\n  backend: dlopen\n")

	out, err := execute(t, "validate", "--config", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if shared.ExitCode(err) != shared.ExitUsage {
		t.Errorf("expected usage exit code, got %d", shared.ExitCode(err))
	}
	if !strings.Contains(out, "orchestrator.url") {
		t.Errorf("expected orchestrator.url problem, got:\n%s", out)
	}
	if !strings.Contains(out, "loader.backend") {
		t.Errorf("expected loader.backend problem, got:\n%s", out)
	}
}

func TestValidate_JSON(t *testing.T) {
	defer shared.SetJSONForTest(true)()
	path := writeConfig(t, "loader:\n  backend: dlopen\n")

	out, _ := execute(t, "validate", "--config", path)

	var got struct {
		Valid    bool `json:"valid"`
		Problems []struct {
			Field string `json:"field"`
		} `json:"problems"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if got.Valid {
		t.Error("expected invalid")
	}
	if len(got.Problems) < 2 {
		t.Errorf("expected at least 2 problems, got %+v", got.Problems)
	}
}

func TestPath(t *testing.T) {
	out, err := execute(t, "path")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), filepath.Join("servicehost", "config.yaml")) {
		t.Errorf("unexpected path: %s", out)
	}
}
