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

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/servicehost/internal/config"
	"github.com/tombee/servicehost/internal/host"
	"github.com/tombee/servicehost/internal/modules/echo"
	"github.com/tombee/servicehost/internal/orchestrator"
	"github.com/tombee/servicehost/internal/orchestrator/orchestratortest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Listen.Addr = "127.0.0.1:0"
	cfg.Orchestrator.URL = "http://127.0.0.1:1"
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.PIDFile = filepath.Join(dir, "servicehostd.pid")
	cfg.StartSeq = 3
	return cfg
}

type running struct {
	d      *Daemon
	rec    *orchestratortest.Recorder
	base   string
	cancel context.CancelFunc
	done   chan error
}

func startDaemon(t *testing.T, cfg *config.Config) *running {
	t.Helper()
	rec := orchestratortest.NewRecorder()
	d, err := New(context.Background(), cfg, Options{Version: "test", Orchestrator: rec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	r := &running{d: d, rec: rec, base: "http://" + d.Addr().String(), cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		_ = d.Shutdown(context.Background())
	})
	return r
}

func (r *running) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, r.base+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestDaemon_HostsEchoModule(t *testing.T) {
	cfg := testConfig(t)
	r := startDaemon(t, cfg)

	pid, err := os.ReadFile(cfg.PIDFile)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(pid)))

	create := `{"library_paths":["` + echo.Dir + `"],"library_name":"` + echo.Library + `","base_symbol_name":"` + echo.Symbol + `"}`
	status, _ := r.do(t, http.MethodPost, "/v1/services/echo-1", create)
	require.Equal(t, http.StatusAccepted, status)

	status, _ = r.do(t, http.MethodPost, "/v1/services/echo-1/bind", `{"bind_token":"b1","intent_hash":11,"data":"hello"}`)
	require.Equal(t, http.StatusAccepted, status)

	require.Eventually(t, func() bool {
		return r.d.Manager().Snapshot().Commands == 2
	}, 5*time.Second, 10*time.Millisecond)
	calls := r.rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, orchestrator.CallServiceDoneExecuting, calls[0].Name)
	assert.Equal(t, orchestrator.CallPublishService, calls[1].Name)

	status, body := r.do(t, http.MethodGet, "/v1/services", "")
	require.Equal(t, http.StatusOK, status)
	var snap host.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Len(t, snap.Services, 1)
	assert.Equal(t, "echo-1", snap.Services[0].Token)
	assert.Equal(t, host.StateBound.String(), snap.Services[0].State)
	assert.Equal(t, "native_app_3_0", snap.Services[0].Namespace)

	status, body = r.do(t, http.MethodGet, "/v1/journal?limit=10", "")
	require.Equal(t, http.StatusOK, status)
	var journal struct {
		Entries []json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &journal))
	assert.Len(t, journal.Entries, 2)

	status, _ = r.do(t, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, status)

	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	require.NoError(t, r.d.Shutdown(context.Background()))

	_, err = os.Stat(cfg.PIDFile)
	assert.True(t, os.IsNotExist(err), "PID file should be removed")
}

func TestDaemon_FailStop(t *testing.T) {
	r := startDaemon(t, testConfig(t))

	status, _ := r.do(t, http.MethodDelete, "/v1/services/missing", "")
	require.Equal(t, http.StatusAccepted, status)

	select {
	case err := <-r.done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrHandlerStopped))
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after a failed command")
	}

	status, _ = r.do(t, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = r.do(t, http.MethodPost, "/v1/trim-memory", `{"level":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestDaemon_ContinuePolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Handoff.ErrorPolicy = "continue"
	r := startDaemon(t, cfg)

	status, _ := r.do(t, http.MethodDelete, "/v1/services/missing", "")
	require.Equal(t, http.StatusAccepted, status)
	status, _ = r.do(t, http.MethodPost, "/v1/bind-application", "")
	require.Equal(t, http.StatusAccepted, status)

	require.Eventually(t, func() bool {
		return r.d.Manager().Snapshot().Commands == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Len(t, r.rec.Calls(), 1)
	assert.Equal(t, orchestrator.CallFinishAttachApplication, r.rec.Calls()[0].Name)

	status, _ = r.do(t, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestDaemon_StartTwice(t *testing.T) {
	r := startDaemon(t, testConfig(t))
	assert.Error(t, r.d.Start(context.Background()))
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVICEHOST_ORCHESTRATOR_URL", "")

	cfg, err := loadConfig("", RunOptions{
		ListenAddr:      "127.0.0.1:9000",
		OrchestratorURL: "http://127.0.0.1:7700",
		Backend:         "wasm",
		StartSeq:        42,
		StartSeqSet:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen.Addr)
	assert.Equal(t, "http://127.0.0.1:7700", cfg.Orchestrator.URL)
	assert.Equal(t, config.BackendWasm, cfg.Loader.Backend)
	assert.Equal(t, int64(42), cfg.StartSeq)
	assert.Equal(t, "native_app_42", cfg.NamespaceBaseName())
}

func TestLoadConfig_MissingOrchestrator(t *testing.T) {
	t.Setenv("SERVICEHOST_ORCHESTRATOR_URL", "")
	_, err := loadConfig("", RunOptions{})
	assert.Error(t, err)
}
