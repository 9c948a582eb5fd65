package service_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rackworks/hwdiag/internal/capture"
	"github.com/rackworks/hwdiag/internal/jobs"
	"github.com/rackworks/hwdiag/internal/model"
	"github.com/rackworks/hwdiag/internal/service"
)

func TestNewFactory(t *testing.T) {
	t.Parallel()

	scheme := "http"
	port := 8443
	insecure := true

	cases := []struct {
		scenario string
		cfg      model.Config
		want     any
		wantErr  string
	}{
		{
			scenario: "relay",
			cfg: model.Config{
				Backend: model.BackendRelay,
				Relay:   &model.Relay{URL: "http://relay:27780", Auth: model.Auth{Type: model.AuthTypeStaticToken, Token: "T"}},
			},
			want: jobs.RelayFactory{URL: "http://relay:27780", Token: "T"},
		},
		{
			scenario: "empty backend defaults to relay",
			cfg: model.Config{
				Relay: &model.Relay{URL: "http://relay:27780", Auth: model.Auth{Type: model.AuthTypeNone}},
			},
			want: jobs.RelayFactory{URL: "http://relay:27780"},
		},
		{
			scenario: "redfish with overrides",
			cfg: model.Config{
				Backend: model.BackendRedfish,
				Redfish: &model.Redfish{Scheme: &scheme, Port: &port, Insecure: &insecure, Auth: model.Auth{Type: model.AuthTypeNone}},
			},
			want: jobs.RedfishFactory{Scheme: "http", Port: 8443, Insecure: true},
		},
		{
			scenario: "redfish zero values",
			cfg: model.Config{
				Backend: model.BackendRedfish,
				Redfish: &model.Redfish{Auth: model.Auth{Type: model.AuthTypeNone}},
			},
			want: jobs.RedfishFactory{},
		},
		{
			scenario: "relay backend without section",
			cfg:      model.Config{Backend: model.BackendRelay},
			wantErr:  "requires a relay section",
		},
		{
			scenario: "redfish backend without section",
			cfg:      model.Config{Backend: model.BackendRedfish},
			wantErr:  "requires a redfish section",
		},
		{
			scenario: "unknown backend",
			cfg:      model.Config{Backend: "smoke-signals"},
			wantErr:  `unknown backend "smoke-signals"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			got, err := service.NewFactory(tc.cfg)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolvePoll(t *testing.T) {
	t.Parallel()

	interval, timeout, err := service.ResolvePoll(model.Poll{Interval: "30s", Timeout: "10m"})
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, interval)
	require.Equal(t, 10*time.Minute, timeout)

	_, _, err = service.ResolvePoll(model.Poll{Interval: "soon"})
	require.ErrorContains(t, err, "poll.interval")

	_, _, err = service.ResolvePoll(model.Poll{Timeout: "later"})
	require.ErrorContains(t, err, "poll.timeout")

	interval, timeout, err = service.ResolvePoll(model.Poll{})
	require.NoError(t, err)
	require.Zero(t, interval)
	require.Zero(t, timeout)
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	cfg := model.DefaultConfig()

	_, err := service.Run(t.Context(), cfg, service.Invocation{Command: "MemoryCheck"})
	require.ErrorContains(t, err, "no targets")

	_, err = service.Run(t.Context(), cfg, service.Invocation{Targets: []string{"bmc-a"}})
	require.ErrorContains(t, err, "no diagnostic command")
}

// relayFixture serves one complete job lifecycle for any submitted target.
func relayFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Targets []string `json:"targets"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]string{"jobID": "J-" + body.Targets[0]})
	})
	mux.HandleFunc("GET /v1/jobs/{handle}", func(w http.ResponseWriter, r *http.Request) {
		target := r.PathValue("handle")[2:]
		inner, _ := json.Marshal(map[string]string{"state": "OK"})
		json.NewEncoder(w).Encode(map[string]any{
			"tasks": []map[string]any{{"xname": target, "launchMessage": string(inner)}},
		})
	})
	mux.HandleFunc("GET /v1/jobs/{handle}/tasks/{target}", func(w http.ResponseWriter, r *http.Request) {
		inner, _ := json.Marshal(map[string]any{"state": "Completed", "diagnosticMessages": []string{"PASS"}})
		json.NewEncoder(w).Encode(map[string]string{"message": string(inner)})
	})
	mux.HandleFunc("DELETE /v1/jobs/{handle}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRunAgainstRelay(t *testing.T) {
	server := relayFixture(t)

	cfg := model.Config{
		Backend: model.BackendRelay,
		Relay:   &model.Relay{URL: server.URL, Auth: model.Auth{Type: model.AuthTypeNone}},
	}
	inv := service.Invocation{
		Targets: []string{"bmc-a", "bmc-b"},
		Command: "MemoryCheck",
		Timeout: time.Minute,
	}

	summary, err := service.Run(t.Context(), cfg, inv)
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)
	require.Empty(t, summary.Failed())
	require.Equal(t, "MemoryCheck", summary.Command)
}

func TestRunWithCapture(t *testing.T) {
	server := relayFixture(t)

	path := filepath.Join(t.TempDir(), "capture.db")
	enabled := true
	cfg := model.Config{
		Backend: model.BackendRelay,
		Relay:   &model.Relay{URL: server.URL, Auth: model.Auth{Type: model.AuthTypeNone}},
		Capture: &model.Capture{Enabled: &enabled, Path: &path},
	}
	inv := service.Invocation{
		Targets: []string{"bmc-a"},
		Command: "MemoryCheck",
		Timeout: time.Minute,
	}

	summary, err := service.Run(t.Context(), cfg, inv)
	require.NoError(t, err)
	require.Empty(t, summary.Failed())

	// the capture file exists and a fresh session does not see the
	// finished run's rows
	store, err := capture.Open(t.Context(), path)
	require.NoError(t, err)
	defer store.Close()

	events, err := store.Events(t.Context())
	require.NoError(t, err)
	require.Empty(t, events)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestWatchScheduleValidation(t *testing.T) {
	t.Parallel()

	cfg := model.DefaultConfig()
	inv := service.Invocation{Targets: []string{"bmc-a"}, Command: "MemoryCheck"}

	err := service.Watch(t.Context(), cfg, inv)
	require.ErrorContains(t, err, "watch mode requires service.schedule")

	cfg.Service.Schedule = &model.TimerSchedule{}
	err = service.Watch(t.Context(), cfg, inv)
	require.ErrorContains(t, err, "both cron and duration are empty")

	cfg.Service.Schedule = &model.TimerSchedule{Cron: "not a cron"}
	err = service.Watch(t.Context(), cfg, inv)
	require.ErrorContains(t, err, "service.schedule.cron")

	cfg.Service.Schedule = &model.TimerSchedule{Duration: "whenever"}
	err = service.Watch(t.Context(), cfg, inv)
	require.ErrorContains(t, err, "service.schedule.duration")
}
