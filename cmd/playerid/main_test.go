package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msimon/playerid/account"
	"github.com/msimon/playerid/offline"
	"github.com/msimon/playerid/storage"
)

// identityServer is a minimal identity service for CLI tests.
type identityServer struct {
	mu          sync.Mutex
	defaultUser string
	removed     []string
}

func (s *identityServer) snapshot() (string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultUser, append([]string(nil), s.removed...)
}

func (s *identityServer) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/auth/device", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"verification_uri": "https://example.test/device",
			"user_code":        "WXYZ-9876",
			"device_code":      "dev-1",
			"interval":         1,
			"expires_in":       60,
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/device/token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":      map[string]string{"id": "0f1e2d", "name": "jeb"},
			"access_token": "token",
			"expires":      "2099-01-01T00:00:00Z",
			"active":       true,
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/v1/users", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"profile": map[string]string{"id": "0f1e2d", "name": "jeb"}, "access_token": "token", "active": true},
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/default", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.defaultUser == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": s.defaultUser})
	}).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/default", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ID string `json:"id"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		s.mu.Lock()
		s.defaultUser = body.ID
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPut)
	r.HandleFunc("/v1/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.removed = append(s.removed, mux.Vars(req)["id"])
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setupCLI(t *testing.T) (*identityServer, string) {
	t.Helper()
	srv := &identityServer{}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	config := fmt.Sprintf(`{
		"storage": {"type": "file", "file": {"path": %q}},
		"remote": {"type": "http", "http": {"baseUrl": %q}},
		"log": {"level": "error"}
	}`, filepath.Join(dir, "accounts.json"), ts.URL)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))
	return srv, configPath
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(append([]string{"-c", configPath}, args...), &out)
	return out.String(), err
}

func TestCLI_OfflineLifecycle(t *testing.T) {
	_, configPath := setupCLI(t)

	out, err := runCLI(t, configPath, "add-offline", "steve")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.True(t, account.IsOfflineID(id), "got %q", id)

	out, err = runCLI(t, configPath, "offline")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "steve")

	_, err = runCLI(t, configPath, "set-default", id)
	require.NoError(t, err)

	out, err = runCLI(t, configPath, "default")
	require.NoError(t, err)
	assert.Equal(t, id+" (local)\n", out)

	_, err = runCLI(t, configPath, "remove-offline", id)
	require.NoError(t, err)

	out, err = runCLI(t, configPath, "offline")
	require.NoError(t, err)
	assert.Equal(t, "no accounts\n", out)

	out, err = runCLI(t, configPath, "default")
	require.NoError(t, err)
	assert.Equal(t, "no default user\n", out)
}

func TestCLI_Users(t *testing.T) {
	_, configPath := setupCLI(t)

	_, err := runCLI(t, configPath, "add-offline", "steve", "offline-steve-00000000")
	require.NoError(t, err)

	out, err := runCLI(t, configPath, "-json", "users")
	require.NoError(t, err)

	var accounts []account.Account
	require.NoError(t, json.Unmarshal([]byte(out), &accounts))
	require.Len(t, accounts, 2)
	assert.Equal(t, "0f1e2d", accounts[0].ID())
	assert.Equal(t, account.KindOnline, accounts[0].Type)
	assert.Equal(t, "offline-steve-00000000", accounts[1].ID())
	assert.Equal(t, account.KindOffline, accounts[1].Type)
}

func TestCLI_RemoteDefaultAndRemove(t *testing.T) {
	srv, configPath := setupCLI(t)

	_, err := runCLI(t, configPath, "set-default", "0f1e2d")
	require.NoError(t, err)
	defaultUser, _ := srv.snapshot()
	assert.Equal(t, "0f1e2d", defaultUser)

	out, err := runCLI(t, configPath, "default")
	require.NoError(t, err)
	assert.Equal(t, "0f1e2d (remote)\n", out)

	_, err = runCLI(t, configPath, "remove", "0f1e2d")
	require.NoError(t, err)
	_, removed := srv.snapshot()
	assert.Equal(t, []string{"0f1e2d"}, removed)
}

func TestCLI_Login(t *testing.T) {
	_, configPath := setupCLI(t)

	out, err := runCLI(t, configPath, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "open https://example.test/device and enter the code WXYZ-9876")
	assert.Contains(t, out, "Signed in as jeb (0f1e2d)")
	assert.Contains(t, out, "Access token expires at 2099-01-01T00:00:00Z")
}

func TestCLI_ListingKeepsInvalidRecords(t *testing.T) {
	_, configPath := setupCLI(t)

	kv, err := storage.NewFileStore(storage.FileStoreConfig{Path: filepath.Join(filepath.Dir(configPath), "accounts.json")})
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), offline.DefaultAccountsKey, `[
		{"profile":{"id":"offline-a-00000000","name":"a"},"type":"offline","offline":true},
		{"profile":{"id":"legacy-1","name":"b"}}
	]`))

	out, err := runCLI(t, configPath, "offline")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "offline "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "invalid "), lines[1])
	assert.Contains(t, lines[1], "legacy-1")

	out, err = runCLI(t, configPath, "users")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "online "), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "invalid "), lines[2])
}

func TestCLI_Errors(t *testing.T) {
	_, configPath := setupCLI(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no command", args: nil, wantErr: "a command is required"},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: `unknown command "frobnicate"`},
		{name: "missing argument", args: []string{"set-default"}, wantErr: "usage: playerid set-default <id>"},
		{name: "too many arguments", args: []string{"add-offline", "a", "b", "c"}, wantErr: "usage: playerid add-offline"},
		{name: "empty username", args: []string{"add-offline", " "}, wantErr: "username is required"},
		{name: "unknown offline id", args: []string{"remove-offline", "offline-nobody-00000000"}, wantErr: `no offline account with id "offline-nobody-00000000"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, configPath, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunCommand_Unknown(t *testing.T) {
	err := runCommand(context.Background(), nil, options{}, "nope", nil, &bytes.Buffer{})
	assert.EqualError(t, err, `unknown command "nope"`)
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("PLAYERID_TEST_VALUE", "set")
	assert.Equal(t, "set", envOrDefault("PLAYERID_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", envOrDefault("PLAYERID_TEST_UNSET", "fallback"))
}
