package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

type fakeServer struct {
	*httptest.Server
	lastBody   []byte
	lastClient string
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{}
	tab := models.TabView{ID: "t1", URL: "https://example.com/", Title: "Example", IsActive: true}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tabs", func(w http.ResponseWriter, r *http.Request) {
		f.lastClient = r.Header.Get("X-Client-ID")
		writeJSON(w, http.StatusOK, []models.TabView{tab, {ID: "t2", URL: "about:blank", IsHibernated: true}})
	})
	mux.HandleFunc("POST /v1/tabs", func(w http.ResponseWriter, r *http.Request) {
		f.lastBody, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusCreated, models.TabView{ID: "t3", URL: "https://go.dev/"})
	})
	mux.HandleFunc("POST /v1/tabs/{id}/hibernate", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "t1" {
			http.Error(w, `{"error":"unknown tab"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, models.TabView{ID: "t1", IsHibernated: true})
	})
	mux.HandleFunc("DELETE /v1/tabs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v1/layout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.LayoutView{
			Items:       []string{"t1", "g1"},
			Groups:      []models.Group{{ID: "g1", Name: "Work", Tabs: []string{"t2"}, Collapsed: true}},
			ActiveTabID: "t1",
		})
	})
	mux.HandleFunc("PUT /v1/settings", func(w http.ResponseWriter, r *http.Request) {
		f.lastBody, _ = io.ReadAll(r.Body)
		s := models.DefaultSettings()
		s.HomePage = "https://start.example/"
		writeJSON(w, http.StatusOK, s)
	})
	mux.HandleFunc("GET /v1/session/backup", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":1}`))
	})
	mux.HandleFunc("POST /v1/session/restore", func(w http.ResponseWriter, r *http.Request) {
		f.lastBody, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, models.RestoreResponse{Restored: true, RestartRequired: true, Tabs: 4})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	flagJSON = false
	openBackground, openShared, openFrom = false, false, ""
	backupOutput = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--server", server}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestListPrintsTable(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "STATE")
	assert.Contains(t, out, "* ")
	assert.Contains(t, out, "https://example.com/")
	assert.Contains(t, out, "hibernated")
	assert.Equal(t, "tabctl", f.lastClient)
}

func TestListJSON(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "ls", "--json")
	require.NoError(t, err)

	var tabs []models.TabView
	require.NoError(t, json.Unmarshal([]byte(out), &tabs))
	assert.Len(t, tabs, 2)
}

func TestOpenSendsRequest(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "open", "--background", "--from", "t1", "go.dev")
	require.NoError(t, err)
	assert.Contains(t, out, "t3")

	var req models.CreateTabRequest
	require.NoError(t, json.Unmarshal(f.lastBody, &req))
	assert.Equal(t, "go.dev", req.URL)
	assert.Equal(t, "t1", req.FromTabID)
	assert.True(t, req.Background)
	assert.False(t, req.IsShared)
}

func TestActionReportsServerError(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "hibernate", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "hibernated")

	_, err = execute(t, f.URL, "hibernate", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "unknown tab")
}

func TestClose(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "close", "t1")
	require.NoError(t, err)
	assert.Equal(t, "closed t1\n", out)
}

func TestLayoutTree(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "layout")
	require.NoError(t, err)
	assert.Equal(t, "* t1\n  [Work] g1 (collapsed)\n      t2\n", out)
}

func TestSettingsSendsOnlyChangedFields(t *testing.T) {
	f := newFakeServer(t)

	out, err := execute(t, f.URL, "settings", "--home", "https://start.example/")
	require.NoError(t, err)
	assert.Contains(t, out, "https://start.example/")

	var patch map[string]any
	require.NoError(t, json.Unmarshal(f.lastBody, &patch))
	assert.Equal(t, map[string]any{"homePage": "https://start.example/"}, patch)
}

func TestBackupAndRestore(t *testing.T) {
	f := newFakeServer(t)
	path := filepath.Join(t.TempDir(), "backup.json")

	out, err := execute(t, f.URL, "backup", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(data))

	out, err = execute(t, f.URL, "restore", path)
	require.NoError(t, err)
	assert.Contains(t, out, "restored 4 tabs")
	assert.JSONEq(t, `{"version":1}`, string(f.lastBody))
}

func TestRestoreMissingFile(t *testing.T) {
	f := newFakeServer(t)

	_, err := execute(t, f.URL, "restore", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read backup")
}
