package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/engine/memengine"
	"github.com/shehryarbajwa/tabhost/internal/lifecycle"
	"github.com/shehryarbajwa/tabhost/internal/loop"
	"github.com/shehryarbajwa/tabhost/internal/metrics"
	"github.com/shehryarbajwa/tabhost/internal/persist"
	"github.com/shehryarbajwa/tabhost/internal/ratelimit"
	"github.com/shehryarbajwa/tabhost/internal/settings"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	hub      *Hub
	sessions *persist.SessionStore
	writer   *persist.Coalescer[models.SessionDocument]
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	l := loop.New(256, log)
	go l.Run(ctx)

	m := metrics.New()
	hub := NewHub(16, m, log)
	sessions := persist.NewSessionStore(filepath.Join(t.TempDir(), "session.json"), log)
	writer := persist.NewCoalescer(time.Hour, sessions.Save, log)
	svc := settings.NewService(models.DefaultSettings(), nil)

	mgr := lifecycle.NewManager(lifecycle.Options{
		Engine:   memengine.New(l.Post),
		Settings: svc,
		Emitter:  hub,
		Saver:    writer,
		Metrics:  m,
		Logger:   log,
	})

	s := NewServer(Options{
		Manager:       mgr,
		Loop:          l,
		Hub:           hub,
		Sessions:      sessions,
		SessionWriter: writer,
		Settings:      svc,
		Metrics:       m,
		Limiter:       limiter,
		Logger:        log,
		Now:           func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	srv := httptest.NewServer(s.Router())

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		cancel()
		<-l.Done()
	})
	return &testServer{t: t, srv: srv, hub: hub, sessions: sessions, writer: writer}
}

func (ts *testServer) call(method, path string, body any) *http.Response {
	ts.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(ts.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) create(req models.CreateTabRequest) models.TabView {
	ts.t.Helper()
	resp := ts.call("POST", "/v1/tabs", req)
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	return decode[models.TabView](ts.t, resp)
}

func TestCreateAndListTabs(t *testing.T) {
	ts := newTestServer(t, nil)

	a := ts.create(models.CreateTabRequest{URL: "https://a.example/"})
	assert.NotEmpty(t, a.ID)
	assert.True(t, a.IsActive)
	assert.Equal(t, "https://a.example/", a.URL)

	b := ts.create(models.CreateTabRequest{URL: "https://b.example/", FromTabID: a.ID, Background: true})
	assert.False(t, b.IsActive)
	assert.Equal(t, a.Color, b.Color)

	resp := ts.call("GET", "/v1/tabs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	tabs := decode[[]models.TabView](t, resp)
	require.Len(t, tabs, 2)
	assert.Equal(t, a.ID, tabs[0].ID)
	assert.Equal(t, b.ID, tabs[1].ID)
}

func TestCreateTabWithEmptyBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.call("POST", "/v1/tabs", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tab := decode[models.TabView](t, resp)
	assert.Equal(t, models.BlankURL, tab.URL)

	resp = ts.call("POST", "/v1/tabs", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownTabIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, c := range []struct{ method, path string }{
		{"GET", "/v1/tabs/nope"},
		{"DELETE", "/v1/tabs/nope"},
		{"POST", "/v1/tabs/nope/activate"},
		{"POST", "/v1/tabs/nope/hibernate"},
		{"POST", "/v1/tabs/nope/history/0"},
	} {
		resp := ts.call(c.method, c.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, c.path)
	}
}

func TestCloseTab(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.create(models.CreateTabRequest{URL: "https://a.example/"})
	ts.create(models.CreateTabRequest{URL: "https://b.example/"})

	resp := ts.call("DELETE", "/v1/tabs/"+a.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	tabs := decode[[]models.TabView](t, ts.call("GET", "/v1/tabs", nil))
	require.Len(t, tabs, 1)
	assert.True(t, tabs[0].IsActive)
}

func TestHibernateWakeAndNavigate(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(models.CreateTabRequest{URL: "https://a.example/"})
	b := ts.create(models.CreateTabRequest{URL: "https://b.example/", Background: true})

	view := decode[models.TabView](t, ts.call("POST", "/v1/tabs/"+b.ID+"/hibernate", nil))
	assert.True(t, view.IsHibernated)

	view = decode[models.TabView](t, ts.call("POST", "/v1/tabs/"+b.ID+"/wake", nil))
	assert.False(t, view.IsHibernated)

	view = decode[models.TabView](t, ts.call("POST", "/v1/tabs/"+b.ID+"/navigate", models.NavigateRequest{URL: "c.example"}))
	assert.Equal(t, "https://c.example", view.URL)

	resp := ts.call("PUT", "/v1/tabs/"+b.ID+"/zoom", models.ZoomRequest{ZoomFactor: 9})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, lifecycle.MaxZoom, decode[models.TabView](t, resp).ZoomFactor)

	resp = ts.call("PUT", "/v1/tabs/"+b.ID+"/zoom", models.ZoomRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGroupsAndLayout(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.create(models.CreateTabRequest{URL: "https://a.example/"})
	b := ts.create(models.CreateTabRequest{URL: "https://b.example/"})

	resp := ts.call("POST", "/v1/groups", models.CreateGroupRequest{SeedTabID: a.ID, Name: "work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	group := decode[models.Group](t, resp)
	assert.Equal(t, "work", group.Name)
	assert.Equal(t, a.Color, group.Color)
	assert.Equal(t, []string{a.ID}, group.Tabs)

	resp = ts.call("POST", "/v1/layout/move", models.MoveRequest{TabID: b.ID, GroupID: group.ID, Index: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	layout := decode[models.LayoutView](t, resp)
	assert.Equal(t, []string{group.ID}, layout.Items)
	require.Len(t, layout.Groups, 1)
	assert.Equal(t, []string{a.ID, b.ID}, layout.Groups[0].Tabs)

	collapsed := true
	resp = ts.call("PATCH", "/v1/groups/"+group.ID, models.GroupPatch{Collapsed: &collapsed})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Group](t, resp).Collapsed)

	view := decode[models.TabView](t, ts.call("POST", "/v1/tabs/"+b.ID+"/ungroup", nil))
	assert.Empty(t, view.GroupID)

	layout = decode[models.LayoutView](t, ts.call("DELETE", "/v1/groups/"+group.ID, nil))
	assert.Equal(t, []string{a.ID, b.ID}, layout.Items)
	assert.Empty(t, layout.Groups)

	assert.Equal(t, http.StatusNotFound, ts.call("DELETE", "/v1/groups/"+group.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.call("POST", "/v1/layout/move", models.MoveRequest{TabID: a.ID, GroupID: "g-missing"}).StatusCode)
}

func TestUpdateLayoutNormalizes(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.create(models.CreateTabRequest{URL: "https://a.example/"})
	b := ts.create(models.CreateTabRequest{URL: "https://b.example/"})

	resp := ts.call("PUT", "/v1/layout", models.LayoutView{Items: []string{b.ID, "ghost"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	layout := decode[models.LayoutView](t, resp)
	assert.Equal(t, []string{b.ID, a.ID}, layout.Items)
	assert.Equal(t, b.ID, layout.ActiveTabID)
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t, nil)

	search := "https://search.example/?q=%s"
	resp := ts.call("PUT", "/v1/settings", models.SettingsPatch{SearchEngine: &search})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, search, decode[models.Settings](t, resp).SearchEngine)

	got := decode[models.Settings](t, ts.call("GET", "/v1/settings", nil))
	assert.Equal(t, search, got.SearchEngine)

	resp = ts.call("PUT", "/v1/settings", models.SettingsPatch{Proxy: &models.ProxySettings{Mode: "carrier-pigeon"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.call("PUT", "/v1/settings", models.SettingsPatch{
		Identity: &models.IdentitySettings{Profile: "firefox-windows"},
		Proxy:    &models.ProxySettings{Mode: models.ProxyFixed, Rules: "http://10.0.0.1:3128"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[models.Settings](t, resp)
	assert.Equal(t, "firefox-windows", got.Identity.Profile)
	assert.Equal(t, models.ProxyFixed, got.Proxy.Mode)
}

func TestBackupAndRestore(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(models.CreateTabRequest{URL: "https://a.example/"})

	resp := ts.call("GET", "/v1/session/backup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="tabhost-backup-20260102-030405.json"`, resp.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var backup models.Backup
	require.NoError(t, json.Unmarshal(data, &backup))
	assert.Equal(t, models.BackupVersion, backup.Version)
	require.Len(t, backup.Session.Tabs, 1)

	resp = ts.call("POST", "/v1/session/restore", string(data))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.RestoreResponse{Restored: true, RestartRequired: true, Tabs: 1}, decode[models.RestoreResponse](t, resp))

	// live changes no longer reach the restored document
	ts.create(models.CreateTabRequest{URL: "https://b.example/"})

	resp = ts.call("POST", "/v1/session/restore", `{"version":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "session")

	doc, err := ts.sessions.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Tabs, 1)
}

func TestFailedRestoreKeepsSavingLiveSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(models.CreateTabRequest{URL: "https://a.example/"})

	resp := ts.call("GET", "/v1/session/backup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// a directory in the way of the temp file makes the write fail
	require.NoError(t, os.Mkdir(ts.sessions.TempPath(), 0o755))
	resp = ts.call("POST", "/v1/session/restore", string(data))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NoError(t, os.Remove(ts.sessions.TempPath()))

	b := ts.create(models.CreateTabRequest{URL: "https://b.example/"})
	require.NoError(t, ts.writer.Stop())

	doc, err := ts.sessions.Load()
	require.NoError(t, err)
	require.Len(t, doc.Tabs, 2)
	ids := []string{doc.Tabs[0].ID, doc.Tabs[1].ID}
	assert.Contains(t, ids, b.ID)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, ratelimit.NewLimiter(0.001, 2))

	for i := 0; i < 2; i++ {
		resp := ts.call("GET", "/v1/tabs", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}
	resp := ts.call("GET", "/v1/tabs", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// another client has its own budget
	req, err := http.NewRequest("GET", ts.srv.URL+"/v1/tabs", nil)
	require.NoError(t, err)
	req.Header.Set("X-Client-ID", "other")
	other, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer other.Body.Close()
	assert.Equal(t, http.StatusOK, other.StatusCode)
}

func TestCORSAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.call("OPTIONS", "/v1/tabs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = ts.call("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(models.CreateTabRequest{URL: "https://a.example/"})

	resp := ts.call("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tabhost_tabs 1")
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	tab := ts.create(models.CreateTabRequest{URL: "https://a.example/"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	seen := map[models.EventType]bool{}
	for !seen[models.EventTabCreated] || !seen[models.EventTabSwitched] {
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, tab.ID, ev.TabID)
		seen[ev.Type] = true
	}

	conn.Close()
	assert.Eventually(t, func() bool { return ts.hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsEventsForSlowClients(t *testing.T) {
	m := metrics.New()
	hub := NewHub(1, m, zap.NewNop())
	c := &client{id: "slow", send: make(chan models.Event, 1)}
	hub.register(c)

	hub.Emit(models.Event{Type: models.EventTabUpdated, TabID: "a"})
	hub.Emit(models.Event{Type: models.EventTabUpdated, TabID: "b"})

	assert.Equal(t, "a", (<-c.send).TabID)
	assert.Empty(t, c.send)
	hub.unregister(c)
	assert.Zero(t, hub.Clients())
}
