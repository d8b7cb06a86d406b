package docker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/cdp"
	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/internal/identity"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

func TestHeaderOverrides(t *testing.T) {
	ua, extra := headerOverrides(nil)
	assert.Empty(t, ua)
	assert.Empty(t, extra)

	chrome := identity.Resolve(models.IdentitySettings{Profile: "chrome-macos"})
	ua, extra = headerOverrides(chrome.Rewrite)
	assert.Equal(t, chrome.UserAgent, ua)
	assert.Equal(t, chrome.HintHeaders().Get("Sec-CH-UA"), extra["Sec-Ch-Ua"])
	assert.Equal(t, `"macOS"`, extra["Sec-Ch-Ua-Platform"])

	firefox := identity.Resolve(models.IdentitySettings{Profile: "firefox-windows"})
	ua, extra = headerOverrides(firefox.Rewrite)
	assert.Equal(t, firefox.UserAgent, ua)
	assert.Empty(t, extra)
}

func TestLaunchQuery(t *testing.T) {
	cases := []struct {
		proxy engine.ProxyConfig
		want  url.Values
	}{
		{
			proxy: engine.ProxyConfig{Mode: models.ProxySystem},
			want:  url.Values{"--user-data-dir": {"/data"}},
		},
		{
			proxy: engine.ProxyConfig{Mode: models.ProxyDirect},
			want:  url.Values{"--user-data-dir": {"/data"}, "--no-proxy-server": {""}},
		},
		{
			proxy: engine.ProxyConfig{Mode: models.ProxyFixed, Rules: "socks5://10.0.0.1:1080", Bypass: "<local>"},
			want: url.Values{
				"--user-data-dir":     {"/data"},
				"--proxy-server":      {"socks5://10.0.0.1:1080"},
				"--proxy-bypass-list": {"<local>"},
			},
		},
		{
			proxy: engine.ProxyConfig{Mode: models.ProxyPAC, Rules: "http://wpad/proxy.pac"},
			want:  url.Values{"--user-data-dir": {"/data"}, "--proxy-pac-url": {"http://wpad/proxy.pac"}},
		},
	}
	for _, tc := range cases {
		got, err := url.ParseQuery(launchQuery(tc.proxy).Encode())
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.proxy.Mode)
	}
}

func TestClearDirKeepsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "isolated_abc")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Default", "Cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Default", "Cookies"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Local State"), []byte("{}"), 0o600))

	require.NoError(t, clearDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	missing := filepath.Join(t.TempDir(), "never")
	require.NoError(t, clearDir(missing))
	assert.DirExists(t, missing)
}

func TestDropPartitionForgetsKey(t *testing.T) {
	e := &Engine{
		opts:       Options{DataDir: t.TempDir()},
		log:        zap.NewNop(),
		partitions: make(map[engine.PartitionKey]*Partition),
	}
	a := engine.KeyFor("a", false)
	first := e.Partition(a)
	e.Partition(engine.SharedPartition)

	e.DropPartition(a)
	e.DropPartition(engine.KeyFor("missing", false))
	parts := e.Partitions()
	require.Len(t, parts, 1)
	assert.Equal(t, engine.SharedPartition, parts[0].Key())

	assert.NotSame(t, first, e.Partition(a))
}

func TestWaitReadyRetriesUntilBrowserAnswers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"Browser":"HeadlessChrome"}`))
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	e := &Engine{opts: Options{ReadyTimeout: 10 * time.Second}}
	require.NoError(t, e.waitReady(context.Background(), u.Port()))
	assert.EqualValues(t, 3, calls.Load())
}

func TestWaitReadyGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	e := &Engine{opts: Options{ReadyTimeout: 300 * time.Millisecond}}
	assert.Error(t, e.waitReady(context.Background(), u.Port()))
}

type recorded struct {
	calls []string
	urls  []string
	title string
	menu  models.ContextMenu
	err   error
}

func (r *recorded) OnLoadStart(engine.Surface) { r.calls = append(r.calls, "start") }
func (r *recorded) OnLoadEnd(_ engine.Surface, err error) {
	r.calls = append(r.calls, "end")
	r.err = err
}
func (r *recorded) OnTitleChanged(_ engine.Surface, title string) {
	r.calls = append(r.calls, "title")
	r.title = title
}
func (r *recorded) OnNavigated(_ engine.Surface, url string) {
	r.calls = append(r.calls, "navigated")
	r.urls = append(r.urls, url)
}
func (r *recorded) OnNewWindowRequest(_ engine.Surface, url string) {
	r.calls = append(r.calls, "window")
	r.urls = append(r.urls, url)
}
func (r *recorded) OnContextMenu(_ engine.Surface, menu models.ContextMenu) {
	r.calls = append(r.calls, "menu")
	r.menu = menu
}

func testSurface(obs engine.Observer) *Surface {
	return &Surface{
		id:        "s1",
		partition: &Partition{surfaces: make(map[*Surface]struct{})},
		obs:       obs,
		dispatch:  func(fn func()) { fn() },
		log:       zap.NewNop(),
		targetID:  "T1",
		sessionID: "S1",
	}
}

func event(session, method, params string) cdp.Event {
	return cdp.Event{SessionID: session, Method: method, Params: json.RawMessage(params)}
}

func TestHandleEventMapsPageLifecycle(t *testing.T) {
	rec := &recorded{}
	s := testSurface(rec)

	s.handleEvent(event("S1", "Page.frameStartedLoading", `{"frameId":"T1"}`))
	s.handleEvent(event("S1", "Page.frameStartedLoading", `{"frameId":"child"}`))
	s.handleEvent(event("S1", "Page.frameNavigated", `{"frame":{"id":"T1","url":"https://a.example/"}}`))
	s.handleEvent(event("S1", "Page.frameNavigated", `{"frame":{"id":"F2","parentId":"T1","url":"https://ads.example/"}}`))
	s.handleEvent(event("", "Target.targetInfoChanged", `{"targetInfo":{"targetId":"T1","title":"A"}}`))
	s.handleEvent(event("", "Target.targetInfoChanged", `{"targetInfo":{"targetId":"T1","title":"A"}}`))
	s.handleEvent(event("S1", "Page.loadEventFired", `{"timestamp":1}`))
	s.handleEvent(event("S2", "Page.loadEventFired", `{"timestamp":1}`))

	assert.Equal(t, []string{"start", "navigated", "title", "end"}, rec.calls)
	assert.Equal(t, []string{"https://a.example/"}, rec.urls)
	assert.Equal(t, "A", rec.title)
	assert.NoError(t, rec.err)
}

func TestHandleEventSkipsErrorPageLoad(t *testing.T) {
	rec := &recorded{}
	s := testSurface(rec)

	s.handleEvent(event("S1", "Page.frameNavigated", `{"frame":{"id":"T1","url":"chrome-error://chromewebdata/"}}`))
	s.handleEvent(event("S1", "Page.loadEventFired", `{}`))
	assert.Empty(t, rec.calls)

	s.handleEvent(event("S1", "Page.frameNavigated", `{"frame":{"id":"T1","url":"https://b.example/"}}`))
	s.handleEvent(event("S1", "Page.loadEventFired", `{}`))
	assert.Equal(t, []string{"navigated", "end"}, rec.calls)
}

func TestHandleEventPopupsAndMenus(t *testing.T) {
	rec := &recorded{}
	s := testSurface(rec)

	s.handleEvent(event("", "Target.targetCreated", `{"targetInfo":{"targetId":"T9","openerId":"T1","type":"page","url":"https://popup.example/"}}`))
	s.handleEvent(event("", "Target.targetCreated", `{"targetInfo":{"targetId":"T8","type":"page","url":"about:blank"}}`))
	s.handleEvent(event("S1", "Runtime.bindingCalled", `{"name":"`+contextMenuBinding+`","payload":"{\"x\":5,\"y\":6,\"linkUrl\":\"https://l.example/\",\"isEditable\":false}"}`))
	s.handleEvent(event("S1", "Runtime.bindingCalled", `{"name":"other","payload":"{}"}`))

	assert.Equal(t, []string{"window", "menu"}, rec.calls)
	assert.Equal(t, []string{"https://popup.example/"}, rec.urls)
	assert.Equal(t, models.ContextMenu{X: 5, Y: 6, LinkURL: "https://l.example/"}, rec.menu)
}

func TestDestroyedSurfaceIgnoresEvents(t *testing.T) {
	rec := &recorded{}
	s := testSurface(rec)
	s.destroyed = true

	s.handleEvent(event("S1", "Page.loadEventFired", `{}`))

	assert.Empty(t, rec.calls)
	assert.ErrorIs(t, s.Navigate("https://a.example/"), ErrDestroyed)
	assert.True(t, errors.Is(s.Reload(), ErrDestroyed))
}
