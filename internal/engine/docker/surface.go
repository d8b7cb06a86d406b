package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/cdp"
	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// ErrDestroyed is returned by operations on a destroyed surface
var ErrDestroyed = errors.New("surface destroyed")

const (
	callTimeout = 30 * time.Second

	contextMenuBinding = "__tabhostContextMenu"
	contextMenuScript  = `document.addEventListener('contextmenu', function (e) {
  var t = e.target, a = t.closest ? t.closest('a') : null;
  window.` + contextMenuBinding + `(JSON.stringify({
    x: e.clientX, y: e.clientY,
    linkUrl: a ? a.href : '',
    srcUrl: t.src || '',
    selectionText: String(window.getSelection()),
    isEditable: !!t.isContentEditable || t.tagName === 'INPUT' || t.tagName === 'TEXTAREA'
  }));
}, true);`
)

// Surface is one page in one browser container
type Surface struct {
	id          string
	engine      *Engine
	partition   *Partition
	obs         engine.Observer
	dispatch    engine.Dispatcher
	log         *zap.Logger
	containerID string
	cdp         *cdp.Client

	mu        sync.Mutex
	targetID  string
	sessionID string
	title     string
	errorPage bool
	destroyed bool
}

// ID returns the surface handle id
func (s *Surface) ID() string { return s.id }

// open creates the page target and prepares it for use
func (s *Surface) open(ctx context.Context) error {
	if _, err := s.cdp.Call(ctx, "", "Target.setDiscoverTargets", map[string]any{"discover": true}); err != nil {
		return err
	}
	res, err := s.cdp.Call(ctx, "", "Target.createTarget", map[string]any{"url": models.BlankURL})
	if err != nil {
		return err
	}
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(res, &created); err != nil {
		return fmt.Errorf("failed to decode target: %w", err)
	}
	res, err = s.cdp.Call(ctx, "", "Target.attachToTarget", map[string]any{"targetId": created.TargetID, "flatten": true})
	if err != nil {
		return err
	}
	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(res, &attached); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}

	s.mu.Lock()
	s.targetID = created.TargetID
	s.sessionID = attached.SessionID
	s.mu.Unlock()

	for _, step := range []struct {
		method string
		params any
	}{
		{"Page.enable", nil},
		{"Network.enable", nil},
		{"Runtime.enable", nil},
		{"Runtime.addBinding", map[string]any{"name": contextMenuBinding}},
		{"Page.addScriptToEvaluateOnNewDocument", map[string]any{"source": contextMenuScript}},
	} {
		if _, err := s.cdp.Call(ctx, attached.SessionID, step.method, step.params); err != nil {
			return err
		}
	}
	return s.pushHeaders(ctx)
}

// Navigate starts loading url; the outcome arrives as observer callbacks
func (s *Surface) Navigate(url string) error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		res, err := s.cdp.Call(ctx, s.session(), "Page.navigate", map[string]any{"url": url})
		if err == nil {
			var nav struct {
				ErrorText string `json:"errorText"`
			}
			if jerr := json.Unmarshal(res, &nav); jerr == nil && nav.ErrorText != "" {
				err = fmt.Errorf("%s loading %s", nav.ErrorText, url)
			}
		}
		if err != nil && !s.isDestroyed() {
			s.dispatch(func() { s.obs.OnLoadEnd(s, err) })
		}
	}()
	return nil
}

// Reload reloads the current page
func (s *Surface) Reload() error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	s.async("Page.reload", map[string]any{"ignoreCache": false})
	return nil
}

// SetZoom changes the page scale factor
func (s *Surface) SetZoom(factor float64) error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	s.async("Emulation.setPageScaleFactor", map[string]any{"pageScaleFactor": factor})
	return nil
}

// Destroy closes the page connection and removes the container
func (s *Surface) Destroy() {
	if !s.release() {
		return
	}
	s.engine.forget(s)
	s.engine.remove(s.containerID)
}

// release marks the surface destroyed and closes its connection. It reports
// whether this call did the release.
func (s *Surface) release() bool {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false
	}
	s.destroyed = true
	s.mu.Unlock()

	s.partition.detach(s)
	if s.cdp != nil {
		// the reader may be blocked handing an event to the loop that called us
		go func() {
			if err := s.cdp.Close(); err != nil {
				s.log.Debug("devtools connection closed with error", zap.String("surface", s.id), zap.Error(err))
			}
		}()
	}
	return true
}

func (s *Surface) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Surface) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// async issues a page command without waiting on the caller's goroutine
func (s *Surface) async(method string, params any) {
	if s.cdp == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if _, err := s.cdp.Call(ctx, s.session(), method, params); err != nil && !s.isDestroyed() {
			s.log.Warn("devtools call failed", zap.String("surface", s.id), zap.String("method", method), zap.Error(err))
		}
	}()
}

// applyHeaders re-sends the partition's header overrides in the background
func (s *Surface) applyHeaders() {
	if s.isDestroyed() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if err := s.pushHeaders(ctx); err != nil && !s.isDestroyed() {
			s.log.Warn("failed to apply identity", zap.String("surface", s.id), zap.Error(err))
		}
	}()
}

// pushHeaders installs the user agent override and extra headers. An
// override without metadata keeps the browser from sending its own client
// hints; the hints the identity wants come back as extra headers.
func (s *Surface) pushHeaders(ctx context.Context) error {
	ua, extra := s.partition.overrides()
	session := s.session()
	if ua != "" {
		if _, err := s.cdp.Call(ctx, session, "Network.setUserAgentOverride", map[string]any{"userAgent": ua}); err != nil {
			return err
		}
	}
	_, err := s.cdp.Call(ctx, session, "Network.setExtraHTTPHeaders", map[string]any{"headers": extra})
	return err
}

// handleEvent maps devtools events of this surface's page to observer
// callbacks. It runs on the connection's reader goroutine.
func (s *Surface) handleEvent(ev cdp.Event) {
	s.mu.Lock()
	targetID, sessionID, destroyed := s.targetID, s.sessionID, s.destroyed
	s.mu.Unlock()
	if destroyed || targetID == "" {
		return
	}
	if ev.SessionID != "" && ev.SessionID != sessionID {
		return
	}

	switch ev.Method {
	case "Page.frameStartedLoading":
		var p struct {
			FrameID string `json:"frameId"`
		}
		if json.Unmarshal(ev.Params, &p) == nil && p.FrameID == targetID {
			s.dispatch(func() { s.obs.OnLoadStart(s) })
		}

	case "Page.frameNavigated":
		var p struct {
			Frame struct {
				ID       string `json:"id"`
				ParentID string `json:"parentId"`
				URL      string `json:"url"`
			} `json:"frame"`
		}
		if json.Unmarshal(ev.Params, &p) != nil || p.Frame.ParentID != "" {
			return
		}
		errorPage := strings.HasPrefix(p.Frame.URL, "chrome-error://")
		s.mu.Lock()
		s.errorPage = errorPage
		s.mu.Unlock()
		if !errorPage {
			url := p.Frame.URL
			s.dispatch(func() { s.obs.OnNavigated(s, url) })
		}

	case "Page.navigatedWithinDocument":
		var p struct {
			FrameID string `json:"frameId"`
			URL     string `json:"url"`
		}
		if json.Unmarshal(ev.Params, &p) == nil && p.FrameID == targetID {
			s.dispatch(func() { s.obs.OnNavigated(s, p.URL) })
		}

	case "Page.loadEventFired":
		s.mu.Lock()
		errorPage := s.errorPage
		s.mu.Unlock()
		if !errorPage {
			s.dispatch(func() { s.obs.OnLoadEnd(s, nil) })
		}

	case "Target.targetInfoChanged":
		var p struct {
			TargetInfo struct {
				TargetID string `json:"targetId"`
				Title    string `json:"title"`
			} `json:"targetInfo"`
		}
		if json.Unmarshal(ev.Params, &p) != nil || p.TargetInfo.TargetID != targetID {
			return
		}
		s.mu.Lock()
		changed := p.TargetInfo.Title != s.title
		s.title = p.TargetInfo.Title
		s.mu.Unlock()
		if changed {
			title := p.TargetInfo.Title
			s.dispatch(func() { s.obs.OnTitleChanged(s, title) })
		}

	case "Target.targetCreated":
		var p struct {
			TargetInfo struct {
				TargetID string `json:"targetId"`
				OpenerID string `json:"openerId"`
				Type     string `json:"type"`
				URL      string `json:"url"`
			} `json:"targetInfo"`
		}
		if json.Unmarshal(ev.Params, &p) != nil || p.TargetInfo.OpenerID != targetID || p.TargetInfo.Type != "page" {
			return
		}
		url := p.TargetInfo.URL
		s.dispatch(func() { s.obs.OnNewWindowRequest(s, url) })
		// the popup becomes a tab of its own
		s.asyncBrowser("Target.closeTarget", map[string]any{"targetId": p.TargetInfo.TargetID})

	case "Runtime.bindingCalled":
		var p struct {
			Name    string `json:"name"`
			Payload string `json:"payload"`
		}
		if json.Unmarshal(ev.Params, &p) != nil || p.Name != contextMenuBinding {
			return
		}
		var menu models.ContextMenu
		if err := json.Unmarshal([]byte(p.Payload), &menu); err != nil {
			s.log.Debug("bad context menu payload", zap.String("surface", s.id), zap.Error(err))
			return
		}
		s.dispatch(func() { s.obs.OnContextMenu(s, menu) })
	}
}

// asyncBrowser issues a browser-level command in the background
func (s *Surface) asyncBrowser(method string, params any) {
	if s.cdp == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if _, err := s.cdp.Call(ctx, "", method, params); err != nil && !s.isDestroyed() {
			s.log.Warn("devtools call failed", zap.String("surface", s.id), zap.String("method", method), zap.Error(err))
		}
	}()
}
