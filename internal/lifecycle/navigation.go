package lifecycle

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// Navigate loads input in the tab. Input that does not look like a URL is
// sent to the configured search engine. A hibernated tab is woken at the new
// URL.
func (m *Manager) Navigate(ctx context.Context, id, input string) {
	tab, ok := m.store.Tab(id)
	if !ok || m.busy[id] {
		return
	}
	target := m.resolveInput(input)
	tab.URL = target

	b := m.bindings[id]
	if b == nil {
		m.wake(ctx, tab, -1)
		return
	}
	b.expect = -1
	if err := b.surface.Navigate(target); err != nil {
		m.log.Warn("navigation failed", zap.String("tab", id), zap.Error(err))
		tab.LoadError = err.Error()
		tab.IsLoading = false
	}
	m.emitPatch(id, map[string]any{"url": target})
	m.save()
}

// GoBack moves one step back in the tab's history
func (m *Manager) GoBack(ctx context.Context, id string) {
	if tab, ok := m.store.Tab(id); ok {
		m.GoToIndex(ctx, id, tab.HistoryIndex-1)
	}
}

// GoForward moves one step forward in the tab's history
func (m *Manager) GoForward(ctx context.Context, id string) {
	if tab, ok := m.store.Tab(id); ok {
		m.GoToIndex(ctx, id, tab.HistoryIndex+1)
	}
}

// GoToIndex loads the history entry at index without adding a new entry.
// Out of range indexes are ignored.
func (m *Manager) GoToIndex(ctx context.Context, id string, index int) {
	tab, ok := m.store.Tab(id)
	if !ok || m.busy[id] || index < 0 || index >= len(tab.History) || index == tab.HistoryIndex {
		return
	}
	entry := tab.History[index]

	b := m.bindings[id]
	if b == nil {
		tab.HistoryIndex = index
		tab.URL = entry.URL
		tab.SyncNavFlags()
		m.wake(ctx, tab, index)
		return
	}
	b.expect = index
	if err := b.surface.Navigate(entry.URL); err != nil {
		m.log.Warn("history navigation failed", zap.String("tab", id), zap.Error(err))
		b.expect = -1
	}
}

// Reload reloads an awake tab and wakes a hibernated one
func (m *Manager) Reload(ctx context.Context, id string) {
	tab, ok := m.store.Tab(id)
	if !ok || m.busy[id] {
		return
	}
	b := m.bindings[id]
	if b == nil {
		m.Wake(ctx, id)
		return
	}
	if err := b.surface.Reload(); err != nil {
		m.log.Warn("reload failed", zap.String("tab", tab.ID), zap.Error(err))
	}
}

// SetZoom changes the tab's zoom factor, clamped to [MinZoom, MaxZoom]
func (m *Manager) SetZoom(id string, factor float64) {
	tab, ok := m.store.Tab(id)
	if !ok || factor <= 0 {
		return
	}
	tab.ZoomFactor = clampZoom(factor)
	if b := m.bindings[id]; b != nil {
		if err := b.surface.SetZoom(tab.ZoomFactor); err != nil {
			m.log.Warn("failed to set zoom", zap.String("tab", id), zap.Error(err))
		}
	}
	m.emitPatch(id, map[string]any{"zoomFactor": tab.ZoomFactor})
	m.save()
}

// resolveInput turns address bar input into a URL
func (m *Manager) resolveInput(input string) string {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return m.homePage()
	case hasScheme(input):
		return input
	case looksLikeHost(input):
		return "https://" + input
	}
	tmpl := m.settings.SearchEngine()
	if tmpl == "" {
		tmpl = models.DefaultSettings().SearchEngine
	}
	return strings.Replace(tmpl, "%s", url.QueryEscape(input), 1)
}

func hasScheme(s string) bool {
	if strings.Contains(s, "://") {
		return true
	}
	for _, p := range []string{"about:", "data:", "file:", "mailto:"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			return true
		}
	}
	return false
}

func looksLikeHost(s string) bool {
	if strings.ContainsAny(s, " \t") {
		return false
	}
	host := s
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return host == "localhost" || (strings.Contains(host, ".") && !strings.HasPrefix(host, ".") && !strings.HasSuffix(host, "."))
}

// isInternal reports whether u is one of the engine's own pages
func isInternal(u string) bool {
	l := strings.ToLower(u)
	return l == "" || strings.HasPrefix(l, "about:") || strings.HasPrefix(l, "chrome:") || strings.HasPrefix(l, "devtools:")
}
