package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// observer receives the callbacks of one surface of one tab. A callback whose
// surface is no longer the tab's bound surface is dropped.
type observer struct {
	m     *Manager
	tabID string
}

func (o *observer) current(s engine.Surface) (*models.Tab, *binding, bool) {
	b := o.m.bindings[o.tabID]
	if b == nil || b.surface != s {
		o.m.log.Debug("stale surface callback dropped",
			zap.String("tab", o.tabID),
			zap.String("surface", s.ID()))
		return nil, nil, false
	}
	tab, ok := o.m.store.Tab(o.tabID)
	return tab, b, ok
}

func (o *observer) OnLoadStart(s engine.Surface) {
	tab, _, ok := o.current(s)
	if !ok {
		return
	}
	tab.IsLoading = true
	tab.LoadError = ""
	o.m.emitPatch(tab.ID, map[string]any{
		"isLoading": true,
		"loadError": "",
	})
}

func (o *observer) OnLoadEnd(s engine.Surface, err error) {
	tab, b, ok := o.current(s)
	if !ok {
		return
	}
	tab.IsLoading = false
	if err != nil {
		b.expect = -1
		tab.IsLoaded = false
		tab.LoadError = err.Error()
		o.m.metrics.LoadFailed()
		o.m.log.Warn("page load failed", zap.String("tab", tab.ID), zap.String("url", tab.URL), zap.Error(err))
	} else {
		tab.IsLoaded = true
		tab.LoadError = ""
	}
	o.m.emitPatch(tab.ID, map[string]any{
		"isLoading": false,
		"isLoaded":  tab.IsLoaded,
		"loadError": tab.LoadError,
	})
	o.m.save()
}

func (o *observer) OnTitleChanged(s engine.Surface, title string) {
	tab, _, ok := o.current(s)
	if !ok {
		return
	}
	tab.Title = title
	if tab.HistoryIndex < len(tab.History) {
		tab.History[tab.HistoryIndex].Title = title
	}
	o.m.emitPatch(tab.ID, map[string]any{"title": title})
	o.m.save()
}

func (o *observer) OnNavigated(s engine.Surface, url string) {
	tab, b, ok := o.current(s)
	if !ok {
		return
	}
	switch {
	case b.expect >= 0 && b.expect < len(tab.History):
		tab.HistoryIndex = b.expect
		tab.History[b.expect].URL = url
		tab.SyncNavFlags()
	case len(tab.History) > 0 && tab.History[tab.HistoryIndex].URL == url:
		// same entry, e.g. a redirect back or a reload
	default:
		tab.PushHistory(url)
	}
	b.expect = -1
	tab.URL = url
	o.m.emitPatch(tab.ID, map[string]any{
		"url":          url,
		"canGoBack":    tab.CanGoBack,
		"canGoForward": tab.CanGoForward,
	})
	o.m.save()
}

func (o *observer) OnNewWindowRequest(s engine.Surface, url string) {
	tab, _, ok := o.current(s)
	if !ok {
		return
	}
	o.m.Open(context.Background(), url, CreateOptions{
		FromTabID: tab.ID,
		IsShared:  tab.IsShared,
	}, true)
}

func (o *observer) OnContextMenu(s engine.Surface, menu models.ContextMenu) {
	tab, _, ok := o.current(s)
	if !ok {
		return
	}
	o.m.emit(models.Event{
		Type:  models.EventContextMenu,
		TabID: tab.ID,
		Menu:  &menu,
	})
}
