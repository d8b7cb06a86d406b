package models

import "time"

// BlankURL is the internal page a tab shows when it has nothing to load.
const BlankURL = "about:blank"

// MaxHistory bounds how many navigation entries a tab keeps.
const MaxHistory = 50

// HistoryEntry is one step of a tab's navigation history
type HistoryEntry struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Tab is one browsing context. Live engine resources are not part of the record;
// the lifecycle manager tracks them separately.
type Tab struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	Title        string         `json:"title"`
	Favicon      string         `json:"favicon,omitempty"`
	Color        string         `json:"color"`
	IsShared     bool           `json:"isShared"`
	ZoomFactor   float64        `json:"zoomFactor"`
	History      []HistoryEntry `json:"history"`
	HistoryIndex int            `json:"historyIndex"`
	CanGoBack    bool           `json:"canGoBack"`
	CanGoForward bool           `json:"canGoForward"`
	IsLoading    bool           `json:"isLoading"`
	IsLoaded     bool           `json:"isLoaded"`
	IsHibernated bool           `json:"isHibernated"`
	LoadError    string         `json:"loadError,omitempty"`
	LastActive   time.Time      `json:"lastActive"`
}

// Clone returns a deep copy of the tab
func (t *Tab) Clone() *Tab {
	c := *t
	c.History = append([]HistoryEntry(nil), t.History...)
	return &c
}

// SyncNavFlags recomputes canGoBack/canGoForward from the history index
func (t *Tab) SyncNavFlags() {
	t.CanGoBack = t.HistoryIndex > 0
	t.CanGoForward = t.HistoryIndex < len(t.History)-1
}

// PushHistory records a new navigation, dropping any forward entries and
// trimming the oldest entries beyond MaxHistory.
func (t *Tab) PushHistory(url string) {
	if len(t.History) > 0 && t.HistoryIndex < len(t.History) {
		t.History = t.History[:t.HistoryIndex+1]
	}
	t.History = append(t.History, HistoryEntry{URL: url})
	if over := len(t.History) - MaxHistory; over > 0 {
		t.History = append([]HistoryEntry(nil), t.History[over:]...)
	}
	t.HistoryIndex = len(t.History) - 1
	t.SyncNavFlags()
}

// TabView is the serializable projection handed to the presentation layer
type TabView struct {
	ID           string  `json:"id"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Favicon      string  `json:"favicon,omitempty"`
	Color        string  `json:"color"`
	IsShared     bool    `json:"isShared"`
	ZoomFactor   float64 `json:"zoomFactor"`
	CanGoBack    bool    `json:"canGoBack"`
	CanGoForward bool    `json:"canGoForward"`
	IsLoading    bool    `json:"isLoading"`
	IsLoaded     bool    `json:"isLoaded"`
	IsHibernated bool    `json:"isHibernated"`
	LoadError    string  `json:"loadError,omitempty"`
	GroupID      string  `json:"groupId,omitempty"`
	IsActive     bool    `json:"isActive"`
}

// View projects the tab for the presentation layer
func (t *Tab) View() TabView {
	return TabView{
		ID:           t.ID,
		URL:          t.URL,
		Title:        t.Title,
		Favicon:      t.Favicon,
		Color:        t.Color,
		IsShared:     t.IsShared,
		ZoomFactor:   t.ZoomFactor,
		CanGoBack:    t.CanGoBack,
		CanGoForward: t.CanGoForward,
		IsLoading:    t.IsLoading,
		IsLoaded:     t.IsLoaded,
		IsHibernated: t.IsHibernated,
		LoadError:    t.LoadError,
	}
}

// CreateTabRequest is the payload for opening a tab
type CreateTabRequest struct {
	URL        string  `json:"url"`
	FromTabID  string  `json:"fromTabId,omitempty"`
	IsShared   bool    `json:"isShared,omitempty"`
	ZoomFactor float64 `json:"zoomFactor,omitempty"`
	Background bool    `json:"background,omitempty"`
}

// NavigateRequest is the payload for loading a URL or search query
type NavigateRequest struct {
	URL string `json:"url"`
}

// ZoomRequest is the payload for changing a tab's zoom factor
type ZoomRequest struct {
	ZoomFactor float64 `json:"zoomFactor"`
}
