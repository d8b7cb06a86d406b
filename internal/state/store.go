// Package state holds the process-wide registry of tabs, groups, layout and the
// active tab. A Store is owned by the control loop; it takes no locks.
package state

import (
	"github.com/shehryarbajwa/tabhost/internal/layout"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// Store is the single source of truth for tab records and their arrangement
type Store struct {
	tabs     map[string]*models.Tab
	Layout   *layout.Model
	ActiveID string
}

// New creates an empty store
func New() *Store {
	return &Store{
		tabs:   make(map[string]*models.Tab),
		Layout: layout.New(),
	}
}

// Add registers a tab record; placement in the layout is the caller's job
func (s *Store) Add(tab *models.Tab) {
	s.tabs[tab.ID] = tab
}

// Tab looks up a tab record
func (s *Store) Tab(id string) (*models.Tab, bool) {
	t, ok := s.tabs[id]
	return t, ok
}

// Len returns the number of tabs
func (s *Store) Len() int {
	return len(s.tabs)
}

// Remove deletes a tab from the registry and the layout
func (s *Store) Remove(id string) bool {
	if _, ok := s.tabs[id]; !ok {
		return false
	}
	delete(s.tabs, id)
	s.Layout.Remove(id)
	if s.ActiveID == id {
		s.ActiveID = ""
	}
	return true
}

// IDs returns tab ids in layout order, followed by any unplaced tabs
func (s *Store) IDs() []string {
	ids := s.Layout.TabIDs()
	if len(ids) == len(s.tabs) {
		return ids
	}
	placed := make(map[string]bool, len(ids))
	for _, id := range ids {
		placed[id] = true
	}
	for id := range s.tabs {
		if !placed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Tabs returns the live tab records in layout order
func (s *Store) Tabs() []*models.Tab {
	ids := s.IDs()
	tabs := make([]*models.Tab, 0, len(ids))
	for _, id := range ids {
		tabs = append(tabs, s.tabs[id])
	}
	return tabs
}

// ResetLayout discards the arrangement, e.g. when the last tab closes
func (s *Store) ResetLayout() {
	s.Layout = layout.New()
}

// View returns the projection of one tab, annotated with its group and activity
func (s *Store) View(id string) (models.TabView, bool) {
	t, ok := s.tabs[id]
	if !ok {
		return models.TabView{}, false
	}
	v := t.View()
	v.GroupID = s.Layout.GroupOf(id)
	v.IsActive = id == s.ActiveID
	return v, true
}

// Views returns the projections of all tabs in layout order
func (s *Store) Views() []models.TabView {
	ids := s.IDs()
	views := make([]models.TabView, 0, len(ids))
	for _, id := range ids {
		v, _ := s.View(id)
		views = append(views, v)
	}
	return views
}

// LayoutView returns the arrangement for the presentation layer
func (s *Store) LayoutView() *models.LayoutView {
	return &models.LayoutView{
		Items:       s.Layout.Items(),
		Groups:      s.Layout.Groups(),
		ActiveTabID: s.ActiveID,
	}
}

// Snapshot projects the store into a session document
func (s *Store) Snapshot() models.SessionDocument {
	tabs := s.Tabs()
	doc := models.SessionDocument{
		Tabs:        make([]models.Tab, 0, len(tabs)),
		Groups:      s.Layout.Groups(),
		Layout:      s.Layout.Items(),
		ActiveTabID: s.ActiveID,
	}
	for _, t := range tabs {
		doc.Tabs = append(doc.Tabs, *t.Clone())
	}
	return doc
}

// Load replaces the store's contents with a session document. Every tab comes
// back hibernated; the layout is repaired against the loaded tabs.
func (s *Store) Load(doc models.SessionDocument) {
	s.tabs = make(map[string]*models.Tab, len(doc.Tabs))
	ids := make([]string, 0, len(doc.Tabs))
	for i := range doc.Tabs {
		t := doc.Tabs[i].Clone()
		if t.ID == "" || s.tabs[t.ID] != nil {
			continue
		}
		t.IsHibernated = true
		t.IsLoading = false
		if t.HistoryIndex >= len(t.History) {
			t.HistoryIndex = len(t.History) - 1
		}
		if t.HistoryIndex < 0 {
			t.HistoryIndex = 0
		}
		t.SyncNavFlags()
		s.tabs[t.ID] = t
		ids = append(ids, t.ID)
	}

	s.Layout = layout.New()
	s.Layout.Replace(doc.Layout, doc.Groups, ids)

	s.ActiveID = ""
	if _, ok := s.tabs[doc.ActiveTabID]; ok {
		s.ActiveID = doc.ActiveTabID
	}
}
