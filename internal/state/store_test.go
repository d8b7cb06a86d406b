package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

func add(s *Store, id string) *models.Tab {
	t := &models.Tab{ID: id, URL: "https://" + id + ".example/", ZoomFactor: 1}
	s.Add(t)
	s.Layout.Append(id)
	return t
}

func TestStoreRemoveClearsActive(t *testing.T) {
	s := New()
	add(s, "a")
	add(s, "b")
	s.ActiveID = "a"

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Empty(t, s.ActiveID)
	assert.Equal(t, []string{"b"}, s.IDs())
	assert.Equal(t, 1, s.Len())
}

func TestStoreIDsIncludeUnplacedTabs(t *testing.T) {
	s := New()
	add(s, "a")
	s.Add(&models.Tab{ID: "loose"})

	assert.Equal(t, []string{"a", "loose"}, s.IDs())
	assert.Len(t, s.Tabs(), 2)
}

func TestStoreViewAnnotatesGroupAndActivity(t *testing.T) {
	s := New()
	add(s, "a")
	add(s, "b")
	gid := s.Layout.CreateGroup("b", "g", "#fff")
	s.ActiveID = "b"

	v, ok := s.View("b")
	require.True(t, ok)
	assert.Equal(t, gid, v.GroupID)
	assert.True(t, v.IsActive)

	v, _ = s.View("a")
	assert.Empty(t, v.GroupID)
	assert.False(t, v.IsActive)

	_, ok = s.View("missing")
	assert.False(t, ok)
}

func TestStoreSnapshotIsDetached(t *testing.T) {
	s := New()
	tab := add(s, "a")
	tab.PushHistory(tab.URL)

	doc := s.Snapshot()
	doc.Tabs[0].History[0].URL = "changed"
	doc.Tabs[0].Title = "changed"

	assert.Equal(t, "https://a.example/", tab.History[0].URL)
	assert.Empty(t, tab.Title)
}

func TestStoreLoadRepairsDocument(t *testing.T) {
	s := New()
	s.Load(models.SessionDocument{
		Tabs: []models.Tab{
			{ID: "a", History: []models.HistoryEntry{{URL: "1"}, {URL: "2"}}, HistoryIndex: 7, IsLoading: true},
			{ID: "a"},
			{ID: ""},
			{ID: "b"},
		},
		Layout:      []string{"b", "ghost"},
		ActiveTabID: "ghost",
	})

	require.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"b", "a"}, s.Layout.Items())
	assert.Empty(t, s.ActiveID)

	a, _ := s.Tab("a")
	assert.True(t, a.IsHibernated)
	assert.False(t, a.IsLoading)
	assert.Equal(t, 1, a.HistoryIndex)
	assert.True(t, a.CanGoBack)
	assert.False(t, a.CanGoForward)
	assert.NoError(t, s.Layout.Check(s.IDs()))
}

func TestStoreResetLayout(t *testing.T) {
	s := New()
	add(s, "a")
	s.ResetLayout()
	assert.Empty(t, s.Layout.Items())
}
