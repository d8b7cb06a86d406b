// Package layout keeps the ordered arrangement of standalone tabs and groups.
//
// Every tab id lives in exactly one place: directly in the top-level items, or
// inside exactly one group's member list. Groups are never empty; any operation
// that empties a group deletes it and splices its slot out of the items.
package layout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// GroupPrefix marks group ids so they never collide with tab ids
const GroupPrefix = "group-"

// Model is the layout plus the groups it references
type Model struct {
	items  []string
	groups map[string]*models.Group
}

// New creates an empty layout
func New() *Model {
	return &Model{groups: make(map[string]*models.Group)}
}

// Items returns a copy of the top-level order
func (m *Model) Items() []string {
	return append([]string(nil), m.items...)
}

// IsGroup reports whether id names a live group
func (m *Model) IsGroup(id string) bool {
	_, ok := m.groups[id]
	return ok
}

// Group returns a copy of a group
func (m *Model) Group(id string) (models.Group, bool) {
	g, ok := m.groups[id]
	if !ok {
		return models.Group{}, false
	}
	return *g.Clone(), true
}

// Groups returns copies of all groups in layout order
func (m *Model) Groups() []models.Group {
	groups := make([]models.Group, 0, len(m.groups))
	for _, id := range m.items {
		if g, ok := m.groups[id]; ok {
			groups = append(groups, *g.Clone())
		}
	}
	return groups
}

// TabIDs returns every tab id in presentation order
func (m *Model) TabIDs() []string {
	var ids []string
	for _, id := range m.items {
		if g, ok := m.groups[id]; ok {
			ids = append(ids, g.Tabs...)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether the tab is placed anywhere
func (m *Model) Contains(tabID string) bool {
	_, _, ok := m.Locate(tabID)
	return ok
}

// Locate returns the group holding tabID ("" for the top level) and the tab's index there.
func (m *Model) Locate(tabID string) (groupID string, index int, ok bool) {
	for i, id := range m.items {
		if id == tabID && !m.IsGroup(id) {
			return "", i, true
		}
		if g, isGroup := m.groups[id]; isGroup {
			if j := indexOf(g.Tabs, tabID); j >= 0 {
				return g.ID, j, true
			}
		}
	}
	return "", -1, false
}

// GroupOf returns the id of the group holding tabID, or ""
func (m *Model) GroupOf(tabID string) string {
	gid, _, _ := m.Locate(tabID)
	return gid
}

// Append places a tab at the end of the top level
func (m *Model) Append(tabID string) {
	if m.Contains(tabID) {
		return
	}
	m.items = append(m.items, tabID)
}

// InsertAfter places a tab immediately after afterID, inside afterID's group when it has one.
func (m *Model) InsertAfter(tabID, afterID string) {
	if m.Contains(tabID) {
		return
	}
	gid, idx, ok := m.Locate(afterID)
	if !ok {
		m.Append(tabID)
		return
	}
	if gid == "" {
		m.items = insertAt(m.items, idx+1, tabID)
		return
	}
	g := m.groups[gid]
	g.Tabs = insertAt(g.Tabs, idx+1, tabID)
}

// Remove takes a tab out of the layout, deleting its group if it becomes empty.
func (m *Model) Remove(tabID string) bool {
	_, _, ok := m.detach(tabID)
	return ok
}

// MoveToLayout moves a tab to the top level at index
func (m *Model) MoveToLayout(tabID string, index int) bool {
	if _, _, ok := m.detach(tabID); !ok {
		return false
	}
	m.items = insertAt(m.items, index, tabID)
	return true
}

// MoveIntoGroup moves a tab into a group at index
func (m *Model) MoveIntoGroup(tabID, groupID string, index int) bool {
	g, ok := m.groups[groupID]
	if !ok {
		return false
	}
	cur, idx, found := m.Locate(tabID)
	if !found {
		return false
	}
	if cur == groupID {
		g.Tabs = insertAt(removeAt(g.Tabs, idx), index, tabID)
		return true
	}
	m.detach(tabID)
	g.Tabs = insertAt(g.Tabs, index, tabID)
	return true
}

// RemoveFromGroup moves a grouped tab to the top level right after its group,
// or into the group's old slot when the group was deleted by the move.
func (m *Model) RemoveFromGroup(tabID string) bool {
	gid, _, ok := m.Locate(tabID)
	if !ok || gid == "" {
		return false
	}
	_, slot, _ := m.detach(tabID)
	if m.IsGroup(gid) {
		slot++
	}
	m.items = insertAt(m.items, slot, tabID)
	return true
}

// CreateGroup wraps the seed tab in a new group placed at the seed's position.
// It returns the new group id, or "" if the seed is not placed.
func (m *Model) CreateGroup(seedID, name, color string) string {
	gid, idx, ok := m.Locate(seedID)
	if !ok {
		return ""
	}
	slot := idx
	if gid == "" {
		m.items = removeAt(m.items, idx)
	} else {
		_, slot, _ = m.detach(seedID)
		if m.IsGroup(gid) {
			slot++
		}
	}

	id := GroupPrefix + uuid.New().String()
	m.groups[id] = &models.Group{
		ID:    id,
		Name:  name,
		Color: color,
		Tabs:  []string{seedID},
	}
	m.items = insertAt(m.items, slot, id)
	return id
}

// Ungroup splices a group's members into the top level at the group's position
func (m *Model) Ungroup(groupID string) bool {
	g, ok := m.groups[groupID]
	if !ok {
		return false
	}
	slot := indexOf(m.items, groupID)
	rest := append([]string(nil), m.items[slot+1:]...)
	m.items = append(append(m.items[:slot], g.Tabs...), rest...)
	delete(m.groups, groupID)
	return true
}

// UpdateGroup applies a patch to a group's presentation fields
func (m *Model) UpdateGroup(groupID string, patch models.GroupPatch) bool {
	g, ok := m.groups[groupID]
	if !ok {
		return false
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Color != nil {
		g.Color = *patch.Color
	}
	if patch.Collapsed != nil {
		g.Collapsed = *patch.Collapsed
	}
	return true
}

// Replace swaps in a whole new arrangement. Ids not in existing are dropped,
// repeated ids keep their first location, empty groups vanish and existing
// tabs the arrangement forgot are appended in the given order. A group whose
// id is a tab id is ignored and one without GroupPrefix gets a new id.
func (m *Model) Replace(items []string, groups []models.Group, existing []string) {
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	// a group id must not shadow a tab
	byID := make(map[string]models.Group, len(groups))
	for _, g := range groups {
		if !known[g.ID] {
			byID[g.ID] = g
		}
	}

	next := New()
	seen := make(map[string]bool)
	for _, id := range items {
		if seen[id] {
			continue
		}
		if g, ok := byID[id]; ok {
			seen[id] = true
			var members []string
			for _, t := range g.Tabs {
				if known[t] && !seen[t] {
					seen[t] = true
					members = append(members, t)
				}
			}
			if len(members) == 0 {
				continue
			}
			ng := g
			ng.Tabs = members
			if !strings.HasPrefix(ng.ID, GroupPrefix) {
				ng.ID = GroupPrefix + uuid.New().String()
			}
			next.groups[ng.ID] = &ng
			next.items = append(next.items, ng.ID)
			continue
		}
		if known[id] {
			seen[id] = true
			next.items = append(next.items, id)
		}
	}
	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			next.items = append(next.items, id)
		}
	}
	*m = *next
}

// FirstCandidate picks the tab to activate when the active one goes away:
// the first standalone tab, else the first member of the first expanded group.
func (m *Model) FirstCandidate() string {
	for _, id := range m.items {
		if !m.IsGroup(id) {
			return id
		}
	}
	for _, id := range m.items {
		if g := m.groups[id]; g != nil && !g.Collapsed && len(g.Tabs) > 0 {
			return g.Tabs[0]
		}
	}
	return ""
}

// Check verifies the placement invariants. When tabs is non-nil the set of
// placed tabs must equal it exactly.
func (m *Model) Check(tabs []string) error {
	seen := make(map[string]bool)
	for _, id := range m.items {
		if seen[id] {
			return fmt.Errorf("id %s appears twice", id)
		}
		seen[id] = true
		g, ok := m.groups[id]
		if !ok {
			continue
		}
		if len(g.Tabs) == 0 {
			return fmt.Errorf("group %s is empty", id)
		}
		for _, t := range g.Tabs {
			if seen[t] {
				return fmt.Errorf("tab %s appears twice", t)
			}
			if m.IsGroup(t) {
				return fmt.Errorf("group %s nested in group %s", t, id)
			}
			seen[t] = true
		}
	}
	for id := range m.groups {
		if indexOf(m.items, id) < 0 {
			return fmt.Errorf("group %s is not in the layout", id)
		}
	}
	if tabs == nil {
		return nil
	}
	placed := m.TabIDs()
	if len(placed) != len(tabs) {
		return fmt.Errorf("layout places %d tabs, store has %d", len(placed), len(tabs))
	}
	for _, t := range tabs {
		if !seen[t] {
			return fmt.Errorf("tab %s is not placed", t)
		}
	}
	return nil
}

// detach removes tabID from wherever it is. slot is the top-level index of the
// tab (standalone) or of its group; when the group was emptied it is deleted
// and slot is where it used to be.
func (m *Model) detach(tabID string) (groupID string, slot int, ok bool) {
	gid, idx, found := m.Locate(tabID)
	if !found {
		return "", -1, false
	}
	if gid == "" {
		m.items = removeAt(m.items, idx)
		return "", idx, true
	}
	g := m.groups[gid]
	g.Tabs = removeAt(g.Tabs, idx)
	slot = indexOf(m.items, gid)
	if len(g.Tabs) == 0 {
		delete(m.groups, gid)
		m.items = removeAt(m.items, slot)
	}
	return gid, slot, true
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func insertAt(s []string, i int, v string) []string {
	if i < 0 {
		i = 0
	}
	if i > len(s) {
		i = len(s)
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt(s []string, i int) []string {
	return append(s[:i], s[i+1:]...)
}
