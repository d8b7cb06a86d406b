package lifecycle

import (
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// UpdateLayout replaces the whole arrangement. Unknown ids are dropped and
// tabs the arrangement leaves out are appended.
func (m *Manager) UpdateLayout(items []string, groups []models.Group) {
	m.store.Layout.Replace(items, groups, m.store.IDs())
	m.layoutChanged()
}

// CreateGroup wraps the seed tab in a new group and returns its id, or ""
// when the seed is not placed.
func (m *Manager) CreateGroup(seedID, name, color string) string {
	if color == "" {
		if tab, ok := m.store.Tab(seedID); ok {
			color = tab.Color
		}
	}
	gid := m.store.Layout.CreateGroup(seedID, name, color)
	if gid != "" {
		m.layoutChanged()
	}
	return gid
}

// Ungroup splices a group's members into the top level
func (m *Manager) Ungroup(groupID string) bool {
	return m.changed(m.store.Layout.Ungroup(groupID))
}

// UpdateGroup renames, recolors or collapses a group
func (m *Manager) UpdateGroup(groupID string, patch models.GroupPatch) bool {
	return m.changed(m.store.Layout.UpdateGroup(groupID, patch))
}

// MoveToLayout moves a tab to index of the top level
func (m *Manager) MoveToLayout(tabID string, index int) bool {
	return m.changed(m.store.Layout.MoveToLayout(tabID, index))
}

// MoveIntoGroup moves a tab to index of a group
func (m *Manager) MoveIntoGroup(tabID, groupID string, index int) bool {
	return m.changed(m.store.Layout.MoveIntoGroup(tabID, groupID, index))
}

// RemoveFromGroup moves a grouped tab next to its group
func (m *Manager) RemoveFromGroup(tabID string) bool {
	return m.changed(m.store.Layout.RemoveFromGroup(tabID))
}

func (m *Manager) changed(ok bool) bool {
	if ok {
		m.layoutChanged()
	}
	return ok
}

func (m *Manager) layoutChanged() {
	m.emitLayout()
	m.save()
}
