package models

// Group is a named, colored, collapsible run of tabs inside the layout
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Color     string   `json:"color"`
	Collapsed bool     `json:"collapsed"`
	Tabs      []string `json:"tabs"`
}

// Clone returns a deep copy of the group
func (g *Group) Clone() *Group {
	c := *g
	c.Tabs = append([]string(nil), g.Tabs...)
	return &c
}

// GroupPatch carries the optional group fields a client may change
type GroupPatch struct {
	Name      *string `json:"name,omitempty"`
	Color     *string `json:"color,omitempty"`
	Collapsed *bool   `json:"collapsed,omitempty"`
}

// LayoutView is the ordered arrangement as seen by the presentation layer
type LayoutView struct {
	Items       []string `json:"layout"`
	Groups      []Group  `json:"groups"`
	ActiveTabID string   `json:"activeTabId,omitempty"`
}

// CreateGroupRequest is the payload for grouping a tab
type CreateGroupRequest struct {
	SeedTabID string `json:"seedTabId"`
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"`
}

// MoveRequest moves a tab to the top level (GroupID empty) or into a group
type MoveRequest struct {
	TabID   string `json:"tabId"`
	GroupID string `json:"groupId,omitempty"`
	Index   int    `json:"index"`
}
