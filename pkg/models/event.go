package models

// EventType names an event pushed to the presentation layer
type EventType string

const (
	EventTabCreated          EventType = "tab-created"
	EventTabCreatedNewLayout EventType = "tab-created-with-new-layout"
	EventTabSwitched         EventType = "tab-switched"
	EventTabUpdated          EventType = "tab-updated"
	EventTabClosed           EventType = "tab-closed"
	EventLayoutChanged       EventType = "layout-changed"
	EventContextMenu         EventType = "context-menu"
)

// Event is a serializable notification; it never carries engine handles
type Event struct {
	Type        EventType      `json:"type"`
	TabID       string         `json:"tabId,omitempty"`
	Tab         *TabView       `json:"tab,omitempty"`
	Patch       map[string]any `json:"patch,omitempty"`
	Layout      *LayoutView    `json:"layout,omitempty"`
	ActiveTabID string         `json:"activeTabId,omitempty"`
	Menu        *ContextMenu   `json:"menu,omitempty"`
}

// ContextMenu describes what was under the pointer when a menu was requested
type ContextMenu struct {
	X             int    `json:"x"`
	Y             int    `json:"y"`
	LinkURL       string `json:"linkUrl,omitempty"`
	SrcURL        string `json:"srcUrl,omitempty"`
	SelectionText string `json:"selectionText,omitempty"`
	IsEditable    bool   `json:"isEditable"`
}
