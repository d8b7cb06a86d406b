// Package settings holds the current user settings and persists changes
// through a coalescing writer.
package settings

import (
	"maps"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// Scheduler accepts settings to be written later
type Scheduler interface {
	Schedule(models.Settings)
}

// Changes reports which concerns an update touched
type Changes struct {
	Identity bool
	Proxy    bool
	Other    bool
}

// Service is the settings registry; it is owned by the control loop
type Service struct {
	current models.Settings
	saver   Scheduler
}

// NewService creates a service starting from initial
func NewService(initial models.Settings, saver Scheduler) *Service {
	if initial.Hotkeys == nil {
		initial.Hotkeys = make(map[string]string)
	}
	return &Service{current: initial, saver: saver}
}

// Get returns a copy of the current settings
func (s *Service) Get() models.Settings {
	c := s.current
	c.Hotkeys = maps.Clone(s.current.Hotkeys)
	return c
}

// SearchEngine returns the search URL template
func (s *Service) SearchEngine() string {
	return s.current.SearchEngine
}

// HomePage returns the page new tabs open when no URL is given
func (s *Service) HomePage() string {
	return s.current.HomePage
}

// Update merges patch into the current settings and schedules a write
func (s *Service) Update(patch models.SettingsPatch) Changes {
	var ch Changes
	if patch.Identity != nil && *patch.Identity != s.current.Identity {
		s.current.Identity = *patch.Identity
		ch.Identity = true
	}
	if patch.Proxy != nil && *patch.Proxy != s.current.Proxy {
		s.current.Proxy = *patch.Proxy
		ch.Proxy = true
	}
	for action, accel := range patch.Hotkeys {
		if accel == "" {
			delete(s.current.Hotkeys, action)
		} else {
			s.current.Hotkeys[action] = accel
		}
		ch.Other = true
	}
	if patch.SearchEngine != nil && *patch.SearchEngine != s.current.SearchEngine {
		s.current.SearchEngine = *patch.SearchEngine
		ch.Other = true
	}
	if patch.HomePage != nil && *patch.HomePage != s.current.HomePage {
		s.current.HomePage = *patch.HomePage
		ch.Other = true
	}

	if (ch.Identity || ch.Proxy || ch.Other) && s.saver != nil {
		s.saver.Schedule(s.Get())
	}
	return ch
}
