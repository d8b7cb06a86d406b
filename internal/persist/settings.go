package persist

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// SettingsStore reads and writes the settings document
type SettingsStore struct {
	path string
	log  *zap.Logger
}

// NewSettingsStore creates a store for the document at path
func NewSettingsStore(path string, log *zap.Logger) *SettingsStore {
	return &SettingsStore{path: path, log: log.Named("settings")}
}

// Load returns the stored settings layered over the defaults. A missing or
// unreadable document yields the defaults.
func (s *SettingsStore) Load() models.Settings {
	settings := models.DefaultSettings()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read settings, using defaults", zap.Error(err))
		}
		return settings
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		s.log.Warn("failed to decode settings, using defaults", zap.Error(err))
		return models.DefaultSettings()
	}
	return settings
}

// Save replaces the settings document atomically
func (s *SettingsStore) Save(settings models.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := writeAtomic(s.path, s.path+".tmp", data); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
