package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/pkg/models"
)

var (
	// ErrNoSession means neither the canonical nor the temporary document exists
	ErrNoSession = errors.New("no session document")
	// ErrInvalidBackup wraps every backup validation failure
	ErrInvalidBackup = errors.New("invalid session backup")
)

// SessionStore reads and writes the session document
type SessionStore struct {
	path string
	log  *zap.Logger
}

// NewSessionStore creates a store for the document at path
func NewSessionStore(path string, log *zap.Logger) *SessionStore {
	return &SessionStore{path: path, log: log.Named("session")}
}

// Path returns the canonical document path
func (s *SessionStore) Path() string { return s.path }

// TempPath returns the sibling path writes go through
func (s *SessionStore) TempPath() string { return s.path + ".tmp" }

// Normalize prepares a document for disk: loads in flight cannot resume after a
// restart, and history beyond the cap is dropped.
func Normalize(doc models.SessionDocument) models.SessionDocument {
	out := doc
	out.Tabs = make([]models.Tab, len(doc.Tabs))
	for i := range doc.Tabs {
		t := doc.Tabs[i].Clone()
		t.IsLoading = false
		if over := len(t.History) - models.MaxHistory; over > 0 {
			t.History = t.History[over:]
			t.HistoryIndex -= over
			if t.HistoryIndex < 0 {
				t.HistoryIndex = 0
			}
			t.SyncNavFlags()
		}
		out.Tabs[i] = *t
	}
	out.Layout = append([]string(nil), doc.Layout...)
	out.Groups = make([]models.Group, len(doc.Groups))
	for i := range doc.Groups {
		out.Groups[i] = *doc.Groups[i].Clone()
	}
	return out
}

// Save writes the document atomically
func (s *SessionStore) Save(doc models.SessionDocument) error {
	data, err := json.MarshalIndent(Normalize(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := writeAtomic(s.path, s.TempPath(), data); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	s.log.Debug("session saved", zap.Int("tabs", len(doc.Tabs)))
	return nil
}

// Load reads the canonical document. When only the temporary file exists (the
// previous process died between write and rename) it is loaded and promoted.
func (s *SessionStore) Load() (models.SessionDocument, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		return decodeSession(data)
	}
	if !os.IsNotExist(err) {
		return models.SessionDocument{}, fmt.Errorf("failed to read session: %w", err)
	}

	data, err = os.ReadFile(s.TempPath())
	if os.IsNotExist(err) {
		return models.SessionDocument{}, ErrNoSession
	}
	if err != nil {
		return models.SessionDocument{}, fmt.Errorf("failed to read temp session: %w", err)
	}
	doc, err := decodeSession(data)
	if err != nil {
		return models.SessionDocument{}, err
	}
	if err := os.Rename(s.TempPath(), s.path); err != nil {
		s.log.Warn("failed to promote recovered session", zap.Error(err))
	} else {
		s.log.Info("recovered session from interrupted write", zap.Int("tabs", len(doc.Tabs)))
	}
	return doc, nil
}

func decodeSession(data []byte) (models.SessionDocument, error) {
	var doc models.SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.SessionDocument{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return doc, nil
}

// NewBackup wraps a session document with the format version and a timestamp
func NewBackup(doc models.SessionDocument, now time.Time) models.Backup {
	return models.Backup{
		Version:   models.BackupVersion,
		CreatedAt: now.UTC(),
		Session:   Normalize(doc),
	}
}

// Restore validates a backup and, only if it is acceptable, installs its
// session as the canonical document. Live state is not touched; the new
// session takes effect on the next start.
func (s *SessionStore) Restore(data []byte) (models.Backup, error) {
	b, err := ValidateBackup(data)
	if err != nil {
		return models.Backup{}, err
	}
	if err := s.Save(b.Session); err != nil {
		return models.Backup{}, err
	}
	s.log.Info("session restored from backup",
		zap.Time("createdAt", b.CreatedAt),
		zap.Int("tabs", len(b.Session.Tabs)))
	return b, nil
}

// ValidateBackup checks that a backup has every required field and a supported version
func ValidateBackup(data []byte) (models.Backup, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return models.Backup{}, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidBackup, err)
	}
	for _, field := range []string{"version", "session"} {
		if _, ok := top[field]; !ok {
			return models.Backup{}, fmt.Errorf("%w: missing required field %q", ErrInvalidBackup, field)
		}
	}

	var session map[string]json.RawMessage
	if err := json.Unmarshal(top["session"], &session); err != nil || session == nil {
		return models.Backup{}, fmt.Errorf("%w: field \"session\" is not an object", ErrInvalidBackup)
	}
	for _, field := range []string{"tabs", "layout"} {
		if _, ok := session[field]; !ok {
			return models.Backup{}, fmt.Errorf("%w: missing required field \"session.%s\"", ErrInvalidBackup, field)
		}
	}

	var b models.Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return models.Backup{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if b.Version < 1 || b.Version > models.BackupVersion {
		return models.Backup{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidBackup, b.Version)
	}
	for i, t := range b.Session.Tabs {
		if t.ID == "" {
			return models.Backup{}, fmt.Errorf("%w: tab %d has no id", ErrInvalidBackup, i)
		}
	}
	return b, nil
}
