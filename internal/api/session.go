package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/persist"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

const maxBackupSize = 32 << 20

// GetSettings handles GET /v1/settings
func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	var current models.Settings
	err := s.do(r, func(context.Context) error {
		current = s.settings.Get()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// UpdateSettings handles PUT /v1/settings. Identity and proxy changes are
// applied to every partition right away.
func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if patch.Proxy != nil && !models.ValidProxyMode(patch.Proxy.Mode) {
		http.Error(w, fmt.Sprintf("unknown proxy mode %q", patch.Proxy.Mode), http.StatusBadRequest)
		return
	}

	var current models.Settings
	err := s.do(r, func(ctx context.Context) error {
		ch := s.settings.Update(patch)
		if ch.Identity || ch.Proxy {
			s.manager.ApplySettings(ctx)
		}
		current = s.settings.Get()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// DownloadBackup handles GET /v1/session/backup
func (s *Server) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	var doc models.SessionDocument
	err := s.do(r, func(context.Context) error {
		doc = s.manager.Snapshot()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	now := s.now()
	backup := persist.NewBackup(doc, now)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="tabhost-backup-%s.json"`, now.UTC().Format("20060102-150405")))
	writeJSON(w, http.StatusOK, backup)
}

// RestoreBackup handles POST /v1/session/restore. A valid backup replaces
// the session document on disk; the running session is left as it is and the
// backup takes effect on the next start.
func (s *Server) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBackupSize))
	if err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := persist.ValidateBackup(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var backup models.Backup
	restore := func() (err error) {
		backup, err = s.sessions.Restore(data)
		return err
	}
	// once the backup is on disk, snapshots of the live session must not replace it
	if s.writer != nil {
		err = s.writer.DiscardAfter(restore)
	} else {
		err = restore()
	}
	if errors.Is(err, persist.ErrInvalidBackup) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("failed to restore session", zap.Error(err))
		http.Error(w, "Failed to restore session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.RestoreResponse{
		Restored:        true,
		RestartRequired: true,
		Tabs:            len(backup.Session.Tabs),
	})
}
