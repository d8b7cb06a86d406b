package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/tabhost/internal/lifecycle"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// CreateTab handles POST /v1/tabs
func (s *Server) CreateTab(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTabRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var view models.TabView
	err := s.do(r, func(ctx context.Context) error {
		tab := s.manager.Open(ctx, req.URL, lifecycle.CreateOptions{
			FromTabID:  req.FromTabID,
			IsShared:   req.IsShared,
			ZoomFactor: req.ZoomFactor,
		}, !req.Background)
		view, _ = s.manager.Tab(tab.ID)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListTabs handles GET /v1/tabs
func (s *Server) ListTabs(w http.ResponseWriter, r *http.Request) {
	var tabs []models.TabView
	err := s.do(r, func(context.Context) error {
		tabs = s.manager.Tabs()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tabs)
}

// GetTab handles GET /v1/tabs/{id}
func (s *Server) GetTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(context.Context, string) error { return nil })
}

// CloseTab handles DELETE /v1/tabs/{id}
func (s *Server) CloseTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.Close(ctx, id)
		return nil
	})
}

// ActivateTab handles POST /v1/tabs/{id}/activate
func (s *Server) ActivateTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.SwitchActive(ctx, id)
		return nil
	})
}

// ToggleShared handles POST /v1/tabs/{id}/shared
func (s *Server) ToggleShared(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.ToggleShared(ctx, id)
		return nil
	})
}

// ClearTab handles POST /v1/tabs/{id}/clear
func (s *Server) ClearTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, s.manager.ClearAndReload)
}

// HibernateTab handles POST /v1/tabs/{id}/hibernate
func (s *Server) HibernateTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(_ context.Context, id string) error {
		s.manager.Hibernate(id)
		return nil
	})
}

// WakeTab handles POST /v1/tabs/{id}/wake
func (s *Server) WakeTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.Wake(ctx, id)
		return nil
	})
}

// NavigateTab handles POST /v1/tabs/{id}/navigate
func (s *Server) NavigateTab(w http.ResponseWriter, r *http.Request) {
	var req models.NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.Navigate(ctx, id, req.URL)
		return nil
	})
}

// GoBack handles POST /v1/tabs/{id}/back
func (s *Server) GoBack(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.GoBack(ctx, id)
		return nil
	})
}

// GoForward handles POST /v1/tabs/{id}/forward
func (s *Server) GoForward(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.GoForward(ctx, id)
		return nil
	})
}

// ReloadTab handles POST /v1/tabs/{id}/reload
func (s *Server) ReloadTab(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.Reload(ctx, id)
		return nil
	})
}

// GoToIndex handles POST /v1/tabs/{id}/history/{index}
func (s *Server) GoToIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "Invalid history index", http.StatusBadRequest)
		return
	}
	s.tabCommand(w, r, func(ctx context.Context, id string) error {
		s.manager.GoToIndex(ctx, id, index)
		return nil
	})
}

// SetZoom handles PUT /v1/tabs/{id}/zoom
func (s *Server) SetZoom(w http.ResponseWriter, r *http.Request) {
	var req models.ZoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ZoomFactor <= 0 {
		http.Error(w, "zoomFactor must be positive", http.StatusBadRequest)
		return
	}
	s.tabCommand(w, r, func(_ context.Context, id string) error {
		s.manager.SetZoom(id, req.ZoomFactor)
		return nil
	})
}

// RemoveFromGroup handles POST /v1/tabs/{id}/ungroup
func (s *Server) RemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	s.tabCommand(w, r, func(_ context.Context, id string) error {
		s.manager.RemoveFromGroup(id)
		return nil
	})
}

// tabCommand runs fn on the loop for the tab named in the path and answers
// with the tab's projection afterwards, or 204 when fn removed it.
func (s *Server) tabCommand(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := mux.Vars(r)["id"]

	var (
		view  models.TabView
		found bool
	)
	err := s.do(r, func(ctx context.Context) error {
		if !s.manager.Has(id) {
			return lifecycle.ErrUnknownTab
		}
		if err := fn(ctx, id); err != nil {
			return err
		}
		view, found = s.manager.Tab(id)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
