package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/tabhost/internal/lifecycle"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

var (
	errUnknownGroup = errors.New("unknown group")
	errNotMoved     = errors.New("tab could not be moved there")
)

// GetLayout handles GET /v1/layout
func (s *Server) GetLayout(w http.ResponseWriter, r *http.Request) {
	s.layoutCommand(w, r, func() error { return nil })
}

// UpdateLayout handles PUT /v1/layout. The arrangement is normalized: unknown
// ids are dropped and tabs it leaves out are appended.
func (s *Server) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	var req models.LayoutView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.layoutCommand(w, r, func() error {
		s.manager.UpdateLayout(req.Items, req.Groups)
		return nil
	})
}

// MoveTab handles POST /v1/layout/move
func (s *Server) MoveTab(w http.ResponseWriter, r *http.Request) {
	var req models.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := s.do(r, func(context.Context) error {
		if !s.manager.Has(req.TabID) {
			return lifecycle.ErrUnknownTab
		}
		if req.GroupID == "" {
			if !s.manager.MoveToLayout(req.TabID, req.Index) {
				return errNotMoved
			}
			return nil
		}
		if !s.hasGroup(req.GroupID) {
			return errUnknownGroup
		}
		if !s.manager.MoveIntoGroup(req.TabID, req.GroupID, req.Index) {
			return errNotMoved
		}
		return nil
	})
	if errors.Is(err, errNotMoved) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.GetLayout(w, r)
}

// CreateGroup handles POST /v1/groups
func (s *Server) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var group models.Group
	err := s.do(r, func(context.Context) error {
		if !s.manager.Has(req.SeedTabID) {
			return lifecycle.ErrUnknownTab
		}
		gid := s.manager.CreateGroup(req.SeedTabID, req.Name, req.Color)
		if gid == "" {
			return errNotMoved
		}
		group, _ = s.manager.Store().Layout.Group(gid)
		return nil
	})
	if errors.Is(err, errNotMoved) {
		http.Error(w, "tab cannot seed a group", http.StatusConflict)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// UpdateGroup handles PATCH /v1/groups/{id}
func (s *Server) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var patch models.GroupPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	id := mux.Vars(r)["id"]

	var group models.Group
	err := s.do(r, func(context.Context) error {
		if !s.hasGroup(id) {
			return errUnknownGroup
		}
		s.manager.UpdateGroup(id, patch)
		group, _ = s.manager.Store().Layout.Group(id)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// Ungroup handles DELETE /v1/groups/{id}
func (s *Server) Ungroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.layoutCommand(w, r, func() error {
		if !s.manager.Ungroup(id) {
			return errUnknownGroup
		}
		return nil
	})
}

// layoutCommand runs fn on the loop and answers with the arrangement
func (s *Server) layoutCommand(w http.ResponseWriter, r *http.Request, fn func() error) {
	var view *models.LayoutView
	err := s.do(r, func(context.Context) error {
		if err := fn(); err != nil {
			return err
		}
		view = s.manager.Layout()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) hasGroup(id string) bool {
	_, ok := s.manager.Store().Layout.Group(id)
	return ok
}
