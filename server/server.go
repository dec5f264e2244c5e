// Package server exposes the session engine to the rendering
// collaborator over HTTP. The grid frontend polls tab views and posts
// user edits; all heavy work stays on the session's background fetches.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/wansanai/ParquetGrip/core"
	"github.com/wansanai/ParquetGrip/manager"
)

// Server routes rendering-collaborator requests to the session manager.
type Server struct {
	mgr   *manager.Manager
	reqID int64
}

// New creates a server over the given manager.
func New(mgr *manager.Manager) *Server {
	return &Server{mgr: mgr}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Route("/tabs", func(r chi.Router) {
		r.Get("/", s.handleListTabs)
		r.Post("/", s.handleOpenTab)
		r.Route("/{index}", func(r chi.Router) {
			r.Delete("/", s.handleCloseTab)
			r.Post("/activate", s.handleActivate)
			r.Get("/page", s.handlePage)
			r.Put("/filter", s.handleSetFilter)
			r.Put("/sort", s.handleSetSort)
			r.Put("/page", s.handleSetPage)
			r.Put("/scroll", s.handleSetScroll)
			r.Post("/refresh", s.handleRefresh)
		})
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the JSON error envelope. The error text may be engine
// output and is meant to be copyable verbatim.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TabInfo is one entry of the tab list.
type TabInfo struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Phase  string `json:"phase"`
	Status string `json:"status"`
	Active bool   `json:"active"`
}

// TabListResponse is the tab list envelope.
type TabListResponse struct {
	Tabs      []TabInfo `json:"tabs"`
	ActiveTab int       `json:"active_tab"`
}

// OpenTabRequest opens a file in a new or existing tab.
type OpenTabRequest struct {
	Path string `json:"path"`
}

type filterRequest struct {
	Filter string `json:"filter"`
}

type sortRequest struct {
	Sort string `json:"sort"`
}

type pageRequest struct {
	Index int `json:"index"`
}

type scrollRequest struct {
	Offset int `json:"offset"`
}

func (s *Server) requestCtx(r *http.Request) context.Context {
	return core.WithLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt64(&s.reqID, 1)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	_, active := s.mgr.Active()
	tabs := s.mgr.Tabs()
	resp := TabListResponse{ActiveTab: active, Tabs: make([]TabInfo, 0, len(tabs))}
	for i, t := range tabs {
		v := t.View()
		resp.Tabs = append(resp.Tabs, TabInfo{
			Index:  i,
			Name:   v.Name,
			Path:   v.Path,
			Phase:  v.Phase,
			Status: v.Status,
			Active: i == active,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	var req OpenTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	ctx := s.requestCtx(r)
	idx, err := s.mgr.OpenTab(ctx, req.Path)
	if err != nil {
		// The tab exists and holds the error; report both.
		writeJSON(w, http.StatusOK, map[string]any{"index": idx, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": idx})
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	if err := s.mgr.CloseTab(idx); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	if err := s.mgr.SetActive(idx); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	tab, err := s.mgr.Tab(idx)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tab.View())
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.SetFilter(s.requestCtx(r), idx, req.Filter); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleSetSort(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	var req sortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.SetSort(s.requestCtx(r), idx, req.Sort); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleSetPage(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.SetPage(s.requestCtx(r), idx, req.Index); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleSetScroll(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.SetScroll(idx, req.Offset); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.tabIndex(w, r)
	if !ok {
		return
	}
	if err := s.mgr.Refresh(s.requestCtx(r), idx); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) tabIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tab index")
		return 0, false
	}
	return idx, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
