package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/studio"
	"github.com/livetemplate/pagepatch/internal/surface"
)

// maxRequestBodySize limits the size of incoming request bodies (4MB)
const maxRequestBodySize = 4 << 20

// Section intake results.
const (
	resultAccepted   = "accepted"
	resultIncomplete = "incomplete"
	resultError      = "error"
)

// SectionResult reports what happened to one submitted section.
type SectionResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PageInfo describes a mounted page.
type PageInfo struct {
	Name     string `json:"name"`
	Title    string `json:"title,omitempty"`
	State    string `json:"state"`
	Active   bool   `json:"active"`
	Unsaved  bool   `json:"unsaved"`
	Revision int    `json:"revision"`
	Clients  int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var ready bool
	if err := s.studio.Loop().Do(r.Context(), func() {
		ready = s.studio.Editor() != nil
	}); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": ready})
}

// handleSections accepts a single section object, a JSON array of sections
// or newline-delimited sections, and pushes each one in order.
func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	sections, err := pagepatch.DecodeSections(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(sections) == 0 {
		writeError(w, http.StatusBadRequest, "no sections")
		return
	}

	results := make([]SectionResult, 0, len(sections))
	for i, sec := range sections {
		res := SectionResult{Index: i, Status: resultAccepted}
		if err := s.studio.Push(r.Context(), sec); err != nil {
			switch {
			case errors.Is(err, studio.ErrIncomplete):
				res.Status = resultIncomplete
			case errors.Is(err, studio.ErrClosed), errors.Is(err, context.Canceled):
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			default:
				res.Status = resultError
				res.Error = err.Error()
			}
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	var pages []PageInfo
	err := s.studio.Loop().Do(r.Context(), func() {
		h := s.studio.Host()
		for _, name := range h.Pages() {
			sf, _ := h.Surface(name)
			pages = append(pages, PageInfo{
				Name:     name,
				Title:    sf.Title(),
				State:    sf.State().String(),
				Active:   name == h.Active(),
				Unsaved:  sf.Unsaved(),
				Revision: sf.Revision(),
				Clients:  s.hub.Clients(name),
			})
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// pageContent reads the inner markup of the element matching query on page.
// An empty query reads the whole document.
func (s *Server) pageContent(ctx context.Context, page, query string) (string, bool, error) {
	var (
		content string
		found   bool
	)
	err := s.studio.Loop().Do(ctx, func() {
		ed := s.studio.Editor()
		if _, ok := s.studio.Host().Surface(page); !ok || ed == nil {
			return
		}
		found = true
		content = ed.ForPage(page).GetContent(query)
	})
	return content, found, err
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	content, found, err := s.pageContent(r.Context(), page, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "page not found: "+page)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"page": page, "content": content})
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	content, found, err := s.pageContent(r.Context(), page, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "page not found: "+page)
		return
	}
	md, err := s.md.ConvertString(content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "markdown conversion failed: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, md)
}

// onPage runs fn against page's surface on the loop.
func (s *Server) onPage(w http.ResponseWriter, r *http.Request, fn func(name string, sf *surface.Surface) bool) {
	page := chi.URLParam(r, "page")
	var found, ok bool
	err := s.studio.Loop().Do(r.Context(), func() {
		sf, exists := s.studio.Host().Surface(page)
		if !exists {
			return
		}
		found = true
		ok = fn(page, sf)
	})
	switch {
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case !found:
		writeError(w, http.StatusNotFound, "page not found: "+page)
	case !ok:
		writeError(w, http.StatusConflict, "page is not active")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "page": page})
	}
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.onPage(w, r, func(name string, _ *surface.Surface) bool {
		s.studio.Host().SetActive(name)
		return true
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.onPage(w, r, func(_ string, sf *surface.Surface) bool {
		sf.Reload()
		return true
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.onPage(w, r, func(_ string, sf *surface.Surface) bool {
		return sf.SaveShortcut()
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
