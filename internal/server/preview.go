package server

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/livetemplate/pagepatch/internal/assets"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="/assets/preview.css">
    {{.Head}}
</head>
<body>
<div id="pagepatch-surface" data-page="{{.Page}}" data-revision="{{.Revision}}">{{.Content}}</div>
<script src="/assets/preview.js"></script>
</body>
</html>
`))

type previewData struct {
	Page     string
	Title    string
	Head     template.HTML
	Content  template.HTML
	Revision int
}

// handleIndex redirects to the preview of the active page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var active string
	if err := s.studio.Loop().Do(r.Context(), func() {
		active = s.studio.Host().Active()
	}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if active == "" {
		http.Error(w, "no active page", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/preview/"+url.PathEscape(active), http.StatusFound)
}

// handlePreview renders the live document of a page. The preview client
// then follows the page over /ws/{page}.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")

	var (
		data  previewData
		found bool
	)
	err := s.studio.Loop().Do(r.Context(), func() {
		sf, ok := s.studio.Host().Surface(page)
		if !ok {
			return
		}
		sf.Mount()
		found = true
		data = previewData{
			Page:     page,
			Title:    sf.Title(),
			Head:     template.HTML(sf.Head()),
			Content:  template.HTML(sf.Document().Serialize()),
			Revision: sf.Revision(),
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	if data.Title == "" {
		data.Title = page
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := previewTemplate.Execute(w, data); err != nil {
		s.logger.Error("preview: render failed", "page", page, "error", err)
	}
}

// handleAsset serves embedded client assets.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "file") {
	case "preview.js":
		js, err := assets.GetClientJS()
		if err != nil {
			http.Error(w, "Asset not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(js)
	case "preview.css":
		css, err := assets.GetClientCSS()
		if err != nil {
			http.Error(w, "Asset not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/css")
		w.Write(css)
	default:
		http.NotFound(w, r)
	}
}
