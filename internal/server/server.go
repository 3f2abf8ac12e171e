// Package server exposes the live editor over HTTP: section intake, page
// control, browser previews and the preview websocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/config"
	"github.com/livetemplate/pagepatch/internal/editor"
	"github.com/livetemplate/pagepatch/internal/loop"
	"github.com/livetemplate/pagepatch/internal/metrics"
	"github.com/livetemplate/pagepatch/internal/store"
	"github.com/livetemplate/pagepatch/internal/studio"
)

// Options configures a server.
type Options struct {
	Config  *config.Config
	Store   *store.Store // optional
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the pagepatch HTTP server.
type Server struct {
	cfg     *config.Config
	studio  *studio.Studio
	hub     *Hub
	store   *store.Store
	persist *persister
	metrics *metrics.Metrics
	logger  *slog.Logger
	md      *converter.Converter

	router     chi.Router
	watcher    *Watcher
	projectDir string
}

// New creates a server whose editor runs on l.
func New(l *loop.Loop, opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		metrics: opts.Metrics,
		logger:  logger,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
	if opts.Store != nil {
		s.store = opts.Store
		s.persist = newPersister(opts.Store, logger)
	}

	s.hub = NewHub(cfg.Preview.GetRateLimitRPS(), cfg.Preview.GetRateLimitBurst(), opts.Metrics, logger)
	s.studio = studio.New(l, studio.Hooks{
		OnReady: func(editor.Editor) {
			logger.Info("server: editor ready")
		},
		OnContentChange: s.contentChanged,
		OnSave:          s.saved,
	}, studio.Options{
		Window:      cfg.Editor.GetThrottleWindow(),
		SettleDelay: cfg.Editor.GetSettleDelay(),
		Sink:        s.hub,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})
	s.hub.Attach(s.studio)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/ws/{page}", s.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "text/html", "text/css", "application/javascript"))
		r.Get("/", s.handleIndex)
		r.Get("/assets/{file}", s.handleAsset)
		r.Get("/preview/{page}", s.handlePreview)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.API))
		r.Post("/sections", s.handleSections)
		r.Get("/pages", s.handlePages)
		r.Get("/pages/{page}/content", s.handleContent)
		r.Get("/pages/{page}/markdown", s.handleMarkdown)
		r.Post("/pages/{page}/activate", s.handleActivate)
		r.Post("/pages/{page}/refresh", s.handleRefresh)
		r.Post("/pages/{page}/save", s.handleSave)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Studio returns the patch façade.
func (s *Server) Studio() *studio.Studio { return s.studio }

// Hub returns the preview websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start mounts the project and starts the editor. With a store, saved
// content replaces the content read from disk before anything mounts.
func (s *Server) Start(ctx context.Context, p *pagepatch.Project, dir string) error {
	s.projectDir = dir
	if s.store != nil {
		if err := s.store.Overlay(ctx, p); err != nil {
			return err
		}
		for _, name := range p.Names() {
			if err := s.store.Put(ctx, p.Pages[name]); err != nil {
				return err
			}
		}
	}
	return s.studio.Start(ctx, p)
}

func (s *Server) contentChanged(page, content string) {
	if s.persist != nil {
		s.persist.enqueue(persistJob{kind: persistDraft, page: page, content: content})
	}
}

func (s *Server) saved(page, content string) {
	s.logger.Info("server: page saved", "page", page, "bytes", len(content))
	if s.persist != nil {
		s.persist.enqueue(persistJob{kind: persistSave, page: page, content: content})
	}
}

// EnableWatch reloads page files under the project directory when they
// change on disk.
func (s *Server) EnableWatch() error {
	if s.projectDir == "" {
		return fmt.Errorf("no project directory")
	}
	w, err := NewWatcher(s.projectDir, s.reloadFile, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = w
	s.watcher.Start()
	s.logger.Info("watch: file watcher started", "dir", s.projectDir)
	return nil
}

// reloadFile re-reads a page file and loads it as the page's initial
// content. Runs on the watcher goroutine.
func (s *Server) reloadFile(relPath string) error {
	page, _, err := pagepatch.ParseFile(filepath.Join(s.projectDir, relPath), pagepatch.PageName(relPath))
	if err != nil {
		return err
	}
	st := s.studio
	if !st.Loop().Post(func() {
		if sf, ok := st.Host().Surface(page.Name); ok {
			sf.Load(page.Content)
			return
		}
		p := pagepatch.NewProject()
		p.Add(page)
		p.Current = ""
		st.Host().Load(p)
	}) {
		return loop.ErrStopped
	}
	s.logger.Info("watch: page reloaded", "page", page.Name)
	return nil
}

// Shutdown flushes pending sections, disconnects clients and waits for
// pending writes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("watch: stop failed", "error", err)
		}
	}
	err := s.studio.Close(ctx)
	s.hub.Close()
	if s.persist != nil {
		s.persist.close()
	}
	return err
}
