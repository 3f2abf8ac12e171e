// Package host owns the render surfaces of a project, one per page name,
// and resolves the active page for the patch controller.
//
// Host methods must run on the event loop goroutine.
package host

import (
	"log/slog"
	"sort"
	"time"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/dom"
	"github.com/livetemplate/pagepatch/internal/editor"
	"github.com/livetemplate/pagepatch/internal/loop"
	"github.com/livetemplate/pagepatch/internal/surface"
)

// Options configures a host.
type Options struct {
	SettleDelay time.Duration

	// OnChange and OnSave receive the page-scoped notifications of every
	// surface.
	OnChange func(page, content string)
	OnSave   func(page, content string)

	Sink   surface.Sink
	Logger *slog.Logger
}

// Host is the multi-page host.
type Host struct {
	loop *loop.Loop
	opts Options

	surfaces map[string]*surface.Surface
	active   string

	editor *editor.Controller
}

// New creates an empty host.
func New(l *loop.Loop, opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Host{
		loop:     l,
		opts:     opts,
		surfaces: make(map[string]*surface.Surface),
	}
}

// Load makes the project's pages known. New pages get a mounted surface;
// pages that already have one reload their initial content. The project's
// current page becomes active.
func (h *Host) Load(p *pagepatch.Project) {
	for _, name := range p.Names() {
		page := p.Pages[name]
		if s, ok := h.surfaces[name]; ok {
			s.Load(page.Content)
			continue
		}
		h.add(page)
	}
	if p.Current != "" {
		h.SetActive(p.Current)
	}
	h.opts.Logger.Info("host: project loaded", "pages", len(p.Pages), "active", h.active)
}

// Ensure returns the surface for name, creating an empty page when the
// name is not known yet.
func (h *Host) Ensure(name string) *surface.Surface {
	if s, ok := h.surfaces[name]; ok {
		return s
	}
	return h.add(&pagepatch.Page{Name: name, Title: name})
}

func (h *Host) add(page *pagepatch.Page) *surface.Surface {
	p := *page
	s := surface.New(h.loop, &p, surface.Options{
		SettleDelay: h.opts.SettleDelay,
		OnChange:    h.changed,
		OnSave:      h.saved,
		Sink:        h.opts.Sink,
		Logger:      h.opts.Logger,
	})
	s.Mount()
	h.surfaces[page.Name] = s
	h.opts.Logger.Debug("host: surface created", "page", page.Name)
	return s
}

func (h *Host) changed(page, content string) {
	if h.opts.OnChange != nil {
		h.opts.OnChange(page, content)
	}
}

func (h *Host) saved(page, content string) {
	if h.opts.OnSave != nil {
		h.opts.OnSave(page, content)
	}
}

// SetActive shows name and hides the previously active surface.
func (h *Host) SetActive(name string) {
	if name == h.active {
		h.Ensure(name).Activate()
		return
	}
	if prev, ok := h.surfaces[h.active]; ok {
		prev.Deactivate()
	}
	h.active = name
	h.Ensure(name).Activate()
}

// Active returns the active page name.
func (h *Host) Active() string { return h.active }

// Surface returns the surface for name.
func (h *Host) Surface(name string) (*surface.Surface, bool) {
	s, ok := h.surfaces[name]
	return s, ok
}

// Pages returns the known page names in order.
func (h *Host) Pages() []string {
	names := make([]string, 0, len(h.surfaces))
	for name := range h.surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements editor.Resolver. The active page is looked up at call
// time.
func (h *Host) Resolve(page string) (*dom.Document, editor.Surface, bool) {
	if page == "" {
		page = h.active
	}
	s, ok := h.surfaces[page]
	if !ok {
		return nil, nil, false
	}
	doc := s.Document()
	if doc == nil {
		return nil, nil, false
	}
	return doc, s, true
}

// Start builds the patch controller and reports it to onReady after one
// loop tick, once surfaces have finished their initial setup.
func (h *Host) Start(onReady func(*editor.Controller)) {
	if h.editor == nil {
		h.editor = editor.New(h)
	}
	ed := h.editor
	h.loop.Post(func() {
		h.opts.Logger.Debug("host: editor ready", "active", h.active)
		if onReady != nil {
			onReady(ed)
		}
	})
}

// Editor returns the controller built by Start, or nil.
func (h *Host) Editor() *editor.Controller { return h.editor }

// Close disconnects all surfaces.
func (h *Host) Close() {
	for _, s := range h.surfaces {
		s.Close()
	}
}
