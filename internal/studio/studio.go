// Package studio is the façade between the instruction stream and the
// patch controller. It gates sections on fragment completeness, coalesces
// bursts with a trailing-edge throttle and exposes lifecycle hooks.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/dom"
	"github.com/livetemplate/pagepatch/internal/editor"
	"github.com/livetemplate/pagepatch/internal/fragment"
	"github.com/livetemplate/pagepatch/internal/host"
	"github.com/livetemplate/pagepatch/internal/loop"
	"github.com/livetemplate/pagepatch/internal/metrics"
	"github.com/livetemplate/pagepatch/internal/surface"
)

// ErrIncomplete reports a section whose content is not yet a complete
// fragment. It is not a failure: the sender retries with more content.
var ErrIncomplete = errors.New("studio: fragment incomplete")

// ErrClosed is returned for sections pushed after Close.
var ErrClosed = errors.New("studio: closed")

// Hooks are the lifecycle callbacks exposed to the surrounding
// application. All of them run on the event loop except OnLoad.
type Hooks struct {
	OnReady func(ed editor.Editor)
	// OnLoad is awaited before the project is mounted.
	OnLoad          func(ctx context.Context) error
	OnContentChange func(page, content string)
	OnSave          func(page, content string)
}

// Options configures a studio.
type Options struct {
	Window      time.Duration
	SettleDelay time.Duration
	Sink        surface.Sink
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Studio owns the host, the throttle and the single editor controller.
type Studio struct {
	loop     *loop.Loop
	host     *host.Host
	hooks    Hooks
	opts     Options
	throttle *Throttle

	editor *editor.Controller
	ready  bool
	held   []pagepatch.Section
	closed bool
}

// New creates a studio running on l.
func New(l *loop.Loop, hooks Hooks, opts Options) *Studio {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Studio{loop: l, hooks: hooks, opts: opts}
	s.host = host.New(l, host.Options{
		SettleDelay: opts.SettleDelay,
		OnChange:    s.contentChanged,
		OnSave:      s.saved,
		Sink:        opts.Sink,
		Logger:      opts.Logger,
	})
	s.throttle = NewThrottle(l, opts.Window, s.dispatch)
	s.throttle.superseded = func(pagepatch.Section) { opts.Metrics.Coalesced() }
	return s
}

// Loop returns the event loop the studio runs on.
func (s *Studio) Loop() *loop.Loop { return s.loop }

// Host returns the multi-page host. Use it from the loop only.
func (s *Studio) Host() *host.Host { return s.host }

// Editor returns the controller once ready, or nil. Use it from the loop
// only.
func (s *Studio) Editor() *editor.Controller {
	if !s.ready {
		return nil
	}
	return s.editor
}

// Start awaits OnLoad, mounts the project and starts the host. The ready
// hook fires one tick later.
func (s *Studio) Start(ctx context.Context, p *pagepatch.Project) error {
	if s.hooks.OnLoad != nil {
		if err := s.hooks.OnLoad(ctx); err != nil {
			return fmt.Errorf("studio: load: %w", err)
		}
	}
	return s.loop.Do(ctx, func() {
		s.host.Load(p)
		s.host.Start(s.onReady)
	})
}

func (s *Studio) onReady(ed *editor.Controller) {
	s.editor = ed
	s.ready = true
	held := s.held
	s.held = nil
	for _, sec := range held {
		s.dispatch(sec)
	}
	s.opts.Logger.Info("studio: ready", "pages", len(s.host.Pages()), "flushed", len(held))
	if s.hooks.OnReady != nil {
		s.hooks.OnReady(ed)
	}
}

// Apply gates and schedules sec. It must run on the loop; transports use
// Push. Incomplete fragments return ErrIncomplete and are not applied.
func (s *Studio) Apply(sec pagepatch.Section) error {
	if s.closed {
		return ErrClosed
	}
	s.opts.Metrics.Received(string(sec.Action))
	if reason, err := Check(sec); err != nil {
		s.opts.Metrics.Rejected(reason)
		return err
	}

	if pending, ok := s.throttle.Pending(); ok && pending.Unit() != sec.Unit() {
		s.throttle.Flush()
	}
	s.throttle.Call(sec)
	return nil
}

// Check judges sec the way Apply does, without applying it. On rejection
// it returns a short reason label along with the error.
func Check(sec pagepatch.Section) (reason string, err error) {
	if err := sec.Validate(); err != nil {
		return "invalid", err
	}
	if sec.Action == pagepatch.ActionRemove {
		return "", nil
	}
	if !fragment.IsValid(sec.Content) {
		return "incomplete", ErrIncomplete
	}
	if id := fragment.RootID(sec.Content); id != sec.RootDomID {
		return "root_mismatch", fmt.Errorf("studio: content root id %q does not match rootDomId %q", id, sec.RootDomID)
	}
	return "", nil
}

// Push runs Apply on the loop and waits for its result. It is safe to call
// from any goroutine.
func (s *Studio) Push(ctx context.Context, sec pagepatch.Section) error {
	var err error
	if doErr := s.loop.Do(ctx, func() { err = s.Apply(sec) }); doErr != nil {
		return doErr
	}
	return err
}

// Flush applies the pending section, if any. It must run on the loop.
func (s *Studio) Flush() {
	s.throttle.Flush()
}

func (s *Studio) dispatch(sec pagepatch.Section) {
	if !s.ready {
		s.held = append(s.held, sec)
		return
	}
	s.host.Ensure(sec.PageName)
	ed := s.editor.ForPage(sec.PageName)
	query := dom.IDSelector(sec.DomID)

	switch sec.Action {
	case pagepatch.ActionAdd:
		ed.AppendContent(query, sec.Content, sec.Position())
	case pagepatch.ActionUpdate:
		ed.UpdateContent(query, sec.Content, sec.Position())
	case pagepatch.ActionRemove:
		ed.DeleteContent(query)
	}
	s.opts.Metrics.Applied(string(sec.Action))
	s.opts.Logger.Debug("studio: applied", "page", sec.PageName, "action", sec.Action, "id", sec.RootDomID)
}

func (s *Studio) contentChanged(page, content string) {
	s.opts.Metrics.EditObserved(page)
	if s.hooks.OnContentChange != nil {
		s.hooks.OnContentChange(page, content)
	}
}

func (s *Studio) saved(page, content string) {
	s.opts.Metrics.Saved(page)
	if s.hooks.OnSave != nil {
		s.hooks.OnSave(page, content)
	}
}

// Close flushes the pending section synchronously and disconnects the
// surfaces. Sections pushed afterwards are refused.
func (s *Studio) Close(ctx context.Context) error {
	err := s.loop.Do(ctx, func() {
		if s.closed {
			return
		}
		s.throttle.Flush()
		s.host.Close()
		s.closed = true
	})
	if errors.Is(err, loop.ErrStopped) {
		return nil
	}
	return err
}
