// Package surface implements the per-page render surface: a durable live
// document that is mounted once, toggled between active and inactive, and
// watched for manual edits that are fed back as page content.
//
// All methods must be called from the event loop goroutine.
package surface

import (
	"log/slog"
	"time"

	"golang.org/x/net/html"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/dom"
	"github.com/livetemplate/pagepatch/internal/loop"
)

// EditableAttr is flipped when an element enters or leaves direct-edit
// mode. Mutations touching only this attribute are not content edits.
const EditableAttr = "contenteditable"

// DefaultSettleDelay is the wait between a selection change and the
// autosave attempt.
const DefaultSettleDelay = time.Second

// State is the lifecycle state of a surface.
type State int

const (
	Unmounted State = iota
	Inactive
	Active
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Inactive:
		return "mounted-inactive"
	case Active:
		return "mounted-active"
	}
	return "unknown"
}

// Options configures a surface.
type Options struct {
	SettleDelay time.Duration

	// OnChange fires when a mutation batch really changed the content.
	OnChange func(page, content string)
	// OnSave fires on autosave and on the save shortcut.
	OnSave func(page, content string)

	Sink   Sink
	Logger *slog.Logger
}

// Surface is one page's rendering context.
type Surface struct {
	page  *pagepatch.Page
	loop  *loop.Loop
	opts  Options
	state State

	doc      *dom.Document
	snapshot string
	unsaved  bool
	compare  bool // a snapshot comparison is queued

	selected *html.Node
	settle   *loop.Timer

	detach   func() // change detector, connected only while active
	unmirror func()

	revision   int
	scriptRuns []string
	readyCount int
}

// New creates an unmounted surface for page.
func New(l *loop.Loop, page *pagepatch.Page, opts Options) *Surface {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Surface{
		page: page,
		loop: l,
		opts: opts,
	}
}

// Name returns the page name.
func (s *Surface) Name() string { return s.page.Name }

// State returns the lifecycle state.
func (s *Surface) State() State { return s.state }

// Document returns the live document, or nil before mount.
func (s *Surface) Document() *dom.Document {
	if s.state == Unmounted {
		return nil
	}
	return s.doc
}

// Mount loads the stored content, records the baseline snapshot and runs
// the embedded scripts once. Mounting an already mounted surface is a no-op.
func (s *Surface) Mount() {
	if s.state != Unmounted {
		return
	}
	s.doc = dom.Parse(s.page.Content)
	s.snapshot = s.content()
	s.unsaved = false
	s.unmirror = s.doc.Observe(s.mirror)
	s.state = Inactive

	s.runScripts()
	s.opts.Logger.Debug("surface: mounted", "page", s.page.Name, "scripts", len(s.scriptRuns))
}

// Activate makes this the surface the user sees: the change detector is
// attached and the save shortcut is honoured.
func (s *Surface) Activate() {
	if s.state == Unmounted {
		s.Mount()
	}
	if s.state == Active {
		return
	}
	s.detach = s.doc.Observe(s.detect)
	s.state = Active
	s.opts.Logger.Debug("surface: activated", "page", s.page.Name)
}

// Deactivate hides the surface without tearing it down. The change
// detector is disconnected and the pending settle timer is cleared.
func (s *Surface) Deactivate() {
	if s.state != Active {
		return
	}
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	s.settle.Stop()
	s.settle = nil
	s.state = Inactive
	s.opts.Logger.Debug("surface: deactivated", "page", s.page.Name)
}

// Close disconnects every observer and stops the settle timer. The surface
// keeps its content but no longer mirrors or detects changes.
func (s *Surface) Close() {
	s.Deactivate()
	if s.unmirror != nil {
		s.unmirror()
		s.unmirror = nil
	}
}

// Load replaces the content with freshly loaded initial content and resets
// the snapshot, so the replacement is not reported as an edit.
func (s *Surface) Load(content string) {
	s.page.Content = content
	if s.state == Unmounted {
		return
	}
	s.selected = nil
	s.doc.Reset(content)
	s.snapshot = s.content()
	s.unsaved = false
	s.runScripts()
}

// Page returns the page with its content set to the live content.
func (s *Surface) Page() *pagepatch.Page {
	p := *s.page
	if s.state != Unmounted {
		p.Content = s.content()
	}
	return &p
}

// Head returns the auxiliary head markup injected at mount.
func (s *Surface) Head() string { return s.page.Head }

// Title returns the page title.
func (s *Surface) Title() string { return s.page.Title }

// Unsaved reports whether changes are pending a save.
func (s *Surface) Unsaved() bool { return s.unsaved }

// Snapshot returns the last observed content.
func (s *Surface) Snapshot() string { return s.snapshot }

// Revision counts forced reloads.
func (s *Surface) Revision() int { return s.revision }

// ScriptRuns lists the ids (or tag paths) of scripts executed so far.
func (s *Surface) ScriptRuns() []string {
	return append([]string(nil), s.scriptRuns...)
}

// ReadySignals counts synthetic content-ready dispatches.
func (s *Surface) ReadySignals() int { return s.readyCount }

// Selected returns the element in direct-edit mode, if any.
func (s *Surface) Selected() *html.Node { return s.selected }

// content serializes the document without the edit-mode attribute of the
// selected element.
func (s *Surface) content() string {
	sel := s.selected
	if sel == nil || !dom.HasAttr(sel, EditableAttr) {
		return s.doc.Serialize()
	}
	saved := sel.Attr
	stripped := make([]html.Attribute, 0, len(saved))
	for _, a := range saved {
		if a.Key != EditableAttr {
			stripped = append(stripped, a)
		}
	}
	sel.Attr = stripped
	out := s.doc.Serialize()
	sel.Attr = saved
	return out
}

// detect is the reverse change detector.
func (s *Surface) detect(batch []dom.Record) {
	if onlyEditableToggles(batch) {
		return
	}
	if s.compare {
		return
	}
	s.compare = true
	s.loop.Defer(s.compareSnapshot)
}

func onlyEditableToggles(batch []dom.Record) bool {
	for _, r := range batch {
		if r.Kind() != dom.KindAttributes || r.Name != EditableAttr {
			return false
		}
	}
	return true
}

func (s *Surface) compareSnapshot() {
	s.compare = false
	if s.state == Unmounted {
		return
	}
	cur := s.content()
	if cur == s.snapshot {
		return
	}
	s.snapshot = cur
	s.unsaved = true
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.page.Name, cur)
	}
}

// mirror forwards every mutation batch to the preview clients.
func (s *Surface) mirror(batch []dom.Record) {
	if s.opts.Sink == nil {
		return
	}
	for _, r := range batch {
		s.opts.Sink.Send(commandFromRecord(s.page.Name, r), r.Origin)
	}
}

func (s *Surface) send(cmd Command) {
	if s.opts.Sink == nil {
		return
	}
	cmd.Page = s.page.Name
	s.opts.Sink.Send(cmd, "")
}

// Select puts n into direct-edit mode and takes the previous selection out
// of it. Only the active surface accepts selections.
func (s *Surface) Select(n *html.Node) bool {
	if s.state != Active || n == nil || !s.doc.Contains(n) || n.Type != html.ElementNode {
		return false
	}
	if n == s.selected {
		return true
	}
	s.changeSelection(n)
	return true
}

// SelectPath selects the element at a child-index path, as reported by a
// preview client.
func (s *Surface) SelectPath(path []int) bool {
	if s.state != Active {
		return false
	}
	return s.Select(s.doc.NodeAt(path))
}

// Deselect leaves direct-edit mode.
func (s *Surface) Deselect() bool {
	if s.state != Active || s.selected == nil {
		return false
	}
	s.changeSelection(nil)
	return true
}

func (s *Surface) changeSelection(n *html.Node) {
	if prev := s.selected; prev != nil && s.doc.Contains(prev) {
		s.doc.RemoveAttr(prev, EditableAttr)
		if path, ok := s.doc.Path(prev); ok {
			s.send(Command{Op: OpBlur, Path: path})
		}
	}
	s.selected = n
	if n != nil {
		s.doc.SetAttr(n, EditableAttr, "true")
		if path, ok := s.doc.Path(n); ok {
			s.send(Command{Op: OpFocus, Path: path})
		}
	}

	s.settle.Stop()
	s.settle = s.loop.AfterFunc(s.opts.SettleDelay, s.autosave)
}

// SaveShortcut handles modifier+S: it attempts the save immediately,
// skipping the settle delay. It reports whether the shortcut was bound.
func (s *Surface) SaveShortcut() bool {
	if s.state != Active {
		return false
	}
	s.settle.Stop()
	s.settle = nil
	s.autosave()
	return true
}

func (s *Surface) autosave() {
	if !s.unsaved {
		return
	}
	content := s.content()
	s.unsaved = false
	s.opts.Logger.Debug("surface: saving", "page", s.page.Name, "bytes", len(content))
	if s.opts.OnSave != nil {
		s.opts.OnSave(s.page.Name, content)
	}
}

// Edit applies a manual edit coming from a preview client: the children of
// the element at path are replaced with markup. origin names the client so
// the resulting commands are not echoed back to it.
func (s *Surface) Edit(path []int, markup, origin string) bool {
	if s.state != Active {
		return false
	}
	n := s.doc.NodeAt(path)
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	s.doc.WithOrigin(origin, func() {
		s.doc.SetInnerHTML(n, markup)
	})
	return true
}

// Reload forces the preview to reload from scratch: selection is dropped,
// scripts run again and the revision is bumped.
func (s *Surface) Reload() {
	if s.state == Unmounted {
		return
	}
	if s.selected != nil {
		s.doc.RemoveAttr(s.selected, EditableAttr)
		s.selected = nil
	}
	s.revision++
	s.send(Command{Op: OpReload, Revision: s.revision})
	s.runScripts()
}

// ExecScript runs a freshly inserted script element in place.
func (s *Surface) ExecScript(n *html.Node) {
	if s.state == Unmounted || !dom.IsElement(n, "script") {
		return
	}
	s.scriptRuns = append(s.scriptRuns, scriptName(n))
	if path, ok := s.doc.Path(n); ok {
		s.send(Command{Op: OpExec, Path: path, HTML: dom.OuterHTML(n)})
	}
}

// DispatchContentReady signals content-ready inside the surface so code
// that waits for load completion still runs after a late script insert.
func (s *Surface) DispatchContentReady() {
	if s.state == Unmounted {
		return
	}
	s.readyCount++
	s.send(Command{Op: OpReady})
}

// ScrollIntoView smooth-scrolls n into view in the previews.
func (s *Surface) ScrollIntoView(n *html.Node) {
	if s.state == Unmounted {
		return
	}
	if path, ok := s.doc.Path(n); ok {
		s.send(Command{Op: OpScroll, Path: path})
	}
}

// runScripts records one execution of every script in the document. The
// preview clients execute them when they render the document.
func (s *Surface) runScripts() {
	for _, n := range dom.QueryAll(s.doc.Root(), "script") {
		s.scriptRuns = append(s.scriptRuns, scriptName(n))
	}
}

func scriptName(n *html.Node) string {
	if id := dom.Attr(n, "id"); id != "" {
		return id
	}
	if src := dom.Attr(n, "src"); src != "" {
		return src
	}
	return "script"
}
