// Package editor applies patch primitives to a page's live content.
//
// A Controller never holds on to a document or surface: it asks its
// Resolver for them on every call, so a controller built once keeps
// targeting the live page as the active page changes. Every operation is a
// silent no-op when its target cannot be resolved.
package editor

import (
	"golang.org/x/net/html"

	"github.com/livetemplate/pagepatch/internal/dom"
	"github.com/livetemplate/pagepatch/internal/fragment"
)

// End is the position meaning "unspecified, append at end".
const End = -1

// Editor is the capability interface handed to the orchestration layer.
type Editor interface {
	SetContent(markup string)
	Append(parentQuery, markup string, sort int)
	AppendContent(parentQuery, markup string, sort int)
	UpdateContent(query, markup string, sort int)
	DeleteContent(query string)
	GetContent(query string) string
	ReplaceWith(query, markup string, sort int)
	ScrollToElement(query string)
	Refresh()
}

// Surface is the part of a render surface the controller drives.
type Surface interface {
	Reload()
	ExecScript(n *html.Node)
	DispatchContentReady()
	ScrollIntoView(n *html.Node)
}

// Resolver finds the live document and surface of a page. An empty page
// name means the active page. ok is false while the page is not mounted.
type Resolver interface {
	Resolve(page string) (doc *dom.Document, s Surface, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(page string) (*dom.Document, Surface, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(page string) (*dom.Document, Surface, bool) {
	return f(page)
}

// Controller implements Editor against a Resolver.
type Controller struct {
	resolver Resolver
	page     string
}

var _ Editor = (*Controller)(nil)

// New creates a controller targeting whichever page is active at call time.
func New(r Resolver) *Controller {
	return &Controller{resolver: r}
}

// ForPage returns a controller pinned to the named page.
func (c *Controller) ForPage(name string) *Controller {
	return &Controller{resolver: c.resolver, page: name}
}

// Page returns the pinned page name, or "" for the active page.
func (c *Controller) Page() string { return c.page }

func (c *Controller) resolve() (*dom.Document, Surface, bool) {
	doc, s, ok := c.resolver.Resolve(c.page)
	if !ok || doc == nil || doc.Root() == nil {
		return nil, nil, false
	}
	return doc, s, true
}

// SetContent replaces the inner markup of the content root.
func (c *Controller) SetContent(markup string) {
	doc, _, ok := c.resolve()
	if !ok {
		return
	}
	doc.SetInnerHTML(doc.Root(), markup)
}

// Append inserts markup as a child of the element matched by parentQuery,
// or of the content root when nothing matches.
func (c *Controller) Append(parentQuery, markup string, sort int) {
	doc, _, ok := c.resolve()
	if !ok {
		return
	}
	c.insert(doc, parentQuery, markup, sort)
}

func (c *Controller) insert(doc *dom.Document, parentQuery, markup string, sort int) *html.Node {
	el := doc.ParseElement(markup)
	if el == nil {
		return nil
	}
	parent := doc.Find(parentQuery)
	if parent == nil {
		parent = doc.Root()
	}
	doc.InsertAt(parent, el, sort)
	return el
}

// ReplaceWith swaps the element matched by query for markup, then moves it
// to sort when that differs from its current position.
func (c *Controller) ReplaceWith(query, markup string, sort int) {
	doc, _, ok := c.resolve()
	if !ok {
		return
	}
	c.replace(doc, doc.Find(query), markup, sort)
}

func (c *Controller) replace(doc *dom.Document, old *html.Node, markup string, sort int) *html.Node {
	if old == nil {
		return nil
	}
	el := doc.ParseElement(markup)
	if el == nil {
		return nil
	}
	doc.Update(func() {
		doc.ReplaceWith(old, el)
		if sort >= 0 && el != doc.Root() && dom.ElementIndex(el) != sort {
			doc.Move(el, sort)
		}
	})
	return el
}

// AppendContent is the add handler. Adding an element whose id already
// exists replaces that element instead, so a repeated add is an update.
func (c *Controller) AppendContent(parentQuery, markup string, sort int) {
	doc, s, ok := c.resolve()
	if !ok {
		return
	}
	script := fragment.IsScript(markup)

	if existing := doc.ElementByID(fragment.RootID(markup)); existing != nil {
		c.replace(doc, existing, markup, sort)
		if script && s != nil {
			s.Reload()
		}
		return
	}

	el := c.insert(doc, parentQuery, markup, sort)
	if el != nil && dom.IsElement(el, "script") && s != nil {
		s.ExecScript(el)
		s.DispatchContentReady()
	}
}

// UpdateContent is the update handler. Replaced scripts do not run again
// on their own, so a script update reloads the surface.
func (c *Controller) UpdateContent(query, markup string, sort int) {
	doc, s, ok := c.resolve()
	if !ok {
		return
	}
	if c.replace(doc, doc.Find(query), markup, sort) == nil {
		return
	}
	if fragment.IsScript(markup) && s != nil {
		s.Reload()
	}
}

// DeleteContent removes the element matched by query.
func (c *Controller) DeleteContent(query string) {
	doc, s, ok := c.resolve()
	if !ok {
		return
	}
	n := doc.Find(query)
	if n == nil || n == doc.Root() {
		return
	}
	script := dom.IsElement(n, "script")
	doc.Remove(n)
	if script && s != nil {
		s.Reload()
	}
}

// GetContent returns the inner markup of the element matched by query, or
// of the content root for an empty query. It returns "" when nothing
// matches.
func (c *Controller) GetContent(query string) string {
	doc, _, ok := c.resolve()
	if !ok {
		return ""
	}
	if query == "" {
		return dom.InnerHTML(doc.Root())
	}
	return dom.InnerHTML(doc.Find(query))
}

// ScrollToElement smooth-scrolls the matched element into view.
func (c *Controller) ScrollToElement(query string) {
	doc, s, ok := c.resolve()
	if !ok || s == nil {
		return
	}
	if n := doc.Find(query); n != nil {
		s.ScrollIntoView(n)
	}
}

// Refresh reloads the surface from scratch.
func (c *Controller) Refresh() {
	_, s, ok := c.resolve()
	if !ok || s == nil {
		return
	}
	s.Reload()
}
