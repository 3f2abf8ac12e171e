// Package dom holds a page's live content tree and records every mutation
// made to it, so observers can mirror the tree to preview clients and
// detect real content changes.
package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/livetemplate/pagepatch/internal/fragment"
)

// DefaultRootID is the id of the root synthesized around content that does
// not consist of exactly one element.
const DefaultRootID = "root"

// Observer receives the records of one mutation batch.
type Observer func(batch []Record)

// Document owns a content root element. It is not safe for concurrent use;
// callers serialize access (the host runs everything on one event loop).
type Document struct {
	root *html.Node

	observers []*observerEntry
	nextID    int

	pending []Record
	depth   int
	origin  string
}

type observerEntry struct {
	id int
	fn Observer
}

// Parse builds a document from serialized page content. Content made of a
// single element becomes the root itself; anything else is wrapped in a
// <div id="root">.
func Parse(content string) *Document {
	return &Document{root: parseRoot(content)}
}

func parseRoot(content string) *html.Node {
	nodes, _ := html.ParseFragment(strings.NewReader(strings.TrimSpace(content)), fragment.ContextElement("body"))

	var elems []*html.Node
	meaningful := 0
	for _, n := range nodes {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
			continue
		}
		meaningful++
		if n.Type == html.ElementNode {
			elems = append(elems, n)
		}
	}
	if meaningful == 1 && len(elems) == 1 && Attr(elems[0], "id") != "" {
		return elems[0]
	}

	root := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: DefaultRootID}},
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root
}

// Root returns the content root element.
func (d *Document) Root() *html.Node {
	return d.root
}

// RootID returns the id of the content root.
func (d *Document) RootID() string {
	return Attr(d.root, "id")
}

// Serialize returns the outer markup of the content root, the form stored
// in Page.Content.
func (d *Document) Serialize() string {
	return OuterHTML(d.root)
}

// Find resolves a CSS selector against the content root. A "#id" query is
// tried as an id lookup first so ids containing selector punctuation still
// match.
func (d *Document) Find(query string) *html.Node {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if strings.HasPrefix(query, "#") {
		if n := d.ElementByID(query[1:]); n != nil {
			return n
		}
	}
	return Query(d.root, query)
}

// ElementByID returns the element carrying id, or nil.
func (d *Document) ElementByID(id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return found
}

// Contains reports whether n is attached under the content root.
func (d *Document) Contains(n *html.Node) bool {
	_, ok := d.Path(n)
	return ok
}

// Path returns the child-index path from the content root to n.
func (d *Document) Path(n *html.Node) ([]int, bool) {
	var rev []int
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			path := make([]int, len(rev))
			for i := range rev {
				path[i] = rev[len(rev)-1-i]
			}
			return path, true
		}
		rev = append(rev, childIndex(cur))
	}
	return nil, false
}

// NodeAt follows a child-index path from the content root.
func (d *Document) NodeAt(path []int) *html.Node {
	n := d.root
	for _, idx := range path {
		c := n.FirstChild
		for i := 0; c != nil && i < idx; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil
		}
		n = c
	}
	return n
}

// ParseFor parses markup as children of parent, honouring the parsing
// context of the parent's tag.
func (d *Document) ParseFor(parent *html.Node, markup string) []*html.Node {
	ctx := "body"
	if parent != nil && parent.Type == html.ElementNode {
		ctx = parent.Data
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragment.ContextElement(ctx))
	if err != nil {
		return nil
	}
	return nodes
}

// ParseElement parses markup that is expected to hold a single element and
// returns that element. Whitespace around it is dropped.
func (d *Document) ParseElement(markup string) *html.Node {
	tag := fragment.RootTag(markup)
	nodes, err := html.ParseFragment(strings.NewReader(strings.TrimSpace(markup)), fragment.ContextFor(tag))
	if err != nil {
		return nil
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

// Observe registers fn for every mutation batch. The returned function
// disconnects it.
func (d *Document) Observe(fn Observer) (disconnect func()) {
	d.nextID++
	id := d.nextID
	d.observers = append(d.observers, &observerEntry{id: id, fn: fn})
	return func() {
		for i, o := range d.observers {
			if o.id == id {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

// Update runs fn as one batch: records produced inside are delivered to
// observers together when the outermost Update returns.
func (d *Document) Update(fn func()) {
	d.begin()
	defer d.end()
	fn()
}

// WithOrigin runs fn with every record tagged with origin.
func (d *Document) WithOrigin(origin string, fn func()) {
	prev := d.origin
	d.origin = origin
	defer func() { d.origin = prev }()
	d.Update(fn)
}

func (d *Document) begin() {
	d.depth++
}

func (d *Document) end() {
	d.depth--
	if d.depth > 0 || len(d.pending) == 0 {
		return
	}
	batch := d.pending
	d.pending = nil

	observers := append([]*observerEntry(nil), d.observers...)
	for _, o := range observers {
		o.fn(batch)
	}
}

func (d *Document) record(r Record) {
	r.Origin = d.origin
	d.pending = append(d.pending, r)
}

// Reset replaces the whole content root with the parsed content.
func (d *Document) Reset(content string) {
	d.begin()
	defer d.end()

	d.root = parseRoot(content)
	d.record(Record{Op: OpReset, Path: []int{}, HTML: d.Serialize(), Target: d.root})
}

// SetInnerHTML replaces the children of n with the parsed markup.
func (d *Document) SetInnerHTML(n *html.Node, markup string) {
	path, ok := d.Path(n)
	if !ok {
		return
	}
	d.begin()
	defer d.end()

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range d.ParseFor(n, markup) {
		n.AppendChild(c)
	}
	d.record(Record{Op: OpInner, Path: path, HTML: InnerHTML(n), Target: n})
}

// InsertAt inserts child under parent before the element sibling at
// position pos. A negative or out-of-range pos appends at the end.
func (d *Document) InsertAt(parent, child *html.Node, pos int) {
	parentPath, ok := d.Path(parent)
	if !ok || child == nil {
		return
	}
	d.begin()
	defer d.end()

	if child.Parent != nil {
		d.detach(child)
	}

	var before *html.Node
	if pos >= 0 {
		before = nthElement(parent, pos)
	}
	parent.InsertBefore(child, before)

	d.record(Record{
		Op:       OpInsert,
		Path:     parentPath,
		Index:    childIndex(child),
		NodeType: nodeType(child),
		HTML:     OuterHTML(child),
		Target:   parent,
		Node:     child,
	})
}

// ReplaceWith swaps old for replacement in place. Replacing the content
// root makes replacement the new root.
func (d *Document) ReplaceWith(old, replacement *html.Node) {
	if replacement == nil {
		return
	}
	if old == d.root {
		d.begin()
		defer d.end()
		if replacement.Parent != nil {
			replacement.Parent.RemoveChild(replacement)
		}
		d.root = replacement
		d.record(Record{Op: OpReset, Path: []int{}, HTML: d.Serialize(), Target: d.root})
		return
	}
	if !d.Contains(old) {
		return
	}
	d.begin()
	defer d.end()

	parent := old.Parent
	parentPath, _ := d.Path(parent)
	idx := childIndex(old)
	if replacement.Parent != nil {
		d.detach(replacement)
		idx = childIndex(old)
	}

	parent.RemoveChild(old)
	d.record(Record{Op: OpRemove, Path: parentPath, Index: idx, NodeType: nodeType(old), Target: parent, Node: old})

	parent.InsertBefore(replacement, nthChild(parent, idx))
	d.record(Record{
		Op:       OpInsert,
		Path:     parentPath,
		Index:    idx,
		NodeType: nodeType(replacement),
		HTML:     OuterHTML(replacement),
		Target:   parent,
		Node:     replacement,
	})
}

// Remove detaches n. The content root cannot be removed.
func (d *Document) Remove(n *html.Node) {
	if n == d.root || !d.Contains(n) {
		return
	}
	d.begin()
	defer d.end()
	d.detach(n)
}

func (d *Document) detach(n *html.Node) {
	parent := n.Parent
	if parentPath, ok := d.Path(parent); ok {
		d.record(Record{
			Op:       OpRemove,
			Path:     parentPath,
			Index:    childIndex(n),
			NodeType: nodeType(n),
			Target:   parent,
			Node:     n,
		})
	}
	parent.RemoveChild(n)
}

// Move repositions n among its element siblings.
func (d *Document) Move(n *html.Node, pos int) {
	if n == d.root || !d.Contains(n) {
		return
	}
	parent := n.Parent
	d.begin()
	defer d.end()
	d.detach(n)
	d.InsertAt(parent, n, pos)
}

// SetAttr sets an attribute on element n.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	path, ok := d.Path(n)
	if !ok || n.Type != html.ElementNode {
		return
	}
	d.begin()
	defer d.end()

	old := ""
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			old = n.Attr[i].Val
			if old == val {
				return
			}
			n.Attr[i].Val = val
			d.record(Record{Op: OpAttr, Path: path, Name: key, Value: val, OldValue: old, Target: n})
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	d.record(Record{Op: OpAttr, Path: path, Name: key, Value: val, OldValue: old, Target: n})
}

// RemoveAttr removes an attribute from element n.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	path, ok := d.Path(n)
	if !ok {
		return
	}
	for i, a := range n.Attr {
		if a.Key == key {
			d.begin()
			n.Attr = append(n.Attr[:i:i], n.Attr[i+1:]...)
			d.record(Record{Op: OpAttrDel, Path: path, Name: key, OldValue: a.Val, Target: n})
			d.end()
			return
		}
	}
}

// SetText changes the data of text node n.
func (d *Document) SetText(n *html.Node, text string) {
	path, ok := d.Path(n)
	if !ok || n.Type != html.TextNode || n.Data == text {
		return
	}
	d.begin()
	defer d.end()

	old := n.Data
	n.Data = text
	d.record(Record{Op: OpText, Path: path, Value: text, OldValue: old, Target: n})
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML renders n itself.
func OuterHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// ElementIndex returns n's position among its element siblings.
func ElementIndex(n *html.Node) int {
	if n.Parent == nil {
		return 0
	}
	idx := 0
	for c := n.Parent.FirstChild; c != nil && c != n; c = c.NextSibling {
		if c.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

// IsElement reports whether n is an element with the given tag.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

func childIndex(n *html.Node) int {
	idx := 0
	for c := n.PrevSibling; c != nil; c = c.PrevSibling {
		idx++
	}
	return idx
}

func nthChild(parent *html.Node, idx int) *html.Node {
	c := parent.FirstChild
	for i := 0; c != nil && i < idx; i++ {
		c = c.NextSibling
	}
	return c
}

func nthElement(parent *html.Node, pos int) *html.Node {
	i := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if i == pos {
			return c
		}
		i++
	}
	return nil
}
