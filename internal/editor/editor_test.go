package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/livetemplate/pagepatch/internal/dom"
)

type fakeSurface struct {
	reloads  int
	execs    []string
	ready    int
	scrolled []string
}

func (f *fakeSurface) Reload()                 { f.reloads++ }
func (f *fakeSurface) ExecScript(n *html.Node) { f.execs = append(f.execs, dom.Attr(n, "id")) }
func (f *fakeSurface) DispatchContentReady()   { f.ready++ }
func (f *fakeSurface) ScrollIntoView(n *html.Node) {
	f.scrolled = append(f.scrolled, dom.Attr(n, "id"))
}

type fakeHost struct {
	active string
	docs   map[string]*dom.Document
	surf   map[string]*fakeSurface
}

func newHost(pages map[string]string, active string) *fakeHost {
	h := &fakeHost{active: active, docs: map[string]*dom.Document{}, surf: map[string]*fakeSurface{}}
	for name, content := range pages {
		h.docs[name] = dom.Parse(content)
		h.surf[name] = &fakeSurface{}
	}
	return h
}

func (h *fakeHost) Resolve(page string) (*dom.Document, Surface, bool) {
	if page == "" {
		page = h.active
	}
	doc, ok := h.docs[page]
	if !ok {
		return nil, nil, false
	}
	return doc, h.surf[page], true
}

func TestEndToEndScenario(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"></div>`}, "home")
	ed := New(h)

	add := `<section id="s1">Hello</section>`
	ed.AppendContent("#root", add, 0)
	assert.Equal(t, add, ed.GetContent(""))

	ed.AppendContent("#root", add, 0)
	assert.Equal(t, add, ed.GetContent(""), "repeated add must not duplicate")

	ed.UpdateContent("#s1", `<section id="s1">Hi</section>`, End)
	assert.Equal(t, "Hi", ed.GetContent("#s1"))

	ed.DeleteContent("#s1")
	assert.Equal(t, "", ed.GetContent(""))
	assert.Zero(t, h.surf["home"].reloads)
}

func TestAddIsIdempotent(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"><p id="keep">k</p></div>`}, "home")
	ed := New(h)

	frag := `<article id="a"><h2>T</h2><p>body</p></article>`
	ed.AppendContent("#root", frag, End)
	once := h.docs["home"].Serialize()

	ed.AppendContent("#root", frag, End)
	assert.Equal(t, once, h.docs["home"].Serialize())
}

func TestSortOrdersSiblings(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"></div>`}, "home")
	ed := New(h)

	ed.AppendContent("#root", `<div id="item-2">2</div>`, 2)
	ed.AppendContent("#root", `<div id="item-0">0</div>`, 0)
	ed.AppendContent("#root", `<div id="item-1">1</div>`, 1)

	assert.Equal(t, `<div id="item-0">0</div><div id="item-1">1</div><div id="item-2">2</div>`, ed.GetContent(""))
}

func TestReplaceWithRepositions(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"><p id="a">a</p><p id="b">b</p><p id="c">c</p></div>`}, "home")
	ed := New(h)

	ed.ReplaceWith("#c", `<p id="c">C</p>`, 0)
	assert.Equal(t, `<p id="c">C</p><p id="a">a</p><p id="b">b</p>`, ed.GetContent(""))

	ed.ReplaceWith("#a", `<p id="a">A</p>`, End)
	assert.Equal(t, `<p id="c">C</p><p id="a">A</p><p id="b">b</p>`, ed.GetContent(""))
}

func TestAppendFallsBackToRoot(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"></div>`}, "home")
	ed := New(h)

	ed.Append("#nowhere", `<p id="x">x</p>`, End)
	assert.Equal(t, `<p id="x">x</p>`, ed.GetContent(""))
}

func TestAppendUnderCombinatorParent(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"><ul class="items"><li id="a">a</li></ul></div>`}, "home")
	ed := New(h)

	ed.Append("#root > ul.items", `<li id="b">b</li>`, End)
	assert.Equal(t, `<li id="a">a</li><li id="b">b</li>`, ed.GetContent("#root > ul"))
	assert.Equal(t, "a", ed.GetContent("li:first-child"))
}

func TestScriptHandling(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"></div>`}, "home")
	ed := New(h)
	s := h.surf["home"]

	ed.AppendContent("#root", `<script id="js">init()</script>`, End)
	assert.Equal(t, []string{"js"}, s.execs)
	assert.Equal(t, 1, s.ready)
	assert.Zero(t, s.reloads)

	ed.AppendContent("#root", `<script id="js">init2()</script>`, End)
	assert.Equal(t, 1, s.reloads)
	assert.Len(t, s.execs, 1)

	ed.UpdateContent("#js", `<script id="js">init3()</script>`, End)
	assert.Equal(t, 2, s.reloads)

	ed.DeleteContent("#js")
	assert.Equal(t, 3, s.reloads)
	assert.Equal(t, "", ed.GetContent(""))
}

func TestSetContentScrollAndRefresh(t *testing.T) {
	h := newHost(map[string]string{"home": `<div id="root"><p>old</p></div>`}, "home")
	ed := New(h)

	ed.SetContent(`<h1 id="t">new</h1>`)
	assert.Equal(t, `<h1 id="t">new</h1>`, ed.GetContent(""))

	ed.ScrollToElement("#t")
	ed.ScrollToElement("#missing")
	assert.Equal(t, []string{"t"}, h.surf["home"].scrolled)

	ed.Refresh()
	assert.Equal(t, 1, h.surf["home"].reloads)
}

func TestUnresolvedTargetsAreNoops(t *testing.T) {
	h := newHost(map[string]string{}, "")
	ed := New(h)

	assert.NotPanics(t, func() {
		ed.SetContent("<p>x</p>")
		ed.Append("", `<p id="x"></p>`, End)
		ed.AppendContent("", `<p id="x"></p>`, End)
		ed.UpdateContent("#x", `<p id="x"></p>`, End)
		ed.DeleteContent("#x")
		ed.ReplaceWith("#x", `<p id="x"></p>`, End)
		ed.ScrollToElement("#x")
		ed.Refresh()
	})
	assert.Equal(t, "", ed.GetContent(""))

	h2 := newHost(map[string]string{"home": `<div id="root"></div>`}, "home")
	ed2 := New(h2)
	ed2.UpdateContent("#missing", `<p id="missing">x</p>`, End)
	ed2.DeleteContent("#missing")
	assert.Equal(t, "", ed2.GetContent("#missing"))
	assert.Equal(t, "", ed2.GetContent(""))
}

func TestLateBindingFollowsActivePage(t *testing.T) {
	h := newHost(map[string]string{
		"a": `<div id="root"></div>`,
		"b": `<div id="root"></div>`,
	}, "a")
	ed := New(h)
	pinned := ed.ForPage("a")

	h.active = "b"
	ed.AppendContent("#root", `<p id="p">to b</p>`, End)
	pinned.AppendContent("#root", `<p id="q">to a</p>`, End)

	assert.Equal(t, `<p id="p">to b</p>`, dom.InnerHTML(h.docs["b"].Root()))
	assert.Equal(t, `<p id="q">to a</p>`, dom.InnerHTML(h.docs["a"].Root()))
	require.Equal(t, "a", pinned.Page())
}
