package surface

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/dom"
	"github.com/livetemplate/pagepatch/internal/loop"
)

type recorder struct {
	mu      sync.Mutex
	changes []string
	saves   []string
	cmds    []Command
	skips   []string
}

func (r *recorder) onChange(_, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, content)
}

func (r *recorder) onSave(_, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, content)
}

func (r *recorder) Send(cmd Command, skip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	r.skips = append(r.skips, skip)
}

func (r *recorder) savesLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func setup(t *testing.T, content string, settle time.Duration) (*loop.Loop, *Surface, *recorder) {
	t.Helper()
	l := loop.New(nil)
	l.Start()
	t.Cleanup(l.Stop)

	rec := &recorder{}
	s := New(l, &pagepatch.Page{Name: "home", Content: content}, Options{
		SettleDelay: settle,
		OnChange:    rec.onChange,
		OnSave:      rec.onSave,
		Sink:        rec,
	})
	return l, s, rec
}

// on runs fn on the loop and then waits one more tick so microtasks queued
// by fn have run.
func on(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	require.NoError(t, l.Do(context.Background(), fn))
	require.NoError(t, l.Do(context.Background(), func() {}))
}

func TestLifecycle(t *testing.T) {
	l, s, _ := setup(t, `<div id="root"><script id="init">x=1</script></div>`, 0)

	on(t, l, func() {
		assert.Equal(t, Unmounted, s.State())
		assert.Nil(t, s.Document())

		s.Mount()
		assert.Equal(t, Inactive, s.State())
		assert.Equal(t, []string{"init"}, s.ScriptRuns())

		s.Mount()
		assert.Len(t, s.ScriptRuns(), 1, "mount runs scripts once")

		s.Activate()
		assert.Equal(t, Active, s.State())
		s.Deactivate()
		assert.Equal(t, Inactive, s.State())
		assert.Equal(t, "mounted-inactive", s.State().String())
	})
}

func TestEditableToggleIsIgnored(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">hello</p></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		require.True(t, s.Select(s.Document().Find("#p")))
		require.True(t, s.Deselect())
	})
	assert.Empty(t, rec.changes)
	assert.False(t, s.Unsaved())
}

func TestRealEditFiresOnceWithCurrentContent(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">hello</p></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		doc := s.Document()
		p := doc.Find("#p")
		require.True(t, s.Select(p))
		doc.SetText(p.FirstChild, "hello world")
		doc.SetAttr(p, "class", "lead")
	})

	require.Len(t, rec.changes, 1)
	assert.Equal(t, `<div id="root"><p id="p" class="lead">hello world</p></div>`, rec.changes[0])
	assert.Equal(t, rec.changes[0], s.Snapshot())
	assert.True(t, s.Unsaved())
}

func TestNoChangeWhenContentMatchesSnapshot(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		p := s.Document().Find("#p")
		s.Document().SetText(p.FirstChild, "b")
		s.Document().SetText(p.FirstChild, "a")
	})
	assert.Empty(t, rec.changes)
}

func TestInactiveSurfaceDetectsNothing(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, time.Hour)

	on(t, l, func() {
		s.Mount()
		p := s.Document().Find("#p")
		s.Document().SetText(p.FirstChild, "b")
		assert.False(t, s.Select(p))
		assert.False(t, s.SaveShortcut())
	})
	assert.Empty(t, rec.changes)
}

func TestAutosaveAfterSettleDelay(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, 20*time.Millisecond)

	on(t, l, func() {
		s.Activate()
		p := s.Document().Find("#p")
		s.Select(p)
		s.Edit([]int{0}, "typed", "client-1")
	})
	require.Len(t, rec.changes, 1)

	require.Eventually(t, func() bool { return rec.savesLen() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `<div id="root"><p id="p">typed</p></div>`, rec.saves[0])
	on(t, l, func() { assert.False(t, s.Unsaved()) })
}

func TestAutosaveSkippedWithoutChanges(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, 10*time.Millisecond)

	on(t, l, func() {
		s.Activate()
		s.Select(s.Document().Find("#p"))
	})
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, rec.savesLen())
}

func TestSaveShortcutBypassesDelay(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		s.Edit([]int{0}, "b", "")
	})
	on(t, l, func() {
		require.True(t, s.SaveShortcut())
	})
	require.Len(t, rec.saves, 1)
	assert.Equal(t, `<div id="root"><p id="p">b</p></div>`, rec.saves[0])
}

func TestDeactivateClearsSettleTimer(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, 20*time.Millisecond)

	on(t, l, func() {
		s.Activate()
		s.Select(s.Document().Find("#p"))
		s.Edit([]int{0}, "b", "")
	})
	on(t, l, func() { s.Deactivate() })
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.savesLen())
	on(t, l, func() { assert.True(t, s.Unsaved()) })
}

func TestSingleSelection(t *testing.T) {
	l, s, _ := setup(t, `<div id="root"><p id="a">a</p><p id="b">b</p></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		doc := s.Document()
		a, b := doc.Find("#a"), doc.Find("#b")
		s.Select(a)
		s.Select(b)
		assert.False(t, dom.HasAttr(a, EditableAttr))
		assert.Equal(t, "true", dom.Attr(b, EditableAttr))
		assert.Equal(t, b, s.Selected())
		assert.NotContains(t, s.Page().Content, EditableAttr)
	})
}

func TestMirrorSkipsOrigin(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><p id="p">a</p></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		s.Edit([]int{0}, "b", "client-1")
	})

	require.NotEmpty(t, rec.cmds)
	last := len(rec.cmds) - 1
	assert.Equal(t, string(dom.OpInner), rec.cmds[last].Op)
	assert.Equal(t, "home", rec.cmds[last].Page)
	assert.Equal(t, []int{0}, rec.cmds[last].Path)
	assert.Equal(t, "client-1", rec.skips[last])
}

func TestLoadResetsSnapshot(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		s.Load(`<div id="root"><h1>fresh</h1></div>`)
	})
	assert.Empty(t, rec.changes)
	assert.Equal(t, `<div id="root"><h1>fresh</h1></div>`, s.Snapshot())
	assert.False(t, s.Unsaved())
}

func TestReloadBumpsRevisionAndRerunsScripts(t *testing.T) {
	l, s, rec := setup(t, `<div id="root"><script id="s">1</script></div>`, time.Hour)

	on(t, l, func() {
		s.Activate()
		s.Reload()
		s.DispatchContentReady()
	})
	assert.Equal(t, 1, s.Revision())
	assert.Equal(t, []string{"s", "s"}, s.ScriptRuns())
	assert.Equal(t, 1, s.ReadySignals())

	var ops []string
	for _, c := range rec.cmds {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{OpReload, OpReady}, ops)
}
