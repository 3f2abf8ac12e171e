package studio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/editor"
	"github.com/livetemplate/pagepatch/internal/loop"
	"github.com/livetemplate/pagepatch/internal/metrics"
)

func intp(v int) *int { return &v }

func newStudio(t *testing.T, window time.Duration, hooks Hooks) (*Studio, *metrics.Metrics) {
	t.Helper()
	l := loop.New(nil)
	l.Start()
	t.Cleanup(l.Stop)

	m := metrics.New(prometheus.NewRegistry())
	s := New(l, hooks, Options{Window: window, SettleDelay: time.Hour, Metrics: m})

	p := pagepatch.NewProject()
	p.Add(&pagepatch.Page{Name: "home", Content: `<div id="root"></div>`})
	p.Add(&pagepatch.Page{Name: "about", Content: `<div id="root"></div>`})
	require.NoError(t, s.Start(context.Background(), p))
	return s, m
}

func content(t *testing.T, s *Studio, page, query string) string {
	t.Helper()
	var out string
	require.NoError(t, s.Loop().Do(context.Background(), func() {
		out = s.Editor().ForPage(page).GetContent(query)
	}))
	return out
}

func section(id, body string) pagepatch.Section {
	return pagepatch.Section{
		PageName:  "home",
		Action:    pagepatch.ActionAdd,
		DomID:     "root",
		RootDomID: id,
		Content:   fmt.Sprintf(`<section id="%s">%s</section>`, id, body),
	}
}

func TestBurstAppliesLastSection(t *testing.T) {
	s, m := newStudio(t, 200*time.Millisecond, Hooks{})
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		require.NoError(t, s.Push(ctx, section("s1", fmt.Sprintf("v%d", i))))
	}
	require.Eventually(t, func() bool {
		return content(t, s, "home", "#s1") == "v10"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, `<section id="s1">v10</section>`, content(t, s, "home", ""))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.SectionsCoalesced))
}

func TestDifferentUnitFlushesPending(t *testing.T) {
	s, _ := newStudio(t, time.Hour, Hooks{})
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, section("s1", "one")))
	require.NoError(t, s.Push(ctx, section("s2", "two")))

	assert.Equal(t, "one", content(t, s, "home", "#s1"), "switching units flushes the pending section")
	assert.Equal(t, "", content(t, s, "home", "#s2"))

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, "two", content(t, s, "home", "#s2"), "close flushes synchronously")
	assert.ErrorIs(t, s.Push(ctx, section("s3", "x")), ErrClosed)
}

func TestIncompleteFragmentsAreNotApplied(t *testing.T) {
	s, m := newStudio(t, time.Millisecond, Hooks{})
	ctx := context.Background()

	full := `<section id="s1">Hello</section>`
	for i := 1; i < len(full); i++ {
		sec := section("s1", "")
		sec.Content = full[:i]
		require.ErrorIs(t, s.Push(ctx, sec), ErrIncomplete, "prefix %q", full[:i])
	}
	require.NoError(t, s.Push(ctx, section("s1", "Hello")))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, full, content(t, s, "home", ""))
	assert.Equal(t, float64(len(full)-1), testutil.ToFloat64(m.SectionsRejected.WithLabelValues("incomplete")))
}

func TestStructuralErrors(t *testing.T) {
	s, _ := newStudio(t, time.Millisecond, Hooks{})
	ctx := context.Background()

	assert.Error(t, s.Push(ctx, pagepatch.Section{Action: pagepatch.ActionAdd}))

	sec := section("s1", "x")
	sec.RootDomID = "other"
	assert.Error(t, s.Push(ctx, sec))
}

func TestQueuedSectionKeepsItsPage(t *testing.T) {
	s, _ := newStudio(t, time.Hour, Hooks{})
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, section("s1", "for home")))
	require.NoError(t, s.Loop().Do(ctx, func() { s.Host().SetActive("about") }))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, "for home", content(t, s, "home", "#s1"))
	assert.Equal(t, "", content(t, s, "about", ""))
}

func TestUnknownPageIsCreated(t *testing.T) {
	s, _ := newStudio(t, time.Millisecond, Hooks{})
	ctx := context.Background()

	sec := section("s1", "x")
	sec.PageName = "pricing"
	require.NoError(t, s.Push(ctx, sec))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, "x", content(t, s, "pricing", "#s1"))
}

func TestSortAndRemoveThroughStudio(t *testing.T) {
	s, _ := newStudio(t, time.Hour, Hooks{})
	ctx := context.Background()

	for _, i := range []int{2, 0, 1} {
		sec := section(fmt.Sprintf("s%d", i), fmt.Sprint(i))
		sec.Sort = intp(i)
		require.NoError(t, s.Push(ctx, sec))
	}
	require.NoError(t, s.Loop().Do(ctx, s.Flush))
	assert.Equal(t, `<section id="s0">0</section><section id="s1">1</section><section id="s2">2</section>`, content(t, s, "home", ""))

	require.NoError(t, s.Push(ctx, pagepatch.Section{PageName: "home", Action: pagepatch.ActionRemove, DomID: "s1", RootDomID: "s1"}))
	require.NoError(t, s.Loop().Do(ctx, s.Flush))
	assert.Equal(t, `<section id="s0">0</section><section id="s2">2</section>`, content(t, s, "home", ""))
}

func TestHooks(t *testing.T) {
	var (
		mu      sync.Mutex
		loaded  bool
		ready   editor.Editor
		changes []string
	)
	hooks := Hooks{
		OnLoad: func(context.Context) error {
			loaded = true
			return nil
		},
		OnReady: func(ed editor.Editor) {
			mu.Lock()
			defer mu.Unlock()
			ready = ed
		},
		OnContentChange: func(page, c string) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, page)
		},
	}
	s, _ := newStudio(t, time.Millisecond, hooks)
	ctx := context.Background()

	assert.True(t, loaded)
	require.NoError(t, s.Loop().Do(ctx, func() {}))
	mu.Lock()
	require.NotNil(t, ready)
	mu.Unlock()

	require.NoError(t, s.Push(ctx, section("s1", "x")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Loop().Do(ctx, func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"home"}, changes)
}

func TestLoadErrorAbortsStart(t *testing.T) {
	l := loop.New(nil)
	l.Start()
	t.Cleanup(l.Stop)

	s := New(l, Hooks{OnLoad: func(context.Context) error { return assert.AnError }}, Options{})
	err := s.Start(context.Background(), pagepatch.NewProject())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSectionsBeforeReadyAreHeld(t *testing.T) {
	l := loop.New(nil)
	l.Start()
	t.Cleanup(l.Stop)
	s := New(l, Hooks{}, Options{Window: time.Hour})
	ctx := context.Background()

	require.NoError(t, l.Do(ctx, func() {
		assert.NoError(t, s.Apply(section("s1", "early")))
		s.Flush()
		assert.Nil(t, s.Editor())
	}))

	p := pagepatch.NewProject()
	p.Add(&pagepatch.Page{Name: "home", Content: `<div id="root"></div>`})
	require.NoError(t, s.Start(ctx, p))

	assert.Equal(t, "early", content(t, s, "home", "#s1"))
}
