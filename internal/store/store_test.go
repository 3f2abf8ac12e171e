package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagepatch"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndDraft(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &pagepatch.Page{Name: "home", Title: "Home", Content: `<div id="root"></div>`}))
	require.NoError(t, s.SaveDraft(ctx, "home", `<div id="root">draft</div>`))

	r, err := s.Get(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, "Home", r.Title)
	assert.Equal(t, `<div id="root"></div>`, r.Content)
	assert.Equal(t, `<div id="root">draft</div>`, r.Draft)

	require.NoError(t, s.Save(ctx, "home", `<div id="root">saved</div>`))
	r, err = s.Get(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, `<div id="root">saved</div>`, r.Content)
	assert.Empty(t, r.Draft)
	assert.Equal(t, "Home", r.Title, "save keeps metadata")
}

func TestGetMissing(t *testing.T) {
	s := openSQLite(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverlay(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "home", `<div id="root">saved</div>`))
	require.NoError(t, s.Save(ctx, "extra", `<div id="root">extra</div>`))

	p := pagepatch.NewProject()
	p.Add(&pagepatch.Page{Name: "home", Content: `<div id="root">file</div>`})
	p.Add(&pagepatch.Page{Name: "about", Content: `<div id="root">about</div>`})

	require.NoError(t, s.Overlay(ctx, p))
	assert.Equal(t, `<div id="root">saved</div>`, p.Pages["home"].Content)
	assert.Equal(t, `<div id="root">about</div>`, p.Pages["about"].Content)
	assert.Equal(t, `<div id="root">extra</div>`, p.Pages["extra"].Content)
	assert.Equal(t, "home", p.Current)
}

func TestRebind(t *testing.T) {
	pg := &Store{postgres: true}
	assert.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))

	lite := &Store{}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "")
	assert.ErrorContains(t, err, "unsupported driver")
}
