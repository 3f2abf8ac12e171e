// Package store persists page content reported by the editor: drafts from
// reverse synchronization and saved content from autosave.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/livetemplate/pagepatch"
)

// ErrNotFound is returned when a page has no stored row.
var ErrNotFound = errors.New("store: page not found")

// Record is a stored page.
type Record struct {
	Name      string
	Title     string
	Head      string
	Content   string
	Draft     string
	UpdatedAt time.Time
}

// Store saves pages to SQLite or PostgreSQL.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the database and creates the pages table. driver is
// "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite"
	case "postgres":
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to connect: %w", err)
	}
	if driver == "sqlite" {
		// one writer; avoids SQLITE_BUSY between the save and draft paths
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, postgres: driver == "postgres"}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS pages (
		name       TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		head       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		draft      TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create table: %w", err)
	}
	return nil
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put stores a page as loaded from the project, keeping any draft.
func (s *Store) Put(ctx context.Context, p *pagepatch.Page) error {
	q := s.rebind(`INSERT INTO pages (name, title, head, content, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET title = excluded.title, head = excluded.head,
		content = excluded.content, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, p.Name, p.Title, p.Head, p.Content, time.Now().UTC()); err != nil {
		return fmt.Errorf("store: put %s: %w", p.Name, err)
	}
	return nil
}

// Save stores saved content and clears the draft.
func (s *Store) Save(ctx context.Context, name, content string) error {
	q := s.rebind(`INSERT INTO pages (name, content, draft, updated_at) VALUES (?, ?, '', ?)
		ON CONFLICT (name) DO UPDATE SET content = excluded.content, draft = '', updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, name, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("store: save %s: %w", name, err)
	}
	return nil
}

// SaveDraft stores unsaved content observed on a surface.
func (s *Store) SaveDraft(ctx context.Context, name, content string) error {
	q := s.rebind(`INSERT INTO pages (name, draft, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET draft = excluded.draft, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, name, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("store: save draft %s: %w", name, err)
	}
	return nil
}

// Get returns the stored page.
func (s *Store) Get(ctx context.Context, name string) (*Record, error) {
	q := s.rebind(`SELECT name, title, head, content, draft, updated_at FROM pages WHERE name = ?`)
	var r Record
	err := s.db.QueryRowContext(ctx, q, name).Scan(&r.Name, &r.Title, &r.Head, &r.Content, &r.Draft, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", name, err)
	}
	return &r, nil
}

// Overlay replaces the content of project pages with their stored saved
// content, and adds stored pages the project does not have.
func (s *Store) Overlay(ctx context.Context, p *pagepatch.Project) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, title, head, content FROM pages ORDER BY name`)
	if err != nil {
		return fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var page pagepatch.Page
		if err := rows.Scan(&page.Name, &page.Title, &page.Head, &page.Content); err != nil {
			return fmt.Errorf("store: scan: %w", err)
		}
		if existing, ok := p.Pages[page.Name]; ok {
			if page.Content != "" {
				existing.Content = page.Content
			}
			continue
		}
		p.Add(&page)
	}
	return rows.Err()
}

// Close releases the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
