// Package pagepatch provides the core types of the live document-patch
// protocol: pages, patch instructions (sections) and projects.
package pagepatch

import (
	"fmt"
	"sort"
)

// Action is the kind of a patch instruction.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Valid reports whether a is one of the protocol actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionRemove:
		return true
	}
	return false
}

// Page is a named document. Content holds the serialized content root
// element; Head holds auxiliary markup injected once at mount.
type Page struct {
	Name    string `json:"name" yaml:"name"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"-"`
	Head    string `json:"head,omitempty" yaml:"head"`

	// SourceFile is the file the page was loaded from, if any.
	SourceFile string `json:"-" yaml:"-"`
}

// Section is a patch instruction.
//
// For ActionAdd, DomID names the parent that receives the new child and
// RootDomID is the id carried by the single root element of Content. For
// ActionUpdate and ActionRemove both name the targeted node. Sort is the
// zero-based sibling position; nil means append at end.
type Section struct {
	PageName  string `json:"pageName"`
	Action    Action `json:"action"`
	DomID     string `json:"domId"`
	RootDomID string `json:"rootDomId"`
	Content   string `json:"content,omitempty"`
	Sort      *int   `json:"sort,omitempty"`
}

// Unit returns the logical unit a section belongs to. Consecutive sections
// for the same unit are successive versions of one growing fragment.
func (s Section) Unit() string {
	return s.PageName + "\x00" + s.RootDomID
}

// Validate checks the structural fields of a section. It does not judge
// whether Content is complete; that is the streaming validator's job.
func (s Section) Validate() error {
	if s.PageName == "" {
		return fmt.Errorf("section: missing pageName")
	}
	if !s.Action.Valid() {
		return fmt.Errorf("section: unknown action %q", s.Action)
	}
	if s.DomID == "" {
		return fmt.Errorf("section: missing domId")
	}
	if s.Action != ActionRemove && s.RootDomID == "" {
		return fmt.Errorf("section: missing rootDomId for %s", s.Action)
	}
	if s.Sort != nil && *s.Sort < 0 {
		return fmt.Errorf("section: negative sort %d", *s.Sort)
	}
	return nil
}

// Position returns the sort value, or -1 when unspecified.
func (s Section) Position() int {
	if s.Sort == nil {
		return -1
	}
	return *s.Sort
}

// Project is the set of pages the host works on plus the page shown first.
type Project struct {
	Pages   map[string]*Page
	Current string
}

// NewProject creates an empty project.
func NewProject() *Project {
	return &Project{Pages: make(map[string]*Page)}
}

// Add inserts or replaces a page. The first page added becomes current.
func (p *Project) Add(page *Page) {
	p.Pages[page.Name] = page
	if p.Current == "" {
		p.Current = page.Name
	}
}

// Names returns page names in sorted order.
func (p *Project) Names() []string {
	names := make([]string, 0, len(p.Pages))
	for name := range p.Pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
