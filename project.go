package pagepatch

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// Frontmatter is the optional YAML block at the top of a page file.
type Frontmatter struct {
	Title   string `yaml:"title"`
	Head    string `yaml:"head"`
	Current bool   `yaml:"current"`
}

// IsPageFile reports whether path has a page file extension.
func IsPageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".md":
		return true
	}
	return false
}

// PageName derives a page name from a path relative to the project root.
func PageName(relPath string) string {
	name := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.ToSlash(name)
}

// LoadProject reads every page file under dir. Directories starting with
// "." or "_" are skipped.
func LoadProject(dir string) (*Project, error) {
	project := NewProject()
	current := ""

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsPageFile(path) {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		page, fm, err := ParseFile(path, PageName(relPath))
		if err != nil {
			return err
		}
		project.Add(page)
		if fm.Current && current == "" {
			current = page.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if current != "" {
		project.Current = current
	} else if names := project.Names(); len(names) > 0 {
		project.Current = names[0]
	}
	return project, nil
}

// ParseFile loads a single page file under the given page name.
func ParseFile(path, name string) (*Page, *Frontmatter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read page file: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	page, fm, err := ParsePage(name, filepath.Ext(path), data)
	if err != nil {
		var le *LoadError
		if e, ok := err.(*LoadError); ok {
			le = e
		} else {
			le = NewLoadError(absPath, 1, err.Error())
		}
		le.File = absPath
		return nil, nil, le
	}
	page.SourceFile = absPath
	return page, fm, nil
}

// ParsePage builds a page from raw file data. Markdown (ext ".md") is
// rendered to HTML; everything else is taken as markup verbatim.
func ParsePage(name, ext string, data []byte) (*Page, *Frontmatter, error) {
	fm, body, err := extractFrontmatter(data)
	if err != nil {
		return nil, nil, err
	}

	content := string(body)
	if strings.EqualFold(ext, ".md") {
		content, err = renderMarkdown(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to render markdown: %w", err)
		}
	}

	title := fm.Title
	if title == "" {
		title = filepath.Base(name)
	}
	return &Page{
		Name:    name,
		Title:   title,
		Content: strings.TrimSpace(content),
		Head:    fm.Head,
	}, fm, nil
}

// extractFrontmatter splits an optional "---" YAML block from content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		return nil, nil, NewLoadError("", 1, "unclosed frontmatter").
			WithHint(`close the YAML block with a line containing only "---"`)
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(content[4:4+endIdx], &fm); err != nil {
		return nil, nil, NewLoadError("", 2, fmt.Sprintf("invalid frontmatter: %v", err))
	}
	return &fm, content[4+endIdx+5:], nil
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

func renderMarkdown(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
