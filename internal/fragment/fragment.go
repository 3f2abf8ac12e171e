// Package fragment decides whether a piece of markup arriving from a
// token-by-token generator is complete enough to apply.
//
// A candidate fragment may be a strict prefix of the final one. Validate
// rejects prefixes and accepts only fragments whose declared root element is
// closed and carries a stable id. Descendants of the root do not have to be
// balanced, which lets large fragments be applied progressively while they
// grow internally.
package fragment

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Rejection reasons returned by Validate.
var (
	ErrNotMarkup     = errors.New("fragment: does not start with a tag")
	ErrTruncated     = errors.New("fragment: ends inside an unterminated tag")
	ErrNoRootTag     = errors.New("fragment: root tag name missing")
	ErrNoRootID      = errors.New("fragment: root element has no id")
	ErrUnclosedRoot  = errors.New("fragment: root element is not closed")
	ErrTrailingNodes = errors.New("fragment: content after the root element")
	ErrRootMismatch  = errors.New("fragment: parse does not yield exactly one root with the declared id")
)

var (
	// An open angle bracket with no closing ">" after it. Covers "<", "</",
	// "</di" and "<div class=" at the end of the input.
	truncatedTag = regexp.MustCompile(`<[^>]*$`)
	tagName      = regexp.MustCompile(`^<([a-zA-Z][a-zA-Z0-9:-]*)`)
	idAttr       = regexp.MustCompile(`(?i)(?:^|[\s/])id\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// voidElements never have content or a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// IsValid reports whether content is a structurally complete, id-bearing
// fragment. A false result means "not ready yet": callers retry with more
// data and never apply a rejected fragment partially.
func IsValid(content string) bool {
	return Validate(content) == nil
}

// Validate is IsValid with the reason for rejection.
func Validate(content string) error {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "<") {
		return ErrNotMarkup
	}
	if truncatedTag.MatchString(s) {
		return ErrTruncated
	}

	tag, id := parseRootTag(s)
	if tag == "" {
		return ErrNoRootTag
	}
	if id == "" {
		return ErrNoRootID
	}

	if tag == "script" || tag == "style" {
		return validateRawText(s, tag, id)
	}
	return validateMarkup(s, tag, id)
}

// RootTag returns the lower-cased tag name of the first tag in content.
func RootTag(content string) string {
	tag, _ := parseRootTag(strings.TrimSpace(content))
	return tag
}

// RootID returns the id attribute of the first tag in content.
func RootID(content string) string {
	_, id := parseRootTag(strings.TrimSpace(content))
	return id
}

// IsScript reports whether the fragment's root is a script element.
func IsScript(content string) bool {
	return RootTag(content) == "script"
}

// parseRootTag reads the tag name and id from the first tag, up to its
// first ">".
func parseRootTag(s string) (tag, id string) {
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return "", ""
	}
	head := s[:end+1]

	m := tagName.FindStringSubmatch(head)
	if m == nil {
		return "", ""
	}
	tag = strings.ToLower(m[1])

	attrs := head[len(m[0]):]
	if a := idAttr.FindStringSubmatch(attrs); a != nil {
		id = a[1]
		if id == "" {
			id = a[2]
		}
	}
	return tag, strings.TrimSpace(id)
}

func validateRawText(s, tag, id string) error {
	if !strings.Contains(strings.ToLower(s), "</"+tag+">") {
		return ErrUnclosedRoot
	}

	nodes, err := html.ParseFragment(strings.NewReader(s), contextFor(tag))
	if err != nil {
		return ErrRootMismatch
	}

	var found []*html.Node
	for _, n := range nodes {
		walk(n, func(n *html.Node) {
			if n.Type == html.ElementNode && n.Data == tag {
				found = append(found, n)
			}
		})
	}
	if len(found) != 1 || attr(found[0], "id") != id {
		return ErrRootMismatch
	}
	return nil
}

func validateMarkup(s, tag, id string) error {
	if err := rootClosed(s, tag); err != nil {
		return err
	}

	nodes, err := html.ParseFragment(strings.NewReader(s), contextFor(tag))
	if err != nil {
		return ErrRootMismatch
	}

	var root *html.Node
	for _, n := range nodes {
		switch n.Type {
		case html.ElementNode:
			if root != nil {
				return ErrRootMismatch
			}
			root = n
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return ErrRootMismatch
			}
		}
	}
	if root == nil || attr(root, "id") != id {
		return ErrRootMismatch
	}
	return nil
}

// rootClosed tokenizes s and checks that the first element, named tag, is
// closed by its own end tag (tracking nesting of the same tag name) and is
// followed by nothing but whitespace.
func rootClosed(s, tag string) error {
	z := html.NewTokenizer(strings.NewReader(s))
	depth := 0
	started, closed := false, false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return ErrUnclosedRoot
			}
			if !closed {
				return ErrUnclosedRoot
			}
			return nil

		case html.StartTagToken:
			if closed {
				return ErrTrailingNodes
			}
			name, _ := z.TagName()
			if string(name) != tag {
				continue
			}
			if !started && voidElements[tag] {
				started, closed = true, true
				continue
			}
			started = true
			depth++

		case html.SelfClosingTagToken:
			if closed {
				return ErrTrailingNodes
			}
			if !started {
				started, closed = true, true
			}

		case html.EndTagToken:
			if closed {
				return ErrTrailingNodes
			}
			name, _ := z.TagName()
			if string(name) == tag {
				depth--
				if depth == 0 {
					closed = true
				}
			}

		case html.TextToken:
			if closed && strings.TrimSpace(string(z.Text())) != "" {
				return ErrTrailingNodes
			}

		case html.CommentToken, html.DoctypeToken:
			if closed {
				return ErrTrailingNodes
			}
		}
	}
}

// contextFor returns the element a fragment rooted at tag must be parsed
// in. Table parts parsed in a body context lose their root.
func contextFor(tag string) *html.Node {
	ctx := "body"
	switch tag {
	case "tr":
		ctx = "tbody"
	case "td", "th":
		ctx = "tr"
	case "tbody", "thead", "tfoot", "caption", "colgroup":
		ctx = "table"
	case "col":
		ctx = "colgroup"
	case "option", "optgroup":
		ctx = "select"
	}
	return ContextElement(ctx)
}

// ContextElement builds a detached element usable as a parse context.
func ContextElement(name string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     name,
		DataAtom: atom.Lookup([]byte(name)),
	}
}

// ContextFor exposes the parse context used for a root tag.
func ContextFor(tag string) *html.Node {
	return contextFor(strings.ToLower(tag))
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
