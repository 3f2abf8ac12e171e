package dom

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// QueryAll returns every node under (and including) root that matches the
// CSS selector sel, in document order. An unparsable selector matches
// nothing.
func QueryAll(root *html.Node, sel string) []*html.Node {
	if root == nil || strings.TrimSpace(sel) == "" {
		return nil
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		return nil
	}
	return s.MatchAll(root)
}

// Query returns the first match of sel, or nil.
func Query(root *html.Node, sel string) *html.Node {
	if root == nil || strings.TrimSpace(sel) == "" {
		return nil
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		return nil
	}
	return s.MatchFirst(root)
}

// Attr returns the value of an attribute on n.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries the attribute.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// IDSelector turns a dom id into a selector.
func IDSelector(id string) string {
	if id == "" {
		return ""
	}
	return "#" + id
}
