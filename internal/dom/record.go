package dom

import "golang.org/x/net/html"

// Op is the type of a recorded mutation.
type Op string

const (
	OpInsert  Op = "insert"   // node inserted under Path at Index
	OpRemove  Op = "remove"   // node removed from Path at Index
	OpInner   Op = "inner"    // children of Path replaced by HTML
	OpText    Op = "text"     // text node at Path changed
	OpAttr    Op = "attr"     // attribute Name set on Path
	OpAttrDel Op = "attr_del" // attribute Name removed from Path
	OpReset   Op = "reset"    // whole content root replaced by HTML
)

// Kind groups ops the way a mutation observer reports them.
type Kind int

const (
	KindChildList Kind = iota
	KindAttributes
	KindCharacterData
)

// Record is a single mutation. Path is the child-index path of the target
// from the content root, computed at the time of the mutation, so records
// replayed in order against a copy of the tree address the right nodes.
type Record struct {
	Op       Op     `json:"op"`
	Path     []int  `json:"path"`
	Index    int    `json:"index,omitempty"`
	NodeType int    `json:"nodeType,omitempty"` // 1=element, 3=text, 8=comment
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	OldValue string `json:"oldValue,omitempty"`
	HTML     string `json:"html,omitempty"`

	// Origin tags the writer that caused the mutation.
	Origin string `json:"-"`
	// Target is the node the record is about (the parent for insert/remove).
	Target *html.Node `json:"-"`
	// Node is the inserted or removed node.
	Node *html.Node `json:"-"`
}

// Kind returns the observer category of the record.
func (r Record) Kind() Kind {
	switch r.Op {
	case OpAttr, OpAttrDel:
		return KindAttributes
	case OpText:
		return KindCharacterData
	default:
		return KindChildList
	}
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	}
	return 0
}
