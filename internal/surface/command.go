package surface

import "github.com/livetemplate/pagepatch/internal/dom"

// Command ops sent to preview clients in addition to the dom.Op values.
const (
	OpExec   = "exec"   // run the script at Path in place
	OpReady  = "ready"  // dispatch a synthetic content-ready event
	OpScroll = "scroll" // smooth-scroll Path into view
	OpReload = "reload" // reload the preview from scratch
	OpFocus  = "focus"  // focus the editable element at Path
	OpBlur   = "blur"   // blur the element at Path
)

// Command is one instruction for the preview clients of a page.
type Command struct {
	Op       string `json:"op"`
	Page     string `json:"page"`
	Path     []int  `json:"path,omitempty"`
	Index    int    `json:"index,omitempty"`
	NodeType int    `json:"nodeType,omitempty"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	HTML     string `json:"html,omitempty"`
	Revision int    `json:"revision,omitempty"`
}

// Sink delivers commands to the preview clients of a page. Commands caused
// by a client's own edit are not echoed back to it: skip names that client.
type Sink interface {
	Send(cmd Command, skip string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(cmd Command, skip string)

// Send implements Sink.
func (f SinkFunc) Send(cmd Command, skip string) {
	f(cmd, skip)
}

func commandFromRecord(page string, r dom.Record) Command {
	return Command{
		Op:       string(r.Op),
		Page:     page,
		Path:     r.Path,
		Index:    r.Index,
		NodeType: r.NodeType,
		Name:     r.Name,
		Value:    r.Value,
		HTML:     r.HTML,
	}
}
