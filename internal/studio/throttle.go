package studio

import (
	"time"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/loop"
)

// DefaultWindow is the throttle window applied to incoming sections.
const DefaultWindow = 100 * time.Millisecond

// Throttle is a trailing-edge throttle bound to the event loop. Calls made
// within one window replace each other; when the window elapses the most
// recent one is delivered. It must be used from the loop goroutine.
type Throttle struct {
	loop   *loop.Loop
	window time.Duration
	fn     func(pagepatch.Section)

	pending *pagepatch.Section
	timer   *loop.Timer

	// superseded is told about each pending call a newer one replaced.
	superseded func(pagepatch.Section)
}

// NewThrottle wraps fn.
func NewThrottle(l *loop.Loop, window time.Duration, fn func(pagepatch.Section)) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Throttle{loop: l, window: window, fn: fn}
}

// Call schedules sec, replacing any call still waiting for the window.
func (t *Throttle) Call(sec pagepatch.Section) {
	if t.pending != nil && t.superseded != nil {
		t.superseded(*t.pending)
	}
	t.pending = &sec
	if t.timer.Pending() {
		return
	}
	t.timer = t.loop.AfterFunc(t.window, t.fire)
}

func (t *Throttle) fire() {
	t.timer = nil
	t.deliver()
}

// Pending returns the call waiting for the window, if any.
func (t *Throttle) Pending() (pagepatch.Section, bool) {
	if t.pending == nil {
		return pagepatch.Section{}, false
	}
	return *t.pending, true
}

// Flush delivers the waiting call now.
func (t *Throttle) Flush() {
	t.timer.Stop()
	t.timer = nil
	t.deliver()
}

// Cancel drops the waiting call.
func (t *Throttle) Cancel() {
	t.timer.Stop()
	t.timer = nil
	t.pending = nil
}

func (t *Throttle) deliver() {
	if t.pending == nil {
		return
	}
	sec := *t.pending
	t.pending = nil
	t.fn(sec)
}
