package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type persistKind int

const (
	persistDraft persistKind = iota
	persistSave
)

// maxPendingDrafts bounds the draft backlog while the store is slow.
const maxPendingDrafts = 256

type persistJob struct {
	kind    persistKind
	page    string
	content string
}

// pageWriter is the part of the store the persister writes through.
type pageWriter interface {
	Save(ctx context.Context, name, content string) error
	SaveDraft(ctx context.Context, name, content string) error
}

// persister writes page content to the store off the event loop, in the
// order the surfaces reported it. enqueue never blocks: a newer draft
// replaces a pending one for the same page, a save drops pending drafts of
// its page, and past maxPendingDrafts the oldest draft is discarded.
// Saves are never dropped.
type persister struct {
	w      pageWriter
	logger *slog.Logger

	mu      sync.Mutex
	queue   []persistJob
	drafts  int
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	timeout time.Duration
}

func newPersister(w pageWriter, logger *slog.Logger) *persister {
	p := &persister{
		w:       w,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		timeout: 10 * time.Second,
	}
	go p.run()
	return p
}

func (p *persister) enqueue(job persistJob) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("persist: closed, write dropped", "page", job.page)
		return
	}
	switch job.kind {
	case persistDraft:
		if i := p.pendingDraft(job.page); i >= 0 {
			p.queue[i].content = job.content
			break
		}
		if p.drafts >= maxPendingDrafts {
			p.dropOldestDraft()
		}
		p.queue = append(p.queue, job)
		p.drafts++
	case persistSave:
		p.dropDrafts(job.page)
		p.queue = append(p.queue, job)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	p.mu.Unlock()
}

// pendingDraft returns the index of a queued draft for page that no later
// save overrides, or -1.
func (p *persister) pendingDraft(page string) int {
	for i := len(p.queue) - 1; i >= 0; i-- {
		if p.queue[i].page != page {
			continue
		}
		if p.queue[i].kind == persistDraft {
			return i
		}
		return -1
	}
	return -1
}

func (p *persister) dropOldestDraft() {
	for i, job := range p.queue {
		if job.kind == persistDraft {
			p.logger.Warn("persist: backlog full, draft dropped", "page", job.page)
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.drafts--
			return
		}
	}
}

func (p *persister) dropDrafts(page string) {
	kept := p.queue[:0]
	for _, job := range p.queue {
		if job.kind == persistDraft && job.page == page {
			p.drafts--
			continue
		}
		kept = append(kept, job)
	}
	p.queue = kept
}

func (p *persister) next() (persistJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return persistJob{}, false
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	if job.kind == persistDraft {
		p.drafts--
	}
	return job, true
}

func (p *persister) run() {
	defer close(p.done)
	for range p.wake {
		p.drain()
	}
	p.drain()
}

func (p *persister) drain() {
	for {
		job, ok := p.next()
		if !ok {
			return
		}
		p.write(job)
	}
}

func (p *persister) write(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var err error
	switch job.kind {
	case persistDraft:
		err = p.w.SaveDraft(ctx, job.page, job.content)
	case persistSave:
		err = p.w.Save(ctx, job.page, job.content)
	}
	if err != nil {
		p.logger.Error("persist: write failed", "page", job.page, "error", err)
	}
}

// close drains the queue and waits for the writer.
func (p *persister) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.wake)
	<-p.done
}
