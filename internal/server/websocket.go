package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/livetemplate/pagepatch/internal/metrics"
	"github.com/livetemplate/pagepatch/internal/studio"
	"github.com/livetemplate/pagepatch/internal/surface"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

// Client message types.
const (
	msgSelect   = "select"
	msgDeselect = "deselect"
	msgEdit     = "edit"
	msgSave     = "save"
)

// ClientMessage is a message from a preview client.
type ClientMessage struct {
	Type string `json:"type"`
	Path []int  `json:"path,omitempty"`
	HTML string `json:"html,omitempty"`
}

// Hub fans surface commands out to the preview clients of each page and
// feeds their manual edits back into the surfaces. It implements
// surface.Sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{} // page -> clients

	studio  *studio.Studio
	policy  *bluemonday.Policy
	rps     float64
	burst   int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type client struct {
	id      string
	page    string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// NewHub creates a hub. Inbound messages from each client are limited to
// rps with the given burst.
func NewHub(rps float64, burst int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		policy:  editPolicy(),
		rps:     rps,
		burst:   burst,
		metrics: m,
		logger:  logger,
	}
}

// editPolicy is applied to manual edits before they reach a surface:
// scripts and event handler attributes are stripped.
func editPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	return p
}

// Attach sets the studio that receives client edits.
func (h *Hub) Attach(s *studio.Studio) {
	h.studio = s
}

// Send implements surface.Sink. It never blocks: a client that cannot keep
// up is disconnected.
func (h *Hub) Send(cmd surface.Command, skip string) {
	data, err := json.Marshal(cmd)
	if err != nil {
		h.logger.Error("ws: marshal command", "op", cmd.Op, "error", err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients[cmd.Page] {
		if c.id == skip {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("ws: client too slow, disconnecting", "client", c.id, "page", c.page)
		h.unregister(c)
	}
}

// Clients returns the number of connected clients for page.
func (h *Hub) Clients(page string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[page])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.page]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.page] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.metrics.ClientConnected(1)
	h.logger.Info("ws: client connected", "client", c.id, "page", c.page, "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.page]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.page)
		}
	}
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.ClientConnected(-1)
		h.logger.Info("ws: client disconnected", "client", c.id, "page", c.page)
	}
}

// ServeHTTP upgrades the connection and serves one preview client of the
// page named in the URL.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	if page == "" {
		writeError(w, http.StatusBadRequest, "page is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		page:    page,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.rps), h.burst),
	}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("ws: write failed", "client", c.id, "error", err)
			h.unregister(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws: unexpected close", "client", c.id, "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			h.logger.Warn("ws: rate limit exceeded, message dropped", "client", c.id)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ws: bad message", "client", c.id, "error", err)
			continue
		}
		h.handle(c, msg)
	}
}

// handle applies a client message to the page's surface on the event loop.
func (h *Hub) handle(c *client, msg ClientMessage) {
	if h.studio == nil {
		return
	}
	st := h.studio
	st.Loop().Post(func() {
		s, ok := st.Host().Surface(c.page)
		if !ok {
			return
		}
		var handled bool
		switch msg.Type {
		case msgSelect:
			handled = s.SelectPath(msg.Path)
		case msgDeselect:
			handled = s.Deselect()
		case msgEdit:
			handled = s.Edit(msg.Path, h.policy.Sanitize(msg.HTML), c.id)
		case msgSave:
			handled = s.SaveShortcut()
		default:
			h.logger.Debug("ws: unknown message type", "client", c.id, "type", msg.Type)
			return
		}
		if !handled {
			h.logger.Debug("ws: message ignored", "client", c.id, "page", c.page, "type", msg.Type, "state", s.State())
		}
	})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}
