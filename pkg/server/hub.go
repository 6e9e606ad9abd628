package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/metrics"
	"github.com/jobtrail/jobtrail/pkg/session"
)

// sendBuffer is how many events may queue for one socket before it is
// treated as stalled and dropped.
const sendBuffer = 64

// hub fans session events out to websocket clients.
type hub struct {
	config   Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	once      sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func newHub(config Config, m *metrics.Metrics, logger *slog.Logger) *hub {
	h := &hub{
		config:  config,
		metrics: m,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	return h
}

// serve upgrades the request and streams sess's events until either side
// closes. The current drafts are sent first so the page starts in sync.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWebSocketError("upgrade")
		h.logger.Warn("websocket upgrade failed", "session_id", sess.ID(), "error", err)
		return
	}

	c := &client{
		conn:      conn,
		sessionID: sess.ID(),
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	// Subscribe first so a mutation landing between the two calls is not
	// lost; the snapshot taken after it is never older than what the
	// subscription has delivered so far.
	unsubscribe := sess.Subscribe(func(ev session.Event) { h.enqueue(c, ev) })
	h.enqueue(c, session.Event{Name: session.EventDrafts, Data: listing.Drafts(sess.Drafts().Snapshot())})

	go h.writeLoop(c, sess.Done())
	h.readLoop(c, sess)

	unsubscribe()
	c.stop()

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// enqueue queues ev for c without blocking the emitter. A full queue
// drops the client.
func (h *hub) enqueue(c *client, ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.metrics.RecordWebSocketError("encode")
		h.logger.Error("event encode failed", "event", ev.Name, "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		h.metrics.RecordWebSocketError("overflow")
		h.logger.Warn("websocket client too slow, dropping", "session_id", c.sessionID)
		c.stop()
	}
}

// readLoop keeps the connection alive until the client disconnects. The
// browser sends nothing but pongs and keep-alives; any message counts as
// activity on the session.
func (h *hub) readLoop(c *client, sess *session.Session) {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		sess.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.metrics.RecordWebSocketError("read")
				h.logger.Debug("websocket read failed", "session_id", c.sessionID, "error", err)
			}
			return
		}
		sess.Touch()
		c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	}
}

// writeLoop owns every write to the connection and closes it on exit.
func (h *hub) writeLoop(c *client, sessionDone <-chan struct{}) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.metrics.RecordWebSocketError("write")
				c.stop()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.metrics.RecordWebSocketError("ping")
				c.stop()
				return
			}
		case <-sessionDone:
			h.closeConn(c, "session closed")
			return
		case <-c.done:
			h.closeConn(c, "")
			return
		}
	}
}

func (h *hub) closeConn(c *client, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.config.WriteWait))
}

// ClientCount returns the number of connected sockets.
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every socket and waits for their writers to exit.
func (h *hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.stop()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// originChecker allows same-origin upgrades plus the listed origins.
// Requests without an Origin header (non-browser clients) are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || r.Host == "" {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
