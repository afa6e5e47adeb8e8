// Package monitor streams the audit trail of live conversations to
// websocket clients.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// Record is one audit entry as sent to clients.
type Record struct {
	Kind      string       `json:"kind"` // skill-status or chat
	Time      time.Time    `json:"time"`
	ChannelID string       `json:"channelId"`
	UserID    string       `json:"userId"`
	ChatID    string       `json:"chatId"`
	Skill     string       `json:"skill"`
	Status    string       `json:"status,omitempty"`
	Who       string       `json:"who,omitempty"`
	Message   core.Message `json:"message,omitempty"`
	Line      string       `json:"line"`
}

// Options configures a Hub.
type Options struct {
	// Backlog is the number of recent records replayed to new clients.
	Backlog int
	// ClientBuffer is the per-client queue length. Records for a client
	// whose queue is full are dropped.
	ClientBuffer int
	WriteTimeout time.Duration
	Logger       logging.Logger
}

// Hub is a logging.SkillLogger broadcasting every record to the connected
// websocket clients.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog []Record
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	out  chan Record
}

var (
	_ logging.SkillLogger = (*Hub)(nil)
	_ http.Handler        = (*Hub)(nil)
)

// New creates a Hub.
func New(optFns ...func(o *Options)) *Hub {
	opts := Options{
		Backlog:      100,
		ClientBuffer: 32,
		WriteTimeout: 5 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Hub{
		opts:    opts,
		now:     time.Now,
		clients: map[*client]struct{}{},
	}
}

// SkillStatus implements logging.SkillLogger.
func (h *Hub) SkillStatus(_ context.Context, channelID, userID, chatID, skill, status string, payload logging.StatusPayload) error {
	now := h.now()
	h.publish(Record{
		Kind:      logging.ExcludeSkillStatus,
		Time:      now,
		ChannelID: channelID,
		UserID:    userID,
		ChatID:    chatID,
		Skill:     skill,
		Status:    status,
		Line:      logging.FormatSkillStatus(channelID, userID, chatID, skill, status, payload, now),
	})
	return nil
}

// Chat implements logging.SkillLogger.
func (h *Hub) Chat(_ context.Context, channelID, userID, chatID, skill, who string, msg core.Message) error {
	h.publish(Record{
		Kind:      logging.ExcludeChat,
		Time:      h.now(),
		ChannelID: channelID,
		UserID:    userID,
		ChatID:    chatID,
		Skill:     skill,
		Who:       who,
		Message:   msg,
		Line:      logging.FormatChat(channelID, userID, chatID, skill, who, msg),
	})
	return nil
}

func (h *Hub) publish(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.opts.Backlog > 0 {
		h.backlog = append(h.backlog, r)
		if len(h.backlog) > h.opts.Backlog {
			h.backlog = h.backlog[len(h.backlog)-h.opts.Backlog:]
		}
	}
	for c := range h.clients {
		select {
		case c.out <- r:
		default:
			h.opts.Logger.Warn("Monitor client blocked, dropping record", "remote", c.conn.RemoteAddr().String())
		}
	}
}

// ServeHTTP upgrades the request and streams records until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Warn("Monitor upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, out: make(chan Record, h.opts.ClientBuffer)}
	backlog, ok := h.register(c)
	if !ok {
		_ = conn.Close()
		return
	}
	defer h.unregister(c)

	// Reads only detect the close of the peer.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, rec := range backlog {
		if err := h.write(conn, rec); err != nil {
			return
		}
	}
	for {
		select {
		case <-gone:
			return
		case rec, ok := <-c.out:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(h.opts.WriteTimeout))
				return
			}
			if err := h.write(conn, rec); err != nil {
				h.opts.Logger.Debug("Monitor write failed", "error", err)
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (h *Hub) register(c *client) ([]Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return append([]Record(nil), h.backlog...), true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.out)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	h.wg.Done()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.out)
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
