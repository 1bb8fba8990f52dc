package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	liveClientBuffer = 16
	livePingInterval = 25 * time.Second
	liveReadTimeout  = 60 * time.Second
	liveWriteTimeout = 5 * time.Second
)

// SyncEvent is broadcast to live admin clients for every accepted sync.
type SyncEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	AccountPrefix string    `json:"account"`
	Hostname      string    `json:"hostname"`
	TotalTokens   int64     `json:"tokens"`
	Timestamp     time.Time `json:"timestamp"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

type liveClient struct {
	ch chan []byte
}

// liveHub fans sync events out to connected websocket clients. Slow clients
// lose events rather than blocking the sync path.
type liveHub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
}

func newLiveHub() *liveHub {
	return &liveHub{clients: map[*liveClient]struct{}{}}
}

func (h *liveHub) register() *liveClient {
	c := &liveClient{ch: make(chan []byte, liveClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *liveHub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.ch)
	}
}

func (h *liveHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *liveHub) publish(ev SyncEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- msg:
		default:
		}
	}
}

// closeAll disconnects every client, used on shutdown.
func (h *liveHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.ch)
	}
}

func checkSameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: checkSameOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	})

	client := s.hub.register()
	defer s.hub.unregister(client)
	slog.Debug("live client connected", "remote", remoteHost(r), "clients", s.hub.count())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		case msg, ok := <-client.ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(liveWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
