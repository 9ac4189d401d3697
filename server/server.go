// Package server exposes the daemon's status over HTTP: a JSON snapshot
// of per-page bookkeeping and a websocket feed of live job transitions.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/engine"
	"github.com/teranos/listsync/logger"
	"github.com/teranos/listsync/version"
)

const (
	writeWait = 10 * time.Second

	// pongWait bounds client liveness; pingPeriod must be shorter
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 512
)

// Server is the optional status endpoint. It implements
// engine.Broadcaster so the engine can feed it transitions directly.
type Server struct {
	eng  *engine.Engine
	http *http.Server

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool

	log *zap.SugaredLogger
}

// client is one websocket subscriber with a buffered outbound queue.
// Slow consumers drop messages rather than stall the engine.
type client struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

// New builds the status server; it does not listen until Start.
func New(cfg config.ServerConfig, eng *engine.Engine, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.Logger
	}
	s := &Server{
		eng:      eng,
		clients:  make(map[*client]bool),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:      log.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebsocket)
	s.http = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	return s
}

// Start listens until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	s.log.Infow("status server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// BroadcastTransition fans a job transition out to every subscriber.
func (s *Server) BroadcastTransition(tr engine.Transition) {
	s.broadcast(map[string]any{
		"type":       "job_transition",
		"transition": tr,
		"timestamp":  time.Now().Unix(),
	})
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version.Version})
}

// handleStatus returns the bookkeeping snapshot: every known page, its
// last run time and outcome, least recently run first.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type pageEntry struct {
		Page      string `json:"page"`
		LastRun   string `json:"last_run"`
		Status    string `json:"status"`
		Message   string `json:"message,omitempty"`
		Edited    bool   `json:"edited"`
		RunCount  int64  `json:"run_count"`
		FailCount int64  `json:"fail_count"`
	}
	resp := struct {
		Version string      `json:"version"`
		Pages   []pageEntry `json:"pages"`
	}{Version: version.Version, Pages: []pageEntry{}}

	if st := s.eng.Store(); st != nil {
		statuses, err := st.PageStatuses()
		if err != nil {
			s.log.Warnw("could not read page statuses", "error", err)
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		for _, ps := range statuses {
			resp.Pages = append(resp.Pages, pageEntry{
				Page:      ps.Page,
				LastRun:   ps.LastRun.UTC().Format(time.RFC3339),
				Status:    ps.Status,
				Message:   ps.Message,
				Edited:    ps.Edited,
				RunCount:  ps.RunCount,
				FailCount: ps.FailCount,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan any, 64), done: make(chan struct{})}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.log.Debugw("websocket client connected", "remote", conn.RemoteAddr().String())

	go s.writePump(c)
	go s.readPump(c)
}

// readPump drains and discards inbound frames. The feed is one-way, but
// the connection must still be read so close and pong control frames are
// processed; a client that stops answering pings times out at pongWait.
func (s *Server) readPump(c *client) {
	defer s.dropClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugw("websocket read failed", "error", err)
			}
			return
		}
	}
}

// dropClient unregisters the client, closes its connection and releases
// the other pump. Safe to call from both pumps.
func (s *Server) dropClient(c *client) {
	c.once.Do(func() { close(c.done) })
	c.conn.Close()
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// writePump drains the client's queue and keeps the connection alive with
// pings. It owns all writes to the connection.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.dropClient(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
