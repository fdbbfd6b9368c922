// Package hub is a development stand-in for the Averox real-time hub and its
// conferencing room service.  It implements the external contract the client
// depends on (websocket presence with full-set broadcasts, incoming-call
// relay, and the create-room HTTP endpoint) for local development and
// integration tests.  It is not the production hub.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/domain"
	"github.com/emrsoft/realtime/internal/hubproto"
)

// Hub tracks connected clients and their presence registrations.
type Hub struct {
	cfg  config.HubConfig
	log  *slog.Logger
	keys KeyValidator

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*client]struct{}
	byUser map[string]map[*client]struct{}
}

type client struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	identifier string
	deviceID   string
}

// New creates a Hub authenticating clients against keys.
func New(cfg config.HubConfig, keys KeyValidator, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		cfg:    cfg,
		log:    logger,
		keys:   keys,
		conns:  make(map[*client]struct{}),
		byUser: make(map[string]map[*client]struct{}),
	}
}

// Handler returns the hub's HTTP surface: the websocket endpoint and the
// room provisioning API.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/api/create-room", h.handleCreateRoom)
	return mux
}

// ListenAndServe runs the hub until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.cfg.Listen,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		h.log.Info("hub listening", "addr", h.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// apiKeyFrom extracts the presented API key, accepting both the query
// parameter and the header channel the client sends redundantly.
func apiKeyFrom(r *http.Request) string {
	if k := r.URL.Query().Get("x-api-key"); k != "" {
		return k
	}
	return r.Header.Get("x-api-key")
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFrom(r)
	if key == "" || !h.keys.ValidateKey(r.Context(), key) {
		h.log.Warn("websocket rejected: bad api key", "remote", r.RemoteAddr)
		http.Error(w, domain.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("client connected", "remote", r.RemoteAddr,
		"identifier_header", r.Header.Get("x-user-identifier"))

	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := hubproto.Decode(raw)
		if err != nil {
			h.log.Warn("dropping undecodable client frame", "err", err)
			continue
		}
		switch ev := ev.(type) {
		case hubproto.Auth:
			// Credentials were already checked at upgrade; the payload
			// channel is accepted for parity with the production hub.
		case hubproto.AddUser:
			h.registerUser(c, ev)
		case hubproto.CallDeclined:
			h.relayToUser(ev.FromUserID, ev)
		default:
			h.broadcast(ev, c)
		}
	}
}

func (h *Hub) registerUser(c *client, ev hubproto.AddUser) {
	if ev.UserID == "" {
		return
	}
	h.mu.Lock()
	if c.identifier != "" && c.identifier != ev.UserID {
		h.detachLocked(c)
	}
	c.identifier = ev.UserID
	c.deviceID = ev.DeviceID
	set := h.byUser[ev.UserID]
	if set == nil {
		set = make(map[*client]struct{})
		h.byUser[ev.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("user online", "identifier", ev.UserID, "device", ev.DeviceID)
	h.broadcastOnline()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.conns, c)
	hadUser := c.identifier != ""
	h.detachLocked(c)
	h.mu.Unlock()

	_ = c.conn.Close()
	if hadUser {
		h.broadcastOnline()
	}
}

func (h *Hub) detachLocked(c *client) {
	if c.identifier == "" {
		return
	}
	if set, ok := h.byUser[c.identifier]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.identifier)
		}
	}
	c.identifier = ""
	c.deviceID = ""
}

// onlineSet returns the sorted identifiers with at least one live
// connection.  Two devices of one identifier count once.
func (h *Hub) onlineSet() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.byUser))
	for identifier := range h.byUser {
		out = append(out, identifier)
	}
	sort.Strings(out)
	return out
}

// broadcastOnline pushes the authoritative full online set to every
// connection.  Clients replace their local set wholesale, so the hub never
// emits incremental updates.
func (h *Hub) broadcastOnline() {
	update := hubproto.OnlineUsers{OnlineUsers: h.onlineSet()}
	h.broadcast(update, nil)
}

func (h *Hub) broadcast(ev hubproto.Event, exclude *client) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		h.send(c, ev)
	}
}

// relayToUser delivers ev to every live connection of one identifier.
func (h *Hub) relayToUser(identifier string, ev hubproto.Event) {
	h.mu.Lock()
	targets := make([]*client, 0, 2)
	for c := range h.byUser[identifier] {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		h.send(c, ev)
	}
}

func (h *Hub) send(c *client, ev hubproto.Event) {
	raw, err := hubproto.Encode(ev)
	if err != nil {
		h.log.Warn("encode outbound event failed", "event", string(ev.Name()), "err", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
		_ = c.conn.Close()
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		_ = c.conn.Close()
	}
}
