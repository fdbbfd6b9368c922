// Package presence tracks which users are currently online according to the
// hub and handles user registration/deregistration.
package presence

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/emrsoft/realtime/internal/bus"
	"github.com/emrsoft/realtime/internal/conn"
	"github.com/emrsoft/realtime/internal/domain"
	"github.com/emrsoft/realtime/internal/hubproto"
	"github.com/emrsoft/realtime/internal/identity"
)

// Tracker mirrors the hub's online set.  The hub is the source of truth and
// always sends the full set, so every update replaces the local set
// wholesale with no incremental merging.
type Tracker struct {
	conn *conn.Service
	bus  *bus.Bus
	log  *slog.Logger

	unsubscribe func()

	mu         sync.Mutex
	online     []string
	identifier string
}

// New creates a Tracker subscribed to online-set updates on b.
func New(c *conn.Service, b *bus.Bus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{conn: c, bus: b, log: logger}
	t.unsubscribe = b.Subscribe(hubproto.EventOnlineUsers, t.handleUpdate)
	return t
}

// Close detaches the tracker from the bus.
func (t *Tracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

// Register announces the identifier as online.  A registration attempted
// while the transport is down warns and drops, since the transport re-issues
// registration itself on the next successful connect.
func (t *Tracker) Register(identifier, deviceID string) {
	t.mu.Lock()
	t.identifier = identifier
	t.mu.Unlock()

	err := t.conn.Emit(hubproto.AddUser{UserID: identifier, DeviceID: deviceID})
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		t.log.Warn("cannot register user: not connected", "identifier", identifier)
	case err != nil:
		t.log.Warn("user registration send failed", "identifier", identifier, "err", err)
	default:
		t.log.Debug("registered user", "identifier", identifier, "device", deviceID)
	}
}

// Deregister forgets the current identifier, both locally and on the
// transport, so an involuntary reconnect after a logout comes back anonymous
// instead of resurrecting the logged-out registration.  It deliberately
// leaves the connection up: a logout should stop counting this session as
// online without forcing a reconnect storm when another identity logs in
// right after.
func (t *Tracker) Deregister() {
	t.mu.Lock()
	identifier := t.identifier
	t.identifier = ""
	t.mu.Unlock()
	t.conn.ClearIdentifier()
	if identifier != "" {
		t.log.Debug("deregistered user", "identifier", identifier)
	}
}

// Identifier returns the locally remembered current identifier, or "".
func (t *Tracker) Identifier() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.identifier
}

// OnlineUsers returns a copy of the current online identifier set.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.online))
	copy(out, t.online)
	return out
}

// IsOnline reports whether the given numeric user id has at least one online
// session.  Malformed identifiers in the set never match.
func (t *Tracker) IsOnline(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return identity.IsUserOnline(userID, t.online)
}

func (t *Tracker) handleUpdate(ev hubproto.Event) {
	update, ok := ev.(hubproto.OnlineUsers)
	if !ok {
		return
	}
	t.mu.Lock()
	t.online = append([]string(nil), update.OnlineUsers...)
	count := len(t.online)
	t.mu.Unlock()
	t.log.Debug("online users replaced", "count", count)
}
