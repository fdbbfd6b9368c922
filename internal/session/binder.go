// Package session binds the realtime layer to the application's
// authentication state transitions.
package session

import (
	"log/slog"
	"sync"

	"github.com/emrsoft/realtime/internal/conn"
	"github.com/emrsoft/realtime/internal/domain"
	"github.com/emrsoft/realtime/internal/identity"
	"github.com/emrsoft/realtime/internal/presence"
)

// AuthState is the upstream authentication snapshot the binder consumes.
type AuthState struct {
	User          identity.User
	Authenticated bool
}

// Binder reacts to auth-state changes: it connects with a fresh device id on
// login and deregisters on logout.  Logout deliberately leaves the transport
// up so a fast re-login avoids a full reconnect handshake; a hard disconnect
// is reserved for [Binder.Shutdown] at app teardown.
type Binder struct {
	conn    *conn.Service
	tracker *presence.Tracker
	log     *slog.Logger

	// newDeviceID is swappable for tests.
	newDeviceID func() string

	mu   sync.Mutex
	last string // fingerprint of the last applied state
}

// NewBinder creates a Binder driving c and t.
func NewBinder(c *conn.Service, t *presence.Tracker, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{conn: c, tracker: t, log: logger, newDeviceID: identity.NewDeviceID}
}

// Apply feeds one auth snapshot into the binder.  It is idempotent: applying
// a state whose identity (id, name fields, role, auth flag) matches the last
// applied one takes no action, so callers may invoke it on every upstream
// re-render without churning the connection.
func (b *Binder) Apply(st AuthState) {
	identifier, resolvable := identity.BuildIdentifier(st.User)
	fp := fingerprint(st, identifier)

	b.mu.Lock()
	if fp == b.last {
		b.mu.Unlock()
		return
	}
	b.last = fp
	b.mu.Unlock()

	if !st.Authenticated {
		b.log.Debug("auth state: unauthenticated; deregistering user")
		b.tracker.Deregister()
		return
	}
	if !resolvable {
		// Fails closed: no identifier, no connection, no registration.
		b.log.Warn("skipping connect for authenticated user",
			"user_id", st.User.ID, "err", domain.ErrNoIdentifier)
		return
	}

	deviceID := b.newDeviceID()
	b.log.Info("auth state: authenticated; connecting", "identifier", identifier)
	b.conn.Connect(identifier, deviceID)
	// Covers the fast re-login path: when the transport stayed up across a
	// logout, Connect above is a no-op and this registers the new identity
	// over the live connection.  On a fresh connect the transport itself
	// re-issues registration once open, so the drop here is harmless.
	b.tracker.Register(identifier, deviceID)
}

// Shutdown performs the hard disconnect reserved for app teardown.
func (b *Binder) Shutdown() {
	b.mu.Lock()
	b.last = ""
	b.mu.Unlock()
	b.tracker.Deregister()
	b.conn.Disconnect()
}

func fingerprint(st AuthState, identifier string) string {
	if !st.Authenticated {
		return "anon"
	}
	return "auth:" + identifier
}
