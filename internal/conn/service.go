// Package conn owns the long-lived connection to the real-time hub: the
// Disconnected/Connecting/Connected state machine, the redundant credential
// handshake, the inbound read pump feeding the event bus, and the bounded
// exponential reconnection policy.
//
// A [Service] is an owned, injectable instance (one per process in the
// application, one per test in tests), never a process-wide singleton.
package conn

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emrsoft/realtime/internal/bus"
	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/domain"
	"github.com/emrsoft/realtime/internal/hubproto"
)

const (
	wsPath       = "/ws"
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20
)

// Service maintains one auto-reconnecting hub connection.
type Service struct {
	cfg config.ClientConfig
	log *slog.Logger
	bus *bus.Bus

	mu         sync.Mutex
	state      State
	sess       *session
	gen        uint64
	identifier string
	deviceID   string
	attempts   int
	retry      *time.Timer
	voluntary  bool
}

// session is one physical websocket connection.  A stale session (one whose
// generation no longer matches the service) may still deliver read errors;
// those are ignored.
type session struct {
	gen     uint64
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// New creates a disconnected Service.  Inbound hub events are republished on
// b in arrival order.
func New(cfg config.ClientConfig, b *bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, log: logger, bus: b}
}

// State returns the current connection state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identifier returns the user-session identifier the connection is bound
// to, or "" when none is held.
func (s *Service) Identifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identifier
}

// ClearIdentifier drops the held user identity while leaving the transport
// up.  A later involuntary reconnect then comes back anonymous and skips
// registration until the next Connect supplies an identity again.
func (s *Service) ClearIdentifier() {
	s.mu.Lock()
	s.identifier = ""
	s.deviceID = ""
	s.mu.Unlock()
}

// Connect opens the hub connection asynchronously and returns immediately.
// It is a no-op while already Connected or Connecting.  The identifier and
// device id are remembered so registration is re-issued transparently after
// every reconnect.
func (s *Service) Connect(identifier, deviceID string) {
	s.mu.Lock()
	switch s.state {
	case Connected:
		// Transport no-op, but adopt the identity so a later involuntary
		// reconnect restores the caller's registration, not a stale one.
		s.identifier = identifier
		s.deviceID = deviceID
		s.log.Debug("connect skipped: already connected")
		s.mu.Unlock()
		return
	case Connecting:
		s.log.Debug("connect skipped: connection in progress")
		s.mu.Unlock()
		return
	}
	s.stopRetryLocked()
	s.identifier = identifier
	s.deviceID = deviceID
	s.voluntary = false
	s.state = Connecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.log.Info("connecting to hub", "hub", s.cfg.HubURL, "identifier", identifier)
	go s.dial(gen, identifier, deviceID)
}

// Disconnect voluntarily tears the connection down: it clears the held
// identifier, cancels any pending reconnection, closes the socket, and
// publishes an empty online set so presence consumers reset.  Safe to call
// when already disconnected; terminal until the next Connect.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.voluntary = true
	s.stopRetryLocked()
	s.identifier = ""
	s.deviceID = ""
	sess := s.sess
	s.sess = nil
	s.state = Disconnected
	s.mu.Unlock()

	if sess != nil {
		s.log.Info("disconnecting from hub")
		deadline := time.Now().Add(writeTimeout)
		_ = sess.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = sess.conn.Close()
	}
	if s.bus != nil {
		s.bus.Publish(hubproto.OnlineUsers{})
	}
}

// Emit sends an event to the hub.  When not connected it drops the event and
// returns [domain.ErrNotConnected]; presence and call signals are perishable
// and queueing them would deliver misleading late signals.  Callers decide
// whether a drop is worth reporting.
func (s *Service) Emit(ev hubproto.Event) error {
	s.mu.Lock()
	sess := s.sess
	connected := s.state == Connected
	s.mu.Unlock()

	if !connected || sess == nil {
		return fmt.Errorf("emit %s: %w", ev.Name(), domain.ErrNotConnected)
	}
	return sess.write(ev)
}

func (s *Service) dial(gen uint64, identifier, deviceID string) {
	target, err := dialURL(s.cfg.HubURL, s.cfg.APIKey)
	if err != nil {
		s.handleDialFailure(gen, err)
		return
	}
	header := http.Header{}
	header.Set("x-api-key", s.cfg.APIKey)
	header.Set("x-user-identifier", identifier)

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	c, resp, err := dialer.Dial(target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.handleDialFailure(gen, err)
		return
	}
	c.SetReadLimit(readLimit)

	sess := &session{gen: gen, conn: c}
	s.mu.Lock()
	if gen != s.gen || s.voluntary {
		// A newer Connect or a Disconnect superseded this dial.
		s.mu.Unlock()
		_ = c.Close()
		return
	}
	s.sess = sess
	s.state = Connected
	s.attempts = 0
	s.mu.Unlock()

	s.log.Info("connected to hub", "identifier", identifier)

	// Credential payload channel, then presence registration, so the hub can
	// include this connection in presence computations without a second
	// round trip.
	if err := sess.write(hubproto.Auth{APIKey: s.cfg.APIKey, UserIdentifier: identifier}); err != nil {
		s.log.Warn("auth payload send failed", "err", err)
	}
	if identifier != "" {
		if err := sess.write(hubproto.AddUser{UserID: identifier, DeviceID: deviceID}); err != nil {
			s.log.Warn("user registration send failed", "err", err)
		}
	}

	go s.readLoop(sess)
}

func (s *Service) handleDialFailure(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.voluntary {
		return
	}
	s.state = Disconnected
	s.log.Warn("hub connect failed", "err", err)
	s.scheduleReconnectLocked()
}

// readLoop publishes inbound events to the bus in arrival order until the
// connection dies.
func (s *Service) readLoop(sess *session) {
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			s.handleClosed(sess, err)
			return
		}
		ev, derr := hubproto.Decode(raw)
		if derr != nil {
			s.log.Warn("dropping undecodable hub frame", "err", derr)
			continue
		}
		s.bus.Publish(ev)
	}
}

func (s *Service) handleClosed(sess *session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		// Superseded session; its closure was already accounted for.
		return
	}
	s.sess = nil
	s.state = Disconnected
	if s.voluntary {
		s.log.Debug("hub connection closed after disconnect")
		return
	}
	s.log.Warn("hub connection closed", "err", err)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnection timer.  Callers hold
// s.mu.  Scheduling supersedes any previously armed timer.
func (s *Service) scheduleReconnectLocked() {
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.log.Error("reconnection attempts exhausted; staying disconnected",
			"attempts", s.attempts)
		return
	}
	s.attempts++
	delay := backoffDelay(s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay, s.attempts)
	s.log.Info("scheduling reconnect",
		"attempt", s.attempts, "max", s.cfg.MaxReconnectAttempts, "delay", delay.String())

	gen := s.gen
	s.stopRetryLocked()
	s.retry = time.AfterFunc(delay, func() { s.redial(gen) })
}

// redial is the reconnect timer callback.  The staleness checks and the
// Connecting transition happen under the same lock Disconnect and Connect
// mutate under, so a voluntary disconnect (or a newer Connect) issued after
// the timer fired but before this ran still wins: stale callbacks abort.
func (s *Service) redial(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.voluntary || s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	s.stopRetryLocked()
	s.state = Connecting
	s.gen++
	next := s.gen
	// Read at fire time, not schedule time, so a logout between the drop and
	// the retry reconnects anonymously.
	identifier, deviceID := s.identifier, s.deviceID
	s.mu.Unlock()

	s.log.Info("reconnecting to hub", "hub", s.cfg.HubURL, "identifier", identifier)
	go s.dial(next, identifier, deviceID)
}

func (s *Service) stopRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// dialURL converts the hub base URL into the websocket endpoint carrying the
// API key as a query parameter (one of the redundant credential channels).
func dialURL(hubURL, apiKey string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("invalid hub URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid hub URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + wsPath
	q := u.Query()
	q.Set("x-api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *session) write(ev hubproto.Event) error {
	raw, err := hubproto.Encode(ev)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		_ = p.conn.Close()
		return err
	}
	defer func() { _ = p.conn.SetWriteDeadline(time.Time{}) }()
	if err := p.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		_ = p.conn.Close()
		return err
	}
	return nil
}
