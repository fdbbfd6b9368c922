package presence

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emrsoft/realtime/internal/bus"
	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/conn"
	"github.com/emrsoft/realtime/internal/hubproto"
	"github.com/emrsoft/realtime/internal/log"
)

func newTracker(t *testing.T, hubURL string) (*Tracker, *conn.Service, *bus.Bus) {
	t.Helper()
	logger := log.New("error")
	b := bus.New(logger)
	cfg := config.ClientConfig{
		HubURL:               hubURL,
		APIKey:               "test-key",
		HandshakeTimeout:     2 * time.Second,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    40 * time.Millisecond,
		MaxReconnectAttempts: 5,
	}
	c := conn.New(cfg, b, logger)
	t.Cleanup(c.Disconnect)
	tr := New(c, b, logger)
	t.Cleanup(tr.Close)
	return tr, c, b
}

func TestOnlineSetReplacedWholesale(t *testing.T) {
	t.Parallel()
	tr, _, b := newTracker(t, "http://hub.invalid")

	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"38_Paul-Smith_doctor", "7_Ann_nurse"}})
	if got := tr.OnlineUsers(); len(got) != 2 {
		t.Fatalf("online = %v, want 2 entries", got)
	}
	if !tr.IsOnline(38) || !tr.IsOnline(7) {
		t.Fatal("users 38 and 7 should be online after first update")
	}

	// The hub always sends the full set; a smaller follow-up replaces the
	// whole thing, it never merges.
	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"7_Ann_nurse"}})
	if got := tr.OnlineUsers(); len(got) != 1 || got[0] != "7_Ann_nurse" {
		t.Fatalf("online = %v, want just 7_Ann_nurse", got)
	}
	if tr.IsOnline(38) {
		t.Fatal("user 38 should be gone after replacement")
	}

	b.Publish(hubproto.OnlineUsers{})
	if got := tr.OnlineUsers(); len(got) != 0 {
		t.Fatalf("online = %v, want empty after empty update", got)
	}
}

func TestOnlineUsersReturnsCopy(t *testing.T) {
	t.Parallel()
	tr, _, b := newTracker(t, "http://hub.invalid")

	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"38_Paul-Smith_doctor"}})
	got := tr.OnlineUsers()
	got[0] = "tampered"
	if fresh := tr.OnlineUsers(); fresh[0] != "38_Paul-Smith_doctor" {
		t.Fatalf("internal set mutated through the returned slice: %v", fresh)
	}
}

func TestRegisterDroppedWhenDisconnected(t *testing.T) {
	t.Parallel()
	tr, c, _ := newTracker(t, "http://hub.invalid")

	if c.State() != conn.Disconnected {
		t.Fatalf("state = %v, want Disconnected", c.State())
	}
	// No transport: the registration is dropped, but the identifier sticks so
	// observers still know who this session is.
	tr.Register("38_Paul-Smith_doctor", "go-host-1")
	if got := tr.Identifier(); got != "38_Paul-Smith_doctor" {
		t.Fatalf("identifier = %q", got)
	}
}

func TestRegisterSendsWhenConnected(t *testing.T) {
	t.Parallel()

	frames := make(chan hubproto.Event, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if ev, err := hubproto.Decode(raw); err == nil {
				frames <- ev
			}
		}
	}))
	t.Cleanup(srv.Close)

	tr, c, _ := newTracker(t, srv.URL)
	c.Connect("", "")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && c.State() != conn.Connected {
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != conn.Connected {
		t.Fatalf("state = %v, want Connected", c.State())
	}

	tr.Register("38_Paul-Smith_doctor", "go-host-1")

	for {
		select {
		case ev := <-frames:
			reg, ok := ev.(hubproto.AddUser)
			if !ok {
				continue // skip the auth frame
			}
			if reg.UserID != "38_Paul-Smith_doctor" || reg.DeviceID != "go-host-1" {
				t.Fatalf("registration = %+v", reg)
			}
			return
		case <-time.After(3 * time.Second):
			t.Fatal("registration frame never arrived")
		}
	}
}

func TestDeregisterClearsLocalAndTransportIdentity(t *testing.T) {
	t.Parallel()
	tr, c, b := newTracker(t, "http://hub.invalid")

	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"7_Ann_nurse"}})
	c.Connect("38_Paul-Smith_doctor", "go-host-1")
	tr.Register("38_Paul-Smith_doctor", "go-host-1")
	tr.Deregister()

	if got := tr.Identifier(); got != "" {
		t.Fatalf("identifier = %q, want cleared", got)
	}
	// The transport forgets the identity too, so a later reconnect cannot
	// re-register the deregistered user.
	if got := c.Identifier(); got != "" {
		t.Fatalf("transport identifier = %q, want cleared", got)
	}
	// The hub-owned online set is untouched until the hub says otherwise.
	if got := tr.OnlineUsers(); len(got) != 1 {
		t.Fatalf("online = %v, want unchanged", got)
	}
	tr.Deregister() // idempotent
}

func TestCloseDetachesFromBus(t *testing.T) {
	t.Parallel()
	tr, _, b := newTracker(t, "http://hub.invalid")

	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"7_Ann_nurse"}})
	tr.Close()
	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"38_Paul-Smith_doctor"}})

	if got := tr.OnlineUsers(); len(got) != 1 || got[0] != "7_Ann_nurse" {
		t.Fatalf("online = %v, want the pre-close set", got)
	}
}
