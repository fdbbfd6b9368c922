// Package call requests conferencing rooms from the external room service
// and tracks the single pending incoming call for this session.
package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/emrsoft/realtime/internal/bus"
	"github.com/emrsoft/realtime/internal/conn"
	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/domain"
	"github.com/emrsoft/realtime/internal/hubproto"
)

const maxRoomResponseBytes = 1 << 20

// Participant is one invited remote user.
type Participant struct {
	Identifier  string
	DisplayName string
}

// RoomRequest describes a room provisioning request.
type RoomRequest struct {
	RoomID       string
	FromUsername string
	To           []Participant
	IsVideo      bool
	GroupName    string
	// CheckOnly asks the service to report recipient availability without
	// actually ringing anyone.
	CheckOnly bool
}

// RoomGrant is the provisioned room: a join token for the conferencing
// provider plus the participant roster the service resolved.
type RoomGrant struct {
	Token        string            `json:"token"`
	ServerURL    string            `json:"serverUrl"`
	E2EEKey      string            `json:"e2eeKey,omitempty"`
	RoomID       string            `json:"roomId"`
	Participants []RoomParticipant `json:"participants,omitempty"`
}

// RoomParticipant is the service's view of one invited user.
type RoomParticipant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type roomRequestBody struct {
	RoomID       string            `json:"roomId"`
	ToUserIDs    []string          `json:"toUserIds"`
	ToUsernames  map[string]string `json:"toUsernames"`
	IsVideo      bool              `json:"isVideo"`
	FromUsername string            `json:"fromUsername"`
	GroupName    string            `json:"groupName,omitempty"`
	CheckOnly    bool              `json:"checkOnly,omitempty"`
}

// Signaler owns the outgoing room provisioning flow and the inbound pending
// incoming call.  At most one call is ever pending; a newer invitation
// replaces an unhandled one, since only one call can be surfaced to the user
// at a time.
type Signaler struct {
	cfg    config.ClientConfig
	conn   *conn.Service
	log    *slog.Logger
	client *http.Client

	unsubscribe func()

	mu      sync.Mutex
	pending *hubproto.IncomingCall
}

// NewSignaler creates a Signaler subscribed to incoming-call events on b.
func NewSignaler(cfg config.ClientConfig, c *conn.Service, b *bus.Bus, logger *slog.Logger) *Signaler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Signaler{
		cfg:    cfg,
		conn:   c,
		log:    logger,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
	s.unsubscribe = b.Subscribe(hubproto.EventIncomingCall, s.handleIncoming)
	return s
}

// Close detaches the signaler from the bus.
func (s *Signaler) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// RequestRoom provisions a call room.  Requests missing a room id, caller
// name, or recipients fail fast with no network call.  A non-success HTTP
// status surfaces as a [*domain.ProvisionError]; a success response that
// does not parse surfaces as [domain.ErrMalformedRoomResponse].
func (s *Signaler) RequestRoom(ctx context.Context, req RoomRequest) (*RoomGrant, error) {
	if strings.TrimSpace(req.RoomID) == "" {
		return nil, &domain.CallError{Op: "create room", Err: domain.ErrMissingRoomID}
	}
	if strings.TrimSpace(req.FromUsername) == "" {
		return nil, &domain.CallError{RoomID: req.RoomID, Op: "create room", Err: domain.ErrMissingCaller}
	}
	if len(req.To) == 0 {
		return nil, &domain.CallError{RoomID: req.RoomID, Op: "create room", Err: domain.ErrNoRecipients}
	}

	body := roomRequestBody{
		RoomID:       req.RoomID,
		ToUserIDs:    make([]string, 0, len(req.To)),
		ToUsernames:  make(map[string]string, len(req.To)),
		IsVideo:      req.IsVideo,
		FromUsername: req.FromUsername,
		GroupName:    req.GroupName,
		CheckOnly:    req.CheckOnly,
	}
	for _, p := range req.To {
		body.ToUserIDs = append(body.ToUserIDs, p.Identifier)
		body.ToUsernames[p.Identifier] = p.DisplayName
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.CallError{RoomID: req.RoomID, Op: "create room", Err: err}
	}

	u := s.cfg.RoomAPIURL + "/create-room"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.CallError{RoomID: req.RoomID, Op: "create room", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.cfg.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &domain.CallError{RoomID: req.RoomID, Op: "create room", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRoomResponseBytes))
	if err != nil {
		return nil, &domain.CallError{RoomID: req.RoomID, Op: "create room", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.CallError{
			RoomID: req.RoomID,
			Op:     "create room",
			Err:    &domain.ProvisionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))},
		}
	}

	var grant RoomGrant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return nil, &domain.CallError{
			RoomID: req.RoomID,
			Op:     "create room",
			Err:    fmt.Errorf("%w: %v", domain.ErrMalformedRoomResponse, err),
		}
	}
	return &grant, nil
}

// Pending returns a copy of the current pending incoming call, or nil.
func (s *Signaler) Pending() *hubproto.IncomingCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	cp := *s.pending
	return &cp
}

// Accept clears the pending call and returns it for the caller to act on.
// Actually joining the room is the caller's responsibility.
func (s *Signaler) Accept() *hubproto.IncomingCall {
	s.mu.Lock()
	call := s.pending
	s.pending = nil
	s.mu.Unlock()
	if call != nil {
		s.log.Info("call accepted", "room", call.RoomID, "from", call.FromUsername)
	}
	return call
}

// Decline clears the pending call and, if one was in fact pending, notifies
// the remote caller so their UI can update.  Calling with nothing pending
// does nothing.
func (s *Signaler) Decline() {
	s.mu.Lock()
	call := s.pending
	s.pending = nil
	s.mu.Unlock()
	if call == nil {
		return
	}
	s.log.Info("call declined", "room", call.RoomID, "from", call.FromUsername)
	if err := s.conn.Emit(hubproto.CallDeclined{RoomID: call.RoomID, FromUserID: call.FromUserID}); err != nil {
		s.log.Warn("decline notification not sent", "room", call.RoomID, "err", err)
	}
}

// Clear drops the pending call with no outbound side effect, e.g. after an
// unanswered-call timeout.
func (s *Signaler) Clear() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *Signaler) handleIncoming(ev hubproto.Event) {
	call, ok := ev.(hubproto.IncomingCall)
	if !ok {
		return
	}
	if call.Participants == nil {
		call.Participants = []string{}
	}
	s.mu.Lock()
	replaced := s.pending != nil
	s.pending = &call
	s.mu.Unlock()
	s.log.Info("incoming call", "room", call.RoomID, "from", call.FromUsername,
		"video", call.IsVideo, "replaced_pending", replaced)
}
