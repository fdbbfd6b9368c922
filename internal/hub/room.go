package hub

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/emrsoft/realtime/internal/domain"
	"github.com/emrsoft/realtime/internal/hubproto"
)

const maxRoomBodyBytes = 1 << 20

type createRoomRequest struct {
	RoomID       string            `json:"roomId"`
	ToUserIDs    []string          `json:"toUserIds"`
	ToUsernames  map[string]string `json:"toUsernames"`
	IsVideo      bool              `json:"isVideo"`
	FromUsername string            `json:"fromUsername"`
	GroupName    string            `json:"groupName"`
	CheckOnly    bool              `json:"checkOnly"`
}

type createRoomResponse struct {
	Token        string            `json:"token"`
	ServerURL    string            `json:"serverUrl"`
	RoomID       string            `json:"roomId"`
	Participants []roomParticipant `json:"participants"`
}

type roomParticipant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

// handleCreateRoom provisions a call room: it mints a join token, reports
// which invited users are currently online, and rings the online ones by
// pushing an incoming-call event to each of their connections.  With
// checkOnly set it only reports availability and rings nobody.
func (h *Hub) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := apiKeyFrom(r)
	if key == "" || !h.keys.ValidateKey(r.Context(), key) {
		http.Error(w, domain.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRoomBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RoomID) == "" {
		http.Error(w, "roomId is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.FromUsername) == "" {
		http.Error(w, "fromUsername is required", http.StatusBadRequest)
		return
	}
	if len(req.ToUserIDs) == 0 {
		http.Error(w, "toUserIds must not be empty", http.StatusBadRequest)
		return
	}

	resp := createRoomResponse{
		Token:        uuid.NewString(),
		ServerURL:    "wss://" + r.Host + "/rtc",
		RoomID:       req.RoomID,
		Participants: make([]roomParticipant, 0, len(req.ToUserIDs)),
	}

	h.mu.Lock()
	online := make([]string, 0, len(req.ToUserIDs))
	for _, id := range req.ToUserIDs {
		_, isOnline := h.byUser[id]
		if isOnline {
			online = append(online, id)
		}
		resp.Participants = append(resp.Participants, roomParticipant{
			UserID:   id,
			Username: req.ToUsernames[id],
			IsOnline: isOnline,
		})
	}
	h.mu.Unlock()

	if !req.CheckOnly {
		invite := hubproto.IncomingCall{
			RoomID:       req.RoomID,
			FromUsername: req.FromUsername,
			IsVideo:      req.IsVideo,
			Participants: req.ToUserIDs,
			IsGroup:      req.GroupName != "",
			GroupName:    req.GroupName,
			Token:        resp.Token,
			ServerURL:    resp.ServerURL,
		}
		for _, id := range online {
			h.relayToUser(id, invite)
		}
		h.log.Info("room provisioned", "room", req.RoomID, "from", req.FromUsername,
			"invited", len(req.ToUserIDs), "rung", len(online))
	} else {
		h.log.Debug("room availability check", "room", req.RoomID, "invited", len(req.ToUserIDs))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("write create-room response failed", "err", err)
	}
}
