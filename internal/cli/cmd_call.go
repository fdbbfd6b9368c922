package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/emrsoft/realtime/internal/bus"
	"github.com/emrsoft/realtime/internal/call"
	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/conn"
	"github.com/emrsoft/realtime/internal/identity"
	"github.com/emrsoft/realtime/internal/log"
)

// runCall provisions a conferencing room and prints the grant as JSON.
// Recipients are given as comma-separated identifiers; display names are
// recovered from the identifier's name segment.
func runCall(ctx context.Context, args []string) int {
	var (
		roomID    string
		from      string
		to        string
		video     bool
		groupName string
		checkOnly bool
	)

	cfg, fs := config.ClientFlags("call")
	fs.StringVar(&roomID, "room", "", "Room id to provision")
	fs.StringVar(&from, "from", "", "Caller display name")
	fs.StringVar(&to, "to", "", "Comma-separated recipient identifiers (id_name_role)")
	fs.BoolVar(&video, "video", false, "Request a video call")
	fs.StringVar(&groupName, "group", "", "Group call name")
	fs.BoolVar(&checkOnly, "check-only", false, "Probe recipient availability without ringing")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Normalize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := log.New(cfg.LogLevel)

	var recipients []call.Participant
	for _, identifier := range strings.Split(to, ",") {
		identifier = strings.TrimSpace(identifier)
		if identifier == "" {
			continue
		}
		name, ok := identity.UserName(identifier)
		if !ok {
			name = identifier
		}
		recipients = append(recipients, call.Participant{Identifier: identifier, DisplayName: name})
	}

	b := bus.New(log.WithComponent(logger, "bus"))
	svc := conn.New(*cfg, b, log.WithComponent(logger, "conn"))
	signaler := call.NewSignaler(*cfg, svc, b, log.WithComponent(logger, "call"))
	defer signaler.Close()

	grant, err := signaler.RequestRoom(ctx, call.RoomRequest{
		RoomID:       roomID,
		FromUsername: from,
		To:           recipients,
		IsVideo:      video,
		GroupName:    groupName,
		CheckOnly:    checkOnly,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(grant)
	return 0
}
