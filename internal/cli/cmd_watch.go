package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/emrsoft/realtime/internal/bus"
	"github.com/emrsoft/realtime/internal/call"
	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/conn"
	"github.com/emrsoft/realtime/internal/hubproto"
	"github.com/emrsoft/realtime/internal/identity"
	"github.com/emrsoft/realtime/internal/log"
	"github.com/emrsoft/realtime/internal/presence"
	"github.com/emrsoft/realtime/internal/session"
)

// runWatch connects to the hub as the given user and logs presence and call
// signaling until interrupted.
func runWatch(ctx context.Context, args []string) int {
	var (
		userID    int
		firstName string
		lastName  string
		role      string
		decline   bool
	)

	cfg, fs := config.ClientFlags("watch")
	fs.IntVar(&userID, "user-id", 0, "Numeric user id to register as")
	fs.StringVar(&firstName, "first-name", "", "User first name")
	fs.StringVar(&lastName, "last-name", "", "User last name")
	fs.StringVar(&role, "role", "", "User role (default \"user\")")
	fs.BoolVar(&decline, "decline", false, "Automatically decline incoming calls")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Normalize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if userID <= 0 {
		fmt.Fprintln(os.Stderr, "missing --user-id")
		return 2
	}

	logger := log.New(cfg.LogLevel)

	b := bus.New(log.WithComponent(logger, "bus"))
	svc := conn.New(*cfg, b, log.WithComponent(logger, "conn"))
	tracker := presence.New(svc, b, log.WithComponent(logger, "presence"))
	defer tracker.Close()
	signaler := call.NewSignaler(*cfg, svc, b, log.WithComponent(logger, "call"))
	defer signaler.Close()
	binder := session.NewBinder(svc, tracker, log.WithComponent(logger, "session"))

	unsubPresence := b.Subscribe(hubproto.EventOnlineUsers, func(ev hubproto.Event) {
		update, ok := ev.(hubproto.OnlineUsers)
		if !ok {
			return
		}
		fmt.Printf("online (%d): %s\n", len(update.OnlineUsers), strings.Join(update.OnlineUsers, ", "))
	})
	defer unsubPresence()

	unsubCalls := b.Subscribe(hubproto.EventIncomingCall, func(ev hubproto.Event) {
		incoming, ok := ev.(hubproto.IncomingCall)
		if !ok {
			return
		}
		kind := "audio"
		if incoming.IsVideo {
			kind = "video"
		}
		fmt.Printf("incoming %s call from %s (room %s)\n", kind, incoming.FromUsername, incoming.RoomID)
		if decline {
			signaler.Decline()
		}
	})
	defer unsubCalls()

	binder.Apply(session.AuthState{
		User: identity.User{
			ID:        userID,
			FirstName: firstName,
			LastName:  lastName,
			Role:      role,
		},
		Authenticated: true,
	})

	<-ctx.Done()
	binder.Shutdown()
	return 0
}
