// Package cli implements the realtime command line: a presence watcher, a
// call initiator, the development hub, and its API key administration.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.3.0"

// Run is the main CLI entry point.  It parses args and dispatches to the
// appropriate subcommand, returning a process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		return runWatch(ctx, nil)
	}

	switch args[0] {
	case "watch":
		return runWatch(ctx, args[1:])
	case "call":
		return runCall(ctx, args[1:])
	case "hub":
		return runHub(ctx, args[1:])
	case "apikey":
		return runAPIKeyAdmin(ctx, args[1:])
	case "version", "--version", "-v":
		fmt.Println("realtime " + version)
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Print(`Usage: realtime <command> [flags]

Commands:
  watch     Connect to the hub, register a user, and log presence and call events
  call      Provision a conferencing room and ring the recipients
  hub       Run the development hub (presence + room provisioning double)
  apikey    Manage the development hub's API key store
  version   Print version

Common flags (watch, call):
  --hub       Hub base URL            (env AVEROX_HUB_URL)
  --api-key   Service API key         (env AVEROX_API_KEY)
  --room-api  Room API base URL       (env AVEROX_ROOM_API, default <hub>/api)
`)
}
