package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/emrsoft/realtime/internal/hub"
	"github.com/emrsoft/realtime/internal/hub/store"
)

// runAPIKeyAdmin manages the development hub's API key store:
//
//	realtime apikey add --db hub.db --name ci
//	realtime apikey list --db hub.db
//	realtime apikey revoke --db hub.db --id 3
func runAPIKeyAdmin(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: realtime apikey <add|list|revoke> [flags]")
		return 2
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("apikey "+sub, flag.ContinueOnError)
	dbPath := fs.String("db", os.Getenv("AVEROX_HUB_DB_PATH"), "SQLite API key store path")
	pepper := fs.String("key-pepper", os.Getenv("AVEROX_HUB_KEY_PEPPER"), "API key hash pepper")
	name := fs.String("name", "", "Key label (add)")
	id := fs.String("id", "", "Key id (revoke)")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "missing --db or AVEROX_HUB_DB_PATH")
		return 2
	}

	st, err := store.Open(*dbPath, *pepper)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open key store:", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	switch sub {
	case "add":
		return apiKeyAdd(ctx, st, *name)
	case "list":
		return apiKeyList(ctx, st)
	case "revoke":
		return apiKeyRevoke(ctx, st, *id)
	default:
		fmt.Fprintf(os.Stderr, "unknown apikey subcommand %q\n", sub)
		return 2
	}
}

func apiKeyAdd(ctx context.Context, st *store.Store, name string) int {
	if name == "" {
		fmt.Fprintln(os.Stderr, "missing --name")
		return 2
	}
	key, err := hub.GenerateAPIKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate key:", err)
		return 1
	}
	rec, err := st.CreateKey(ctx, name, hub.HashAPIKey(key, st.Pepper()))
	if err != nil {
		fmt.Fprintln(os.Stderr, "store key:", err)
		return 1
	}
	// The plaintext is shown exactly once; only the hash is stored.
	fmt.Printf("id=%d name=%s\nkey=%s\n", rec.ID, rec.Name, key)
	return 0
}

func apiKeyList(ctx context.Context, st *store.Store) int {
	keys, err := st.ListKeys(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list keys:", err)
		return 1
	}
	for _, k := range keys {
		status := "active"
		if k.RevokedAt != nil {
			status = "revoked " + k.RevokedAt.Format("2006-01-02")
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format("2006-01-02 15:04"), status)
	}
	return 0
}

func apiKeyRevoke(ctx context.Context, st *store.Store, id string) int {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		fmt.Fprintln(os.Stderr, "missing or invalid --id")
		return 2
	}
	if err := st.RevokeKey(ctx, n); err != nil {
		fmt.Fprintln(os.Stderr, "revoke key:", err)
		return 1
	}
	fmt.Printf("revoked key %d\n", n)
	return 0
}
