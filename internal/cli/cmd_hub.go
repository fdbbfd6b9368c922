package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/emrsoft/realtime/internal/config"
	"github.com/emrsoft/realtime/internal/hub"
	"github.com/emrsoft/realtime/internal/hub/store"
	"github.com/emrsoft/realtime/internal/log"
)

// runHub starts the development hub.
func runHub(ctx context.Context, args []string) int {
	cfg, err := config.ParseHubFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := log.New(cfg.LogLevel)

	var keys hub.KeyValidator
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath, cfg.APIKeyPepper)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open key store:", err)
			return 1
		}
		defer func() { _ = st.Close() }()
		keys = hub.NewStoreValidator(st)
	} else {
		keys = hub.StaticKey(cfg.APIKey)
	}

	h := hub.New(cfg, keys, log.WithComponent(logger, "hub"))
	if err := h.ListenAndServe(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
