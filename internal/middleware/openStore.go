package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/service"
	"github.com/MrSnakeDoc/s1lag/internal/store"
)

const storeTimeout = 30 * time.Second

// Closer releases what OpenStore acquired. Commands defer CloseStore.
type Closer func() error

// OpenStore opens the configured record backend. It needs LoadConfig earlier in the chain.
func OpenStore(cmd *cobra.Command, args []string, next func(cmd *cobra.Command, args []string) error) error {
	cfg, err := Get[*config.Config](cmd, CtxKeyConfig)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	backend, closer, err := store.Open(cfg.Store, service.NewHTTPClient(storeTimeout))
	if err != nil {
		return err
	}

	ctx := context.WithValue(cmd.Context(), CtxKeyStore, backend)
	ctx = context.WithValue(ctx, CtxKeyStoreCloser, Closer(closer))
	cmd.SetContext(ctx)
	return next(cmd, args)
}

// CloseStore runs the closer stored by OpenStore, if any.
func CloseStore(cmd *cobra.Command) error {
	closer, err := Get[Closer](cmd, CtxKeyStoreCloser)
	if err != nil {
		return nil
	}
	return closer()
}
