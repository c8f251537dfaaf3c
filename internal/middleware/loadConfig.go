package middleware

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
)

// LoadConfig loads the file named by --config and stores it under CtxKeyConfig.
func LoadConfig(cmd *cobra.Command, args []string, next func(cmd *cobra.Command, args []string) error) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultFile
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger.Debug("loaded %s: %d repositories, %d mirrors, backend %s", path, len(cfg.FQRNs), len(cfg.Mirrors), cfg.Store.Backend)

	cmd.SetContext(context.WithValue(cmd.Context(), CtxKeyConfig, cfg))
	return next(cmd, args)
}
