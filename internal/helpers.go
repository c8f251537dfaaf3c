package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/middleware"
	"github.com/MrSnakeDoc/s1lag/internal/store"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

// fromContext returns what LoadConfig and OpenStore put in the command context.
func fromContext(cmd *cobra.Command) (*config.Config, store.Backend, error) {
	cfg, err := middleware.Get[*config.Config](cmd, middleware.CtxKeyConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	backend, err := middleware.Get[store.Backend](cmd, middleware.CtxKeyStore)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, backend, nil
}

func closeStore(cmd *cobra.Command) {
	if err := middleware.CloseStore(cmd); err != nil {
		logger.Warn("failed to close store: %v", err)
	}
}

// selectFQRNs returns args, or every configured repository when args is empty.
// Names missing from the config are rejected.
func selectFQRNs(cmd *cobra.Command, cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		return cfg.FQRNs, nil
	}
	unknown := utils.Filter(args, func(a string) bool { return !utils.Includes(cfg.FQRNs, a) })
	if len(unknown) > 0 {
		path, _ := cmd.Flags().GetString("config")
		return nil, middleware.FlagComboError(errs.UnknownRepository, unknown[0], path)
	}
	return args, nil
}
