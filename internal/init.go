package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

func NewInitCmd() *cobra.Command {
	var (
		force      bool
		backend    string
		repository string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a starter s1lag config.
The file tracks singularity.opensciencegrid.org on the OSG Stratum-1 mirrors;
edit fqrns and mirrors to taste. The format follows the extension of --config
(.toml for TOML, YAML otherwise).`,
		Example: `s1lag init --repository opensciencegrid/cvmfs-lag
s1lag init -c s1lag.toml --backend fs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")

			exists, err := utils.FileExists(path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}

			cfg := config.Default()
			cfg.Store.Backend = backend
			cfg.Store.GitHub.Repository = repository
			switch backend {
			case config.BackendGitHub, config.BackendGit, config.BackendBolt, config.BackendFS:
			default:
				return errs.Newf(errs.InvalidConfig, "init", "unknown backend %q", backend)
			}

			if err := cfg.Save(path); err != nil {
				return err
			}

			logger.Success("Wrote %s (backend %s)", path, backend)
			if backend == config.BackendGitHub && repository == "" {
				logger.Warn("store.github.repository is empty: set it or export GITHUB_REPOSITORY")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	cmd.Flags().StringVar(&backend, "backend", config.BackendGitHub, "Record backend: github, git, bolt or fs")
	cmd.Flags().StringVar(&repository, "repository", "", "GitHub repository (owner/name) holding the record")
	return cmd
}
