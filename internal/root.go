package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/middleware"
	"github.com/MrSnakeDoc/s1lag/internal/version"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "s1lag",
		Short: "Sample and chart CVMFS Stratum-1 replication lag",
		Long: `s1lag reads the .cvmfspublished marker of each tracked repository on every
configured Stratum-1 mirror, appends the publish timestamps to a versioned
record and renders the lag of each mirror over time.

Run it from cron or a CI schedule; each invocation of "s1lag sample" is one pass.`,
		Example: `s1lag init --repository opensciencegrid/cvmfs-lag
s1lag sample
s1lag report eic.opensciencegrid.org`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if logger.FlagQuiet && logger.FlagVerboseCount > 0 {
				return middleware.FlagComboError(errs.FlagConflict, "--quiet", "--verbose")
			}
			logger.ConfigureLoggerFromFlags()
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				version.Print(cmd.OutOrStdout())
				return nil
			}
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("version", "v", false, "Print version information")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultFile, "Path to the config file (.yml or .toml)")
	cmd.PersistentFlags().CountVarP(&logger.FlagVerboseCount, "verbose", "V", "Verbose output (debug logs)")
	cmd.PersistentFlags().BoolVarP(&logger.FlagQuiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().BoolVarP(&logger.FlagSilent, "silent", "s", false, "Suppress all log output")
	cmd.PersistentFlags().BoolVar(&logger.FlagJSON, "json", false, "Log as JSON lines")

	RegisterSubCommands(cmd)

	return cmd
}

func Execute() error {
	root := NewRootCmd()

	if os.Getenv("COMP_LINE") != "" ||
		(len(os.Args) > 1 && strings.HasPrefix(os.Args[1], "__complete")) {
		return root.Execute()
	}

	if err := root.Execute(); err != nil {
		report(err)
		return middleware.ErrLogged
	}
	return nil
}

// report logs err once, followed by the hint of its code when there is one.
func report(err error) {
	if errors.Is(err, middleware.ErrLogged) {
		return
	}
	logger.LogError("%v", err)

	switch code := errs.CodeOf(err); code {
	case errs.NoDataCollected, errs.VersionConflict, errs.MalformedRecord:
		_, _ = fmt.Fprintln(logger.Out(), errs.Msg(code))
	}
}
