package internal

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/pass"
	"github.com/MrSnakeDoc/s1lag/internal/render"
)

func NewSampleCmd() *cobra.Command {
	var (
		dryRun      bool
		noPlot      bool
		summary     bool
		force       bool
		minInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Run one sampling pass",
		Long: `Run one sampling pass.
Every configured repository is queried on every mirror, the answers are appended
to the stored record as one entry, and the lag charts are redrawn from the full
history. Unreachable mirrors are logged and skipped; the pass only fails when no
mirror answered at all or when the record could not be read or written.`,
		Example: `s1lag sample
s1lag sample --dry-run --summary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, backend, err := fromContext(cmd)
			if err != nil {
				return err
			}
			defer closeStore(cmd)

			runner, err := pass.New(cfg, backend, nil)
			if err != nil {
				return err
			}
			runner.DryRun = dryRun
			runner.NoPlot = noPlot
			if cmd.Flags().Changed("min-interval") {
				runner.MinInterval = minInterval
			}
			if force {
				runner.MinInterval = 0
			}

			res, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			if res.Skipped {
				return nil
			}

			failures := 0
			for _, rr := range res.Sample.Repos {
				failures += rr.Failures()
			}
			logger.Success("Pass #%d: %d/%d repositories sampled, %d mirror failures, %d charts",
				res.Entry.Seq, len(res.Entry.FQRNs), len(cfg.FQRNs), failures, len(res.Charts))

			if !summary {
				return nil
			}
			th := render.Thresholds{Warn: cfg.Output.WarnHours, Crit: cfg.Output.CritHours}
			for _, fqrn := range cfg.FQRNs {
				s, ok := res.Series[fqrn]
				if !ok {
					continue
				}
				if err := render.Table(cmd.OutOrStdout(), logger.Printer(), fqrn, s, th); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Sample and render but do not write the record")
	cmd.Flags().BoolVar(&noPlot, "no-plot", false, "Skip chart rendering")
	cmd.Flags().DurationVar(&minInterval, "min-interval", 0, "Skip the pass if the last sample is younger than this (default: min_interval)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Ignore min_interval")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the latest lag table after the pass")
	return cmd
}
