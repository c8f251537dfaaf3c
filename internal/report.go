package internal

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/history"
	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/render"
)

func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [fqrn...]",
		Short: "Print the latest lag of every mirror",
		Long: `Print, per repository, the latest lag of every mirror found in the stored
record. Lag is colored against output.warn_hours and output.crit_hours.`,
		Example: `s1lag report
s1lag report singularity.opensciencegrid.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, backend, err := fromContext(cmd)
			if err != nil {
				return err
			}
			defer closeStore(cmd)

			fqrns, err := selectFQRNs(cmd, cfg, args)
			if err != nil {
				return err
			}

			rec, ver, err := history.NewRepository(backend, cfg.Store.Path).Read(cmd.Context())
			if err != nil {
				return err
			}
			logger.Debug("record %s: %d entries", ver.Short(), rec.Len())

			th := render.Thresholds{Warn: cfg.Output.WarnHours, Crit: cfg.Output.CritHours}
			for _, fqrn := range fqrns {
				s, ok := lag.Derive(rec, fqrn)
				if !ok {
					logger.Warn("%s: no data in record", fqrn)
					continue
				}
				lo, hi := s.Span()
				logger.Debug("%s: %d mirrors, %s to %s", fqrn, len(s), lo.Format(time.RFC3339), hi.Format(time.RFC3339))
				if err := render.Table(cmd.OutOrStdout(), logger.Printer(), fqrn, s, th); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
