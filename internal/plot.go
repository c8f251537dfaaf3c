package internal

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/history"
	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/render"
)

func NewPlotCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "plot [fqrn...]",
		Short: "Render lag charts from the stored record",
		Long: `Render lag charts from the stored record without sampling.
With no arguments every configured repository is charted. Repositories with no
data in the record are skipped.`,
		Example: `s1lag plot
s1lag plot eic.opensciencegrid.org -o /srv/www/lag`,
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
			if outDir == "" {
				outDir = cfg.Output.Dir
			}

			rec, _, err := history.NewRepository(backend, cfg.Store.Path).Read(cmd.Context())
			if err != nil {
				return err
			}

			drawn := 0
			for _, fqrn := range fqrns {
				s, ok := lag.Derive(rec, fqrn)
				if !ok {
					continue
				}
				path, err := render.ChartInDir(outDir, fqrn, s)
				if err != nil {
					return err
				}
				drawn++
				logger.Info("%s -> %s", fqrn, path)
			}
			logger.Success("%d/%d charts written to %s", drawn, len(fqrns), outDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: output.dir)")
	return cmd
}
