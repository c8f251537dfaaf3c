// Package pass runs one sampling pass: read, sample, append, write, then render.
package pass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/history"
	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/metrics"
	"github.com/MrSnakeDoc/s1lag/internal/render"
	"github.com/MrSnakeDoc/s1lag/internal/sampler"
	"github.com/MrSnakeDoc/s1lag/internal/service"
	"github.com/MrSnakeDoc/s1lag/internal/store"
)

type Runner struct {
	Repo    *history.Repository
	Sampler *sampler.Sampler
	FQRNs   []string

	OutDir        string
	MetricsFile   string
	RebaseRetries int
	// MinInterval skips the pass when the last entry is younger than this.
	MinInterval time.Duration

	DryRun bool
	NoPlot bool

	Now func() time.Time
}

// New builds a runner for cfg over an opened backend.
func New(cfg *config.Config, backend store.Backend, client service.HTTPClient) (*Runner, error) {
	s, err := sampler.New(cfg.Mirrors, cfg.MarkerPath, cfg.Concurrency, client, cfg.FetchTimeout())
	if err != nil {
		return nil, errs.New(errs.InvalidConfig, "mirrors", err)
	}
	return &Runner{
		Repo:          history.NewRepository(backend, cfg.Store.Path),
		Sampler:       s,
		FQRNs:         cfg.FQRNs,
		OutDir:        cfg.Output.Dir,
		MetricsFile:   cfg.Output.MetricsFile,
		RebaseRetries: cfg.Store.RebaseRetries,
		MinInterval:   cfg.MinInterval(),
	}, nil
}

type Result struct {
	Sample  sampler.Sample
	Entry   history.Entry
	Record  *history.Record
	Version store.Version
	Written bool
	Skipped bool // MinInterval gate
	Rebases int

	Series map[string]lag.Series // only repositories with data
	NoData []string
	Charts []string
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one pass. Nothing is written when reading the record fails, when
// no mirror answered, or in dry-run mode.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	start := r.now()

	prev, ver, err := r.Repo.ReadOrEmpty(ctx)
	if err != nil {
		return res, fmt.Errorf("read record: %w", err)
	}

	if last, ok := prev.Last(); ok && r.MinInterval > 0 {
		if age := start.Sub(last.Time()); age >= 0 && age < r.MinInterval {
			logger.Info("skip: last sample #%d is %s old (< %s)", last.Seq, age.Truncate(time.Second), r.MinInterval)
			res.Record, res.Entry, res.Version, res.Skipped = prev, last, ver, true
			return res, nil
		}
	}

	sample, err := r.Sampler.SampleAll(ctx, r.FQRNs, start)
	res.Sample = sample
	if err != nil {
		return res, err
	}

	rec, entry, err := history.Accumulate(prev, start, sample.FQRNs, sample.Failed)
	if err != nil {
		return res, err
	}
	res.Record, res.Entry, res.Version = rec, entry, ver

	if r.DryRun {
		logger.Info("dry run: entry #%d not written (%d repositories, %d failed)", entry.Seq, len(entry.FQRNs), len(entry.Failed))
	} else {
		if err := r.write(ctx, &res, ver); err != nil {
			return res, err
		}
	}

	if err := r.derive(&res); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Runner) write(ctx context.Context, res *Result, expected store.Version) error {
	for {
		ver, err := r.Repo.Write(ctx, res.Record, expected)
		if err == nil {
			res.Version, res.Written = ver, true
			logger.Success("entry #%d written to %s (version %s)", res.Entry.Seq, r.Repo.Backend.Describe(), ver.Short())
			return nil
		}
		if !errors.Is(err, errs.ErrVersionConflict) || res.Rebases >= r.RebaseRetries {
			return fmt.Errorf("write record: %w", err)
		}

		res.Rebases++
		logger.Warn("record changed since it was read, rebasing (%d/%d)", res.Rebases, r.RebaseRetries)
		prev, ver, err := r.Repo.ReadOrEmpty(ctx)
		if err != nil {
			return fmt.Errorf("re-read record: %w", err)
		}
		expected = ver
		if last, ok := prev.Last(); ok && last.SampleTime > res.Sample.Time.Unix() {
			return fmt.Errorf("write record: %w", errs.Newf(errs.VersionConflict, r.Repo.Backend.Describe(),
				"entry #%d at %d is newer than this sample (%d), not rebasing", last.Seq, last.SampleTime, res.Sample.Time.Unix()))
		}
		rec, entry, err := history.Accumulate(prev, res.Sample.Time, res.Sample.FQRNs, res.Sample.Failed)
		if err != nil {
			return err
		}
		res.Record, res.Entry = rec, entry
	}
}

func (r *Runner) derive(res *Result) error {
	res.Series = make(map[string]lag.Series, len(r.FQRNs))
	var exp *metrics.Exporter
	if r.MetricsFile != "" {
		exp = metrics.New()
		exp.ObserveSample(res.Sample)
	}

	for _, fqrn := range r.FQRNs {
		s, ok := lag.Derive(res.Record, fqrn)
		if !ok {
			res.NoData = append(res.NoData, fqrn)
			continue
		}
		res.Series[fqrn] = s
		if exp != nil {
			exp.ObserveSeries(fqrn, s)
		}
		if r.NoPlot {
			continue
		}
		path, err := render.ChartInDir(r.OutDir, fqrn, s)
		if err != nil {
			return err
		}
		logger.Debug("%s: chart written to %s", fqrn, path)
		res.Charts = append(res.Charts, path)
	}

	if exp != nil {
		exp.ObservePass(res.Sample.Time, res.Record.Len())
		if err := exp.WriteTextfile(r.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logger.Debug("metrics written to %s", r.MetricsFile)
	}
	return nil
}
