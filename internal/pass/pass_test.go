package pass

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/history"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/sampler"
	"github.com/MrSnakeDoc/s1lag/internal/service"
	"github.com/MrSnakeDoc/s1lag/internal/store"
)

func TestMain(m *testing.M) {
	logger.UseTestMode()
	os.Exit(m.Run())
}

const (
	sampleAt  = 1700003600
	published = 1700000000
)

type fixture struct {
	backend *store.FS
	runner  *Runner
	calls   atomic.Int32
	down    map[string]bool // mirror host -> failing
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	b, err := store.NewFS(filepath.Join(dir, "state"), "state.json")
	require.NoError(t, err)

	s, err := sampler.New([]string{"http://s1a.example/cvmfs", "http://s1b.example/cvmfs"}, ".cvmfspublished", 2, nil, time.Second)
	require.NoError(t, err)

	f := &fixture{backend: b, down: map[string]bool{}}
	s.Fetch = func(_ context.Context, _ service.HTTPClient, url string) (int64, error) {
		f.calls.Add(1)
		for host, down := range f.down {
			if down && strings.Contains(url, host) {
				return 0, errs.Newf(errs.EndpointUnavailable, url, "connection refused")
			}
		}
		return published, nil
	}

	f.runner = &Runner{
		Repo:        history.NewRepository(b, "state.json"),
		Sampler:     s,
		FQRNs:       []string{"eic.opensciencegrid.org", "singularity.opensciencegrid.org"},
		OutDir:      filepath.Join(dir, "plots"),
		MetricsFile: filepath.Join(dir, "textfile", "s1lag.prom"),
		Now:         func() time.Time { return time.Unix(sampleAt, 0) },
	}
	return f
}

func (f *fixture) stored(t *testing.T) *history.Record {
	t.Helper()
	rec, _, err := f.runner.Repo.Read(context.Background())
	require.NoError(t, err)
	return rec
}

func TestRun_Bootstrap(t *testing.T) {
	f := newFixture(t)

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, uint64(1), res.Entry.Seq)
	assert.Equal(t, int64(sampleAt), res.Entry.SampleTime)

	rec := f.stored(t)
	assert.Equal(t, 1, rec.Len())

	s := res.Series["eic.opensciencegrid.org"]
	require.Len(t, s["s1a.example"], 1)
	assert.InDelta(t, -1.0, s["s1a.example"][0].LagHours, 1e-9)

	assert.Len(t, res.Charts, 2)
	for _, c := range res.Charts {
		assert.FileExists(t, c)
	}

	prom, err := os.ReadFile(f.runner.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "s1lag_mirror_lag_hours")
	assert.Contains(t, string(prom), "s1lag_record_entries 1")
}

func TestRun_AppendsToExistingRecord(t *testing.T) {
	f := newFixture(t)
	f.runner.NoPlot = true

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	first := f.stored(t)

	f.down["s1b.example"] = true
	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Charts)

	second := f.stored(t)
	require.Equal(t, first.Len()+1, second.Len())
	assert.Equal(t, first.At(0), second.At(0))

	last, _ := second.Last()
	assert.Equal(t, uint64(2), last.Seq)
	assert.Len(t, last.FQRNs["eic.opensciencegrid.org"], 1)
}

func TestRun_NoDataWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.down["s1a.example"] = true
	f.down["s1b.example"] = true

	res, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoDataCollected))
	assert.False(t, res.Written)

	_, _, err = f.backend.Get(context.Background())
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.NoFileExists(t, f.runner.MetricsFile)
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t)
	f.runner.DryRun = true
	f.runner.NoPlot = true

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, 1, res.Record.Len())

	_, _, err = f.backend.Get(context.Background())
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestRun_MalformedRecordAbortsBeforeSampling(t *testing.T) {
	f := newFixture(t)
	_, err := f.backend.Put(context.Background(), []byte("not json"), store.NoVersion, "seed")
	require.NoError(t, err)

	_, err = f.runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMalformedRecord))
	assert.Equal(t, int32(0), f.calls.Load())

	data, _, err := f.backend.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not json", string(data))
}

// racingBackend lets another writer commit right before the first Put.
type racingBackend struct {
	store.Backend
	raced bool
	race  func()
}

func (b *racingBackend) Put(ctx context.Context, data []byte, expected store.Version, msg string) (store.Version, error) {
	if !b.raced {
		b.raced = true
		b.race()
	}
	return b.Backend.Put(ctx, data, expected, msg)
}

// withRacingWriter makes another writer commit an entry sampled at racerAt
// right before the runner's first write.
func withRacingWriter(t *testing.T, f *fixture, racerAt int64) {
	t.Helper()
	other := history.NewRepository(f.backend, "state.json")
	f.runner.Repo = history.NewRepository(&racingBackend{
		Backend: f.backend,
		race: func() {
			rec, ver, err := other.ReadOrEmpty(context.Background())
			require.NoError(t, err)
			rec, _, err = history.Accumulate(rec, time.Unix(racerAt, 0), map[string]map[string]string{
				"other.example.org": {"s1c.example": "1699990000"},
			}, nil)
			require.NoError(t, err)
			_, err = other.Write(context.Background(), rec, ver)
			require.NoError(t, err)
		},
	}, "state.json")
}

func TestRun_ConflictIsFatalWithoutRetries(t *testing.T) {
	f := newFixture(t)
	f.runner.NoPlot = true
	withRacingWriter(t, f, sampleAt-60)

	res, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrVersionConflict))
	assert.False(t, res.Written)

	rec := f.stored(t)
	require.Equal(t, 1, rec.Len())
	_, ok := rec.At(0).Mirrors("other.example.org")
	assert.True(t, ok)
}

func TestRun_RebaseOnConflict(t *testing.T) {
	f := newFixture(t)
	f.runner.NoPlot = true
	f.runner.RebaseRetries = 2
	withRacingWriter(t, f, sampleAt-60)

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 1, res.Rebases)
	assert.Equal(t, int32(4), f.calls.Load(), "rebase must not re-sample")

	rec := f.stored(t)
	require.Equal(t, 2, rec.Len())
	_, ok := rec.At(0).Mirrors("other.example.org")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), rec.At(1).Seq)
	assert.Equal(t, int64(sampleAt), rec.At(1).SampleTime)
}

func TestRun_MinIntervalSkips(t *testing.T) {
	f := newFixture(t)
	f.runner.NoPlot = true
	f.runner.MinInterval = time.Hour

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(4), f.calls.Load())

	f.runner.Now = func() time.Time { return time.Unix(sampleAt+1800, 0) }
	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Written)
	assert.Equal(t, int32(4), f.calls.Load())
	assert.Equal(t, 1, f.stored(t).Len())

	f.runner.Now = func() time.Time { return time.Unix(sampleAt+3600, 0) }
	res, err = f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, f.stored(t).Len())
}

func TestRun_RebaseRefusesToGoBackInTime(t *testing.T) {
	f := newFixture(t)
	f.runner.NoPlot = true
	f.runner.RebaseRetries = 2
	withRacingWriter(t, f, sampleAt+60)

	res, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrVersionConflict))
	assert.False(t, res.Written)

	rec := f.stored(t)
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, int64(sampleAt+60), rec.At(0).SampleTime)
}

func TestRun_AdoptsRecordWithoutMeta(t *testing.T) {
	f := newFixture(t)
	f.runner.NoPlot = true

	legacy := `[
	 {"sample_time": 1699996400, "fqrns": {"eic.opensciencegrid.org": {"s1a.example": "1699990000"}}},
	 {"sample_time": 1700000000, "fqrns": {"eic.opensciencegrid.org": {"s1a.example": "1699995000"}}}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(f.runner.OutDir), "state", "state.json"), []byte(legacy), 0o644))

	res, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Written)

	rec := f.stored(t)
	require.Equal(t, 3, rec.Len())
	assert.Equal(t, int64(1699996400), rec.At(0).SampleTime)
	assert.Equal(t, uint64(3), rec.At(2).Seq)
}
