package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/sampler"
)

func TestExporter(t *testing.T) {
	e := New()

	e.ObserveSample(sampler.Sample{Repos: []sampler.RepoResult{
		{FQRN: "eic", Mirrors: []sampler.MirrorResult{
			{Mirror: "a", Timestamp: 1700000000},
			{Mirror: "b", Err: errors.New("down")},
		}},
		{FQRN: "singularity", Mirrors: []sampler.MirrorResult{
			{Mirror: "a", Err: errors.New("down")},
		}},
	}})
	e.ObserveSeries("eic", lag.Series{"a": {{Time: time.Unix(1700003600, 0), LagHours: -1}}})
	e.ObservePass(time.Unix(1700003600, 0), 42)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.up.WithLabelValues("eic", "a")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.up.WithLabelValues("eic", "b")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(e.published.WithLabelValues("eic", "a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.repoUp.WithLabelValues("eic")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.repoUp.WithLabelValues("singularity")))
	assert.Equal(t, -1.0, testutil.ToFloat64(e.lagHours.WithLabelValues("eic", "a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.failures.WithLabelValues("eic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.failures.WithLabelValues("singularity")))
	assert.Equal(t, 42.0, testutil.ToFloat64(e.entries))

	path := filepath.Join(t.TempDir(), "textfile", "s1lag.prom")
	require.NoError(t, e.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `s1lag_mirror_lag_hours{fqrn="eic",mirror="a"} -1`))
}
