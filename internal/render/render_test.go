package render

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/printer"
)

func series() lag.Series {
	t0 := time.Unix(1700003600, 0).UTC()
	return lag.Series{
		"s1-a": {{Time: t0, LagHours: -1}, {Time: t0.Add(time.Hour), LagHours: -0.5}},
		"s1-b": {{Time: t0.Add(time.Hour), LagHours: -9}},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "singularity.opensciencegrid.org.png", FileName("singularity.opensciencegrid.org"))
	assert.Equal(t, "a_b.png", FileName("a/b"))
	assert.Equal(t, "_.png", FileName(".."))
	assert.Equal(t, FileName("eic"), FileName("eic"))
}

func TestChartInDir_WritesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	path, err := ChartInDir(dir, "eic.opensciencegrid.org", series())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "eic.opensciencegrid.org.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	err := Table(&buf, printer.NewColorPrinter(false), "eic", series(), Thresholds{Warn: 2, Crit: 8})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "eic")
	assert.Contains(t, out, "s1-a")
	assert.Contains(t, out, "-0.50")
	assert.Contains(t, out, "-9.00")
}
