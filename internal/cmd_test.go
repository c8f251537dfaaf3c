package internal

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/middleware"
)

func TestMain(m *testing.M) {
	logger.UseTestMode()
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return out.String(), err
}

// mirror serves .cvmfspublished for every repository.
func mirror(t *testing.T, ts int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/.cvmfspublished") {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprintf(w, "Cabc123\nB1024\nT%d\nR0\n--\n", ts)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, mirrors ...string) (string, string) {
	t.Helper()
	t.Setenv("S1LAG_STORE_BACKEND", "")
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("fqrns:\n  - eic.opensciencegrid.org\n  - singularity.opensciencegrid.org\nmirrors:\n")
	for _, m := range mirrors {
		fmt.Fprintf(&b, "  - %s\n", m)
	}
	fmt.Fprintf(&b, "timeout: 2s\nstore:\n  backend: fs\n  fs:\n    dir: %s\noutput:\n  dir: %s\n",
		filepath.Join(dir, "state"), filepath.Join(dir, "plots"))

	path := filepath.Join(dir, "s1lag.yml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path, dir
}

func TestRootCmd_FlagValidation(t *testing.T) {
	_, err := execute(t, "version", "-q", "-V")
	require.Error(t, err)
	assert.True(t, errors.Is(err, middleware.ErrLogged))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "s1lag")

	out, err = execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:")
}

func TestInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1lag.toml")

	_, err := execute(t, "init", "-c", path, "--backend", "fs")
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `backend = "fs"`)

	_, err = execute(t, "init", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "init", "-c", path, "--force", "--backend", "s3")
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))
}

func TestSampleReportPlot(t *testing.T) {
	up := mirror(t, 1700000000)
	cfgPath, dir := writeConfig(t, up.URL+"/cvmfs", "http://[::1]:1/cvmfs")

	_, err := execute(t, "sample", "-c", cfgPath, "--no-plot")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "state", "state.json"))
	assert.NoFileExists(t, filepath.Join(dir, "plots", "eic.opensciencegrid.org.png"))

	out, err := execute(t, "report", "-c", cfgPath, "eic.opensciencegrid.org")
	require.NoError(t, err)
	assert.Contains(t, out, "eic.opensciencegrid.org")
	assert.Contains(t, out, "127.0.0.1")
	assert.NotContains(t, out, "singularity.opensciencegrid.org")

	plots := filepath.Join(dir, "charts")
	_, err = execute(t, "plot", "-c", cfgPath, "-o", plots)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(plots, "eic.opensciencegrid.org.png"))
	assert.FileExists(t, filepath.Join(plots, "singularity.opensciencegrid.org.png"))
}

func TestSampleCmd_NoData(t *testing.T) {
	cfgPath, dir := writeConfig(t, "http://[::1]:1/cvmfs")

	_, err := execute(t, "sample", "-c", cfgPath, "--no-plot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoDataCollected))
	assert.NoFileExists(t, filepath.Join(dir, "state", "state.json"))
}

func TestReportCmd_Errors(t *testing.T) {
	up := mirror(t, 1700000000)
	cfgPath, _ := writeConfig(t, up.URL+"/cvmfs")

	_, err := execute(t, "report", "-c", cfgPath)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = execute(t, "sample", "-c", cfgPath, "--no-plot")
	require.NoError(t, err)

	_, err = execute(t, "report", "-c", cfgPath, "atlas.cern.ch")
	assert.True(t, errors.Is(err, middleware.ErrLogged))

	_, err = execute(t, "report", "-c", filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))
}
