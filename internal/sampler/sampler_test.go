package sampler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/service"
)

func TestMain(m *testing.M) {
	logger.UseTestMode()
	os.Exit(m.Run())
}

// fakeFetch answers from a host -> timestamp table; missing hosts fail.
func fakeFetch(ok map[string]int64, calls *atomic.Int32) FetchFunc {
	return func(_ context.Context, _ service.HTTPClient, u string) (int64, error) {
		calls.Add(1)
		for host, ts := range ok {
			if strings.Contains(u, "://"+host) {
				return ts, nil
			}
		}
		return 0, errs.Newf(errs.EndpointUnavailable, u, "connection refused")
	}
}

func newTestSampler(t *testing.T, n int, ok map[string]int64, calls *atomic.Int32) *Sampler {
	t.Helper()
	bases := make([]string, n)
	for i := range bases {
		bases[i] = fmt.Sprintf("http://s1-%d.example.org:8000/cvmfs", i)
	}
	s, err := New(bases, "", 3, &service.DefaultHTTPClient{Client: http.DefaultClient}, time.Second)
	require.NoError(t, err)
	s.Fetch = fakeFetch(ok, calls)
	return s
}

func TestMirrorID(t *testing.T) {
	id, err := MirrorID("http://cvmfs-s1bnl.opensciencegrid.org:8000/cvmfs")
	require.NoError(t, err)
	assert.Equal(t, "cvmfs-s1bnl.opensciencegrid.org", id)

	id, err = MirrorID("https://s1.example.org")
	require.NoError(t, err)
	assert.Equal(t, "s1.example.org", id)

	_, err = MirrorID("not a url")
	assert.Error(t, err)
}

func TestNew_DuplicateMirrorID(t *testing.T) {
	_, err := New([]string{"http://a:8000/cvmfs", "https://a/cvmfs"}, "", 1, nil, time.Second)
	assert.Error(t, err)
}

func TestSampleRepo_PartialFailure(t *testing.T) {
	var calls atomic.Int32
	// k=3 of n=5 fail
	s := newTestSampler(t, 5, map[string]int64{
		"s1-1.example.org": 100,
		"s1-4.example.org": 400,
	}, &calls)

	rr := s.SampleRepo(context.Background(), "eic.opensciencegrid.org")

	assert.EqualValues(t, 5, calls.Load(), "exactly one attempt per mirror")
	assert.Len(t, rr.Mirrors, 5)
	assert.Equal(t, 3, rr.Failures())
	assert.Equal(t, map[string]string{
		"s1-1.example.org": "100",
		"s1-4.example.org": "400",
	}, rr.Timestamps())

	for _, m := range rr.Mirrors {
		if !m.OK() {
			assert.True(t, errors.Is(m.Err, errs.ErrEndpointUnavailable))
		}
	}
}

func TestSampleRepo_OrderIndependent(t *testing.T) {
	var calls atomic.Int32
	ok := map[string]int64{"s1-0.example.org": 1, "s1-1.example.org": 2, "s1-2.example.org": 3}
	s := newTestSampler(t, 3, ok, &calls)

	first := s.SampleRepo(context.Background(), "r").Timestamps()
	s.Concurrency = 1
	second := s.SampleRepo(context.Background(), "r").Timestamps()
	assert.Equal(t, first, second)
}

func TestSampleAll_RepoOmittedWhenAllMirrorsFail(t *testing.T) {
	var calls atomic.Int32
	s := newTestSampler(t, 2, map[string]int64{"s1-0.example.org": 10}, &calls)
	s.Fetch = func(_ context.Context, _ service.HTTPClient, u string) (int64, error) {
		if strings.Contains(u, "/eic/") && strings.Contains(u, "s1-0") {
			return 10, nil
		}
		return 0, errs.Newf(errs.MalformedMarker, u, "no T line")
	}

	now := time.Unix(1700003600, 0)
	sample, err := s.SampleAll(context.Background(), []string{"eic", "singularity"}, now)
	require.NoError(t, err)

	assert.Equal(t, now, sample.Time)
	assert.Equal(t, map[string]map[string]string{"eic": {"s1-0.example.org": "10"}}, sample.FQRNs)
	assert.Equal(t, []string{"singularity"}, sample.Failed)
	assert.Len(t, sample.Repos, 2)
}

func TestSampleAll_NoDataCollected(t *testing.T) {
	var calls atomic.Int32
	s := newTestSampler(t, 3, nil, &calls)

	_, err := s.SampleAll(context.Background(), []string{"eic", "singularity"}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoDataCollected))
	assert.EqualValues(t, 6, calls.Load())
}

func TestSampleRepo_HTTPMirrors(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("C0\nT1700000000\n"))
	}))
	defer up.Close()

	// nothing listens on port 1
	s, err := New([]string{up.URL + "/cvmfs", "http://[::1]:1/cvmfs"}, "", 2, nil, time.Second)
	require.NoError(t, err)

	rr := s.SampleRepo(context.Background(), "eic")
	assert.Equal(t, map[string]string{"127.0.0.1": "1700000000"}, rr.Timestamps())
	assert.Equal(t, 1, rr.Failures())
}
