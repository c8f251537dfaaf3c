// Package sampler fans the marker client out over the configured mirror list.
package sampler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/marker"
	"github.com/MrSnakeDoc/s1lag/internal/service"
)

// FetchFunc fetches one marker. marker.Fetch in production.
type FetchFunc func(ctx context.Context, c service.HTTPClient, url string) (int64, error)

// MirrorResult is the outcome for one mirror: Err is nil on success, otherwise it
// wraps errs.ErrEndpointUnavailable or errs.ErrMalformedMarker.
type MirrorResult struct {
	Mirror    string
	URL       string
	Timestamp int64
	Err       error
}

func (r MirrorResult) OK() bool { return r.Err == nil }

type RepoResult struct {
	FQRN    string
	Mirrors []MirrorResult // in configured mirror order
}

// Timestamps maps mirror -> decimal timestamp for the successful mirrors.
func (r RepoResult) Timestamps() map[string]string {
	out := make(map[string]string, len(r.Mirrors))
	for _, m := range r.Mirrors {
		if m.OK() {
			out[m.Mirror] = strconv.FormatInt(m.Timestamp, 10)
		}
	}
	return out
}

func (r RepoResult) Failures() int {
	n := 0
	for _, m := range r.Mirrors {
		if !m.OK() {
			n++
		}
	}
	return n
}

// Sample is one pass's contribution across all FQRNs.
type Sample struct {
	Time   time.Time
	FQRNs  map[string]map[string]string // only repositories with at least one mirror
	Failed []string                     // repositories where every mirror failed
	Repos  []RepoResult
}

type Mirror struct {
	ID   string
	Base string
}

type Sampler struct {
	Mirrors     []Mirror
	MarkerPath  string
	Concurrency int
	Client      service.HTTPClient
	Fetch       FetchFunc
}

// New builds a sampler over base URLs; a nil client gets a default one with timeout.
func New(bases []string, markerPath string, concurrency int, client service.HTTPClient, timeout time.Duration) (*Sampler, error) {
	mirrors := make([]Mirror, 0, len(bases))
	seen := make(map[string]string, len(bases))
	for _, b := range bases {
		id, err := MirrorID(b)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("mirrors %q and %q share the identifier %q", prev, b, id)
		}
		seen[id] = b
		mirrors = append(mirrors, Mirror{ID: id, Base: b})
	}
	if client == nil {
		client = service.NewHTTPClient(timeout)
	}
	if concurrency <= 0 {
		concurrency = len(mirrors)
	}
	return &Sampler{
		Mirrors:     mirrors,
		MarkerPath:  markerPath,
		Concurrency: concurrency,
		Client:      client,
		Fetch:       marker.Fetch,
	}, nil
}

// MirrorID strips scheme, port and path from a mirror base location.
func MirrorID(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse mirror %q: %w", base, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("mirror %q has no host", base)
	}
	return u.Hostname(), nil
}

// SampleRepo queries every mirror once for fqrn. It never fails: per-mirror
// errors are logged and carried in the results.
func (s *Sampler) SampleRepo(ctx context.Context, fqrn string) RepoResult {
	results := make([]MirrorResult, len(s.Mirrors))

	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	for i, m := range s.Mirrors {
		i, m := i, m
		g.Go(func() error {
			u := marker.URL(m.Base, fqrn, s.MarkerPath)
			ts, err := s.Fetch(ctx, s.Client, u)
			results[i] = MirrorResult{Mirror: m.ID, URL: u, Timestamp: ts, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.OK() {
			logger.Debug("%s @ %s: T%d", fqrn, r.Mirror, r.Timestamp)
			continue
		}
		logger.Warn("%s @ %s: %v", fqrn, r.Mirror, r.Err)
	}

	return RepoResult{FQRN: fqrn, Mirrors: results}
}

// SampleAll samples each repository in turn. It fails with errs.ErrNoDataCollected
// only when no repository got a single mirror answer.
func (s *Sampler) SampleAll(ctx context.Context, fqrns []string, now time.Time) (Sample, error) {
	out := Sample{
		Time:  now,
		FQRNs: make(map[string]map[string]string, len(fqrns)),
	}

	for _, fqrn := range fqrns {
		rr := s.SampleRepo(ctx, fqrn)
		out.Repos = append(out.Repos, rr)

		ts := rr.Timestamps()
		if len(ts) == 0 {
			logger.Warn("%s: all %d mirrors failed, repository left out of this pass", fqrn, len(rr.Mirrors))
			out.Failed = append(out.Failed, fqrn)
			continue
		}
		out.FQRNs[fqrn] = ts
	}

	if len(out.FQRNs) == 0 {
		return out, errs.Newf(errs.NoDataCollected, "sample", "%d repositories, %d mirrors", len(fqrns), len(s.Mirrors))
	}
	return out, nil
}
