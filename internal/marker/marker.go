// Package marker reads the publish marker (.cvmfspublished) a Stratum-1 exposes
// for each repository and extracts its T<unix> timestamp.
package marker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/service"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

const (
	DefaultPath = ".cvmfspublished"

	// maxBody caps how much of a marker is read; real markers are a few hundred bytes.
	maxBody = 64 << 10
)

// URL joins base, repository and marker path without doubling slashes.
func URL(base, fqrn, markerPath string) string {
	if markerPath == "" {
		markerPath = DefaultPath
	}
	return strings.TrimRight(base, "/") + "/" + strings.Trim(fqrn, "/") + "/" + strings.TrimLeft(markerPath, "/")
}

// Fetch performs exactly one GET against url and returns the marker timestamp.
// The client's timeout bounds the call.
func Fetch(ctx context.Context, c service.HTTPClient, url string) (int64, error) {
	resp, err := service.MakeHTTPRequest(ctx, c, http.MethodGet, url, nil, nil)
	if err != nil {
		return 0, errs.New(errs.EndpointUnavailable, url, err)
	}
	defer utils.Try(resp.Body.Close)

	if !service.IsSuccess(resp.StatusCode) {
		return 0, errs.Newf(errs.EndpointUnavailable, url, "status %d", resp.StatusCode)
	}

	body, err := service.ReadLimited(resp.Body, maxBody)
	if err != nil {
		return 0, errs.New(errs.EndpointUnavailable, url, err)
	}

	ts, err := Parse(bytes.NewReader(body))
	if err != nil {
		return 0, errs.New(errs.MalformedMarker, url, err)
	}
	return ts, nil
}

// Parse returns the timestamp of the first line starting with 'T'.
func Parse(r io.Reader) (int64, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "T") {
			continue
		}
		digits := strings.TrimRight(line[1:], " \t\r")
		if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
			return 0, errs.Newf(errs.MalformedMarker, "", "bad timestamp line %q", line)
		}
		ts, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, errs.New(errs.MalformedMarker, "", err)
		}
		return ts, nil
	}
	if err := sc.Err(); err != nil {
		return 0, errs.New(errs.MalformedMarker, "", err)
	}
	return 0, errs.Newf(errs.MalformedMarker, "", "no line starting with 'T'")
}
