package marker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
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

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int64
		wantErr bool
	}{
		{name: "catalog then timestamp", body: "C123\nT1700000000\n", want: 1700000000},
		{name: "trailing whitespace", body: "Cabc\nT1700000001  \r\nX\n", want: 1700000001},
		{name: "first T line wins", body: "T5\nT6\n", want: 5},
		{name: "no T line", body: "C123\nS42\n", wantErr: true},
		{name: "empty body", body: "", wantErr: true},
		{name: "T without digits", body: "Tfoo\n", wantErr: true},
		{name: "bare T", body: "T\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.ErrMalformedMarker))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURL(t *testing.T) {
	assert.Equal(t,
		"http://s1.example.org:8000/cvmfs/eic.opensciencegrid.org/.cvmfspublished",
		URL("http://s1.example.org:8000/cvmfs/", "eic.opensciencegrid.org", ""))
	assert.Equal(t,
		"http://s1/cvmfs/r/custom",
		URL("http://s1/cvmfs", "/r/", "/custom"))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cvmfs/ok/.cvmfspublished":
			_, _ = w.Write([]byte("C123\nT1700000000\n"))
		case "/cvmfs/garbled/.cvmfspublished":
			_, _ = w.Write([]byte("nothing useful\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := service.NewHTTPClient(2 * time.Second)
	base := srv.URL + "/cvmfs"

	ts, err := Fetch(context.Background(), client, URL(base, "ok", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	_, err = Fetch(context.Background(), client, URL(base, "garbled", ""))
	assert.True(t, errors.Is(err, errs.ErrMalformedMarker), "got %v", err)

	_, err = Fetch(context.Background(), client, URL(base, "missing", ""))
	assert.True(t, errors.Is(err, errs.ErrEndpointUnavailable), "got %v", err)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := service.NewHTTPClient(50 * time.Millisecond)
	_, err := Fetch(context.Background(), client, URL(srv.URL, "slow", ""))
	assert.True(t, errors.Is(err, errs.ErrEndpointUnavailable), "got %v", err)
}
