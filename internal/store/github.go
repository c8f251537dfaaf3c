package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/service"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

const (
	githubAPIVersion = "2022-11-28"
	maxContentBytes  = 100 << 20
)

// GitHub stores the record as a file on a branch through the contents API.
// The version is the file's blob sha.
type GitHub struct {
	APIURL string
	Owner  string
	Repo   string
	Path   string
	Branch string
	Token  string
	Client service.HTTPClient
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (g *GitHub) Describe() string {
	return fmt.Sprintf("github:%s/%s@%s:%s", g.Owner, g.Repo, g.Branch, g.Path)
}

func (g *GitHub) contentsURL() string {
	escaped := make([]string, 0, 4)
	for _, seg := range strings.Split(strings.Trim(g.Path, "/"), "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(g.APIURL, "/"), url.PathEscape(g.Owner), url.PathEscape(g.Repo), strings.Join(escaped, "/"))
}

func (g *GitHub) header(accept string) http.Header {
	h := http.Header{}
	h.Set("Accept", accept)
	h.Set("X-GitHub-Api-Version", githubAPIVersion)
	if g.Token != "" {
		h.Set("Authorization", "Bearer "+g.Token)
	}
	return h
}

func (g *GitHub) Get(ctx context.Context) ([]byte, Version, error) {
	u := g.contentsURL() + "?ref=" + url.QueryEscape(g.Branch)

	resp, err := service.MakeHTTPRequest(ctx, g.Client, http.MethodGet, u, nil, g.header("application/vnd.github+json"))
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	defer utils.Try(resp.Body.Close)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NoVersion, errs.Newf(errs.NotFound, g.Describe(), "status 404")
	case !service.IsSuccess(resp.StatusCode):
		return nil, NoVersion, g.statusError(resp)
	}

	var c contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), fmt.Errorf("decode contents: %w", err))
	}

	// Files over 1 MiB come back without inline content.
	if c.Encoding != "base64" {
		data, err := g.getRaw(ctx, u)
		if err != nil {
			return nil, NoVersion, err
		}
		return data, Version(c.SHA), nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), fmt.Errorf("decode base64: %w", err))
	}
	return data, Version(c.SHA), nil
}

func (g *GitHub) getRaw(ctx context.Context, u string) ([]byte, error) {
	resp, err := service.MakeHTTPRequest(ctx, g.Client, http.MethodGet, u, nil, g.header("application/vnd.github.raw"))
	if err != nil {
		return nil, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	defer utils.Try(resp.Body.Close)

	if !service.IsSuccess(resp.StatusCode) {
		return nil, g.statusError(resp)
	}
	data, err := service.ReadLimited(resp.Body, maxContentBytes)
	if err != nil {
		return nil, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	return data, nil
}

func (g *GitHub) Put(ctx context.Context, data []byte, expected Version, message string) (Version, error) {
	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     string(expected),
		Branch:  g.Branch,
	})
	if err != nil {
		return NoVersion, err
	}

	h := g.header("application/vnd.github+json")
	h.Set("Content-Type", "application/json")
	resp, err := service.MakeHTTPRequest(ctx, g.Client, http.MethodPut, g.contentsURL(), bytes.NewReader(body), h)
	if err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	defer utils.Try(resp.Body.Close)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 409: sha does not match the branch head; 422: file exists but no sha was sent.
		msg, _ := service.ReadLimited(resp.Body, 4<<10)
		return NoVersion, errs.Newf(errs.VersionConflict, g.Describe(), "status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	default:
		return NoVersion, g.statusError(resp)
	}

	var pr putResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), fmt.Errorf("decode put response: %w", err))
	}
	if pr.Content.SHA == "" {
		return NoVersion, errs.Newf(errs.StoreUnavailable, g.Describe(), "put response carries no sha")
	}
	return Version(pr.Content.SHA), nil
}

func (g *GitHub) statusError(resp *http.Response) error {
	msg, _ := service.ReadLimited(resp.Body, 4<<10)
	return errs.Newf(errs.StoreUnavailable, g.Describe(), "status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
