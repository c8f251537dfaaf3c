package store

import (
	"fmt"

	"github.com/MrSnakeDoc/s1lag/internal/config"
	"github.com/MrSnakeDoc/s1lag/internal/service"
)

// Open builds the backend named by cfg.Backend. The returned close func releases
// backend resources and is never nil.
func Open(cfg config.StoreConfig, client service.HTTPClient) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendGitHub:
		owner, repo, err := cfg.GitHub.OwnerRepo()
		if err != nil {
			return nil, noop, err
		}
		return &GitHub{
			APIURL: cfg.GitHub.APIURL,
			Owner:  owner,
			Repo:   repo,
			Path:   cfg.Path,
			Branch: cfg.GitHub.Branch,
			Token:  cfg.GitHub.Token,
			Client: client,
		}, noop, nil

	case config.BackendGit:
		if cfg.Git.URL != "" {
			g, err := CloneGit(cfg.Git.URL, cfg.Git.Branch, cfg.Path, cfg.Git.AuthorName, cfg.Git.AuthorEmail)
			if err != nil {
				return nil, noop, err
			}
			return g, noop, nil
		}
		g, err := OpenGit(cfg.Git.Dir, cfg.Git.Branch, cfg.Path, cfg.Git.Remote, cfg.Git.AuthorName, cfg.Git.AuthorEmail)
		if err != nil {
			return nil, noop, err
		}
		return g, noop, nil

	case config.BackendBolt:
		b, err := OpenBolt(cfg.Bolt.File, cfg.Bolt.Bucket, cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil

	case config.BackendFS:
		f, err := NewFS(cfg.FS.Dir, cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
