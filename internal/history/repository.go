package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/store"
)

// Repository reads and writes Records through a versioned blob backend.
type Repository struct {
	Backend store.Backend
	Path    string // used in commit messages
}

func NewRepository(b store.Backend, path string) *Repository {
	return &Repository{Backend: b, Path: path}
}

// Read returns the stored record and its version. A missing record is reported
// as errs.ErrNotFound; use ReadOrEmpty to bootstrap.
func (r *Repository) Read(ctx context.Context) (*Record, store.Version, error) {
	data, ver, err := r.Backend.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	if q := len(rec.quarantine); q > 0 {
		logger.Warn("%s: %d entries quarantined (kept verbatim)", r.Backend.Describe(), q)
	}
	logger.Debug("read %s: %d entries at version %s", r.Backend.Describe(), rec.Len(), ver.Short())
	return rec, ver, nil
}

// ReadOrEmpty is Read with NotFound mapped to an empty record and the empty version,
// which makes the following Write an unconditional create.
func (r *Repository) ReadOrEmpty(ctx context.Context) (*Record, store.Version, error) {
	rec, ver, err := r.Read(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		logger.Info("no record at %s yet, starting a new one", r.Backend.Describe())
		return NewRecord(), store.NoVersion, nil
	}
	return rec, ver, err
}

// Write stores rec if the stored version is still expected (NoVersion: create).
func (r *Repository) Write(ctx context.Context, rec *Record, expected store.Version) (store.Version, error) {
	data, err := Encode(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	msg := fmt.Sprintf("Update %s via s1lag", r.Path)
	if expected == store.NoVersion {
		msg = fmt.Sprintf("Create %s via s1lag", r.Path)
	}
	ver, err := r.Backend.Put(ctx, data, expected, msg)
	if err != nil {
		return "", err
	}
	logger.Debug("wrote %s: %d entries, version %s -> %s", r.Backend.Describe(), rec.Len(), expected.Short(), ver.Short())
	return ver, nil
}
