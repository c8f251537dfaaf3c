package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

// FS keeps the record as a file in a directory, with meta.json holding the version.
// Compare-and-swap is serialized within the process only.
type FS struct {
	dir        string
	recordPath string
	metaPath   string

	mu      sync.Mutex
	hotData []byte
	hotMeta Meta
}

func NewFS(dir, name string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.StoreUnavailable, "mkdir "+dir, err)
	}
	if name == "" {
		name = "state.json"
	}
	s := &FS{
		dir:        dir,
		recordPath: filepath.Join(dir, filepath.Base(name)),
		metaPath:   filepath.Join(dir, filepath.Base(name)+".meta.json"),
	}
	return s, nil
}

func (s *FS) Describe() string { return "fs:" + s.recordPath }

func (s *FS) Get(ctx context.Context) ([]byte, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, meta, err := s.loadLocked()
	if err != nil {
		return nil, NoVersion, err
	}
	return data, Version(meta.ETag), nil
}

func (s *FS) Put(ctx context.Context, data []byte, expected Version, message string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, cur, err := s.loadLocked()
	switch {
	case errors.Is(err, errs.ErrNotFound):
		if expected != NoVersion {
			return NoVersion, errs.Newf(errs.VersionConflict, s.Describe(), "expected %s, record is gone", expected.Short())
		}
	case err != nil:
		return NoVersion, err
	case Version(cur.ETag) != expected:
		return NoVersion, errs.Newf(errs.VersionConflict, s.Describe(), "expected %s, found %s", expected.Short(), Version(cur.ETag).Short())
	}

	sum := sha256.Sum256(data)
	meta := Meta{
		Revision:    cur.Revision + 1,
		SHA256:      hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(data)),
		Message:     message,
		GeneratedAt: time.Now().UTC(),
	}
	meta.ETag = fmt.Sprintf("%d-%s", meta.Revision, meta.SHA256[:16])

	logger.Debug("writing %s (rev %d, %d bytes)", s.recordPath, meta.Revision, meta.SizeBytes)
	if err := utils.WriteFileAtomic(s.recordPath+".tmp", s.recordPath, bytes.NewReader(data)); err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}
	if err := utils.WriteJSONAtomic(s.metaPath, meta); err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}

	s.hotData = append([]byte(nil), data...)
	s.hotMeta = meta
	return Version(meta.ETag), nil
}

// loadLocked reads the meta first and serves the hot copy if its ETag still matches.
// A record file without meta is adopted at revision 0 instead of being reported missing.
func (s *FS) loadLocked() ([]byte, Meta, error) {
	meta, err := s.readMeta()
	if errors.Is(err, errs.ErrNotFound) {
		return s.adoptLocked(err)
	}
	if err != nil {
		return nil, Meta{}, err
	}
	if s.hotData != nil && s.hotMeta.ETag == meta.ETag {
		return append([]byte(nil), s.hotData...), meta, nil
	}

	data, err := os.ReadFile(s.recordPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Meta{}, errs.New(errs.StoreUnavailable, s.Describe(), fmt.Errorf("meta present but record file missing"))
	}
	if err != nil {
		return nil, Meta{}, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != meta.SHA256 {
		return nil, Meta{}, errs.Newf(errs.StoreUnavailable, s.Describe(), "record does not match its meta checksum (torn write?)")
	}

	s.hotData = append([]byte(nil), data...)
	s.hotMeta = meta
	return data, meta, nil
}

// adoptLocked serves a record file that has no meta yet (copied in, or meta
// deleted). notFound is returned when there is no record file either.
func (s *FS) adoptLocked(notFound error) ([]byte, Meta, error) {
	data, err := os.ReadFile(s.recordPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Meta{}, notFound
	}
	if err != nil {
		return nil, Meta{}, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}

	sum := sha256.Sum256(data)
	meta := Meta{SHA256: hex.EncodeToString(sum[:]), SizeBytes: int64(len(data))}
	meta.ETag = fmt.Sprintf("0-%s", meta.SHA256[:16])
	logger.Warn("%s has no meta file, adopting it as revision 0", s.recordPath)
	return data, meta, nil
}

func (s *FS) readMeta() (Meta, error) {
	raw, err := os.ReadFile(s.metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return Meta{}, errs.New(errs.NotFound, s.Describe(), err)
	}
	if err != nil {
		return Meta{}, errs.New(errs.StoreUnavailable, s.Describe(), err)
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return Meta{}, errs.New(errs.StoreUnavailable, "meta "+s.metaPath, err)
	}
	return m, nil
}
