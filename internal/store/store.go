// Package store provides versioned blob backends for the lag record.
//
// Every backend offers read-with-version and compare-and-swap write. A write with
// NoVersion is a create and fails if something was stored meanwhile.
package store

import (
	"context"
)

// Version is an opaque revision token that changes on every successful write.
type Version string

const NoVersion Version = ""

func (v Version) Short() string {
	if v == NoVersion {
		return "<none>"
	}
	if len(v) > 12 {
		return string(v[:12])
	}
	return string(v)
}

type Backend interface {
	// Get returns the stored bytes and their version, errs.ErrNotFound if nothing
	// is stored, errs.ErrStoreUnavailable on transport failure.
	Get(ctx context.Context) ([]byte, Version, error)

	// Put stores data if the current version equals expected and returns the new
	// version. A mismatch is errs.ErrVersionConflict and leaves the stored bytes untouched.
	Put(ctx context.Context, data []byte, expected Version, message string) (Version, error)

	// Describe names the location for logs.
	Describe() string
}
