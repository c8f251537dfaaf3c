package store

import "time"

// Meta sits next to a file-backed record and carries its version.
type Meta struct {
	ETag        string    `json:"etag"`
	Revision    uint64    `json:"revision"`
	SHA256      string    `json:"sha256"`
	SizeBytes   int64     `json:"size_bytes"`
	Message     string    `json:"message,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
