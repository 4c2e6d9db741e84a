// Package bytesource implements the byte-source contract the ebml reader
// consumes (internal/ebml.Source), plus a Close lifecycle: an in-memory
// buffer, a local read-only file, and an HTTP range-caching source with
// forward-seek locality.
package bytesource

import "errors"

// Source satisfies ebml.Source and adds a lifecycle Close, matching the
// teacher's io.ReadCloser-based audio sources (server/audio/mp3_source.go).
type Source interface {
	Read(buf []byte, pos *int64, n int) error
	Length() (int64, error)
	Close() error
}

// ErrOutOfRange mirrors ebml.ErrOutOfRange so callers that only import
// bytesource don't need to reach into the ebml package for comparison.
var ErrOutOfRange = errors.New("bytesource: read out of range")
