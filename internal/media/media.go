// Package media stores uploaded assets (video files, thumbnails, avatars,
// cover images) in an object store and hands back publicly resolvable URLs.
package media

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a delete targets an asset the store no longer
// holds.
var ErrNotFound = errors.New("media: asset not found")

// Asset describes a stored object. DurationSeconds is only populated by
// backends that can probe media metadata; object stores report zero and
// callers fall back to client-supplied metadata.
type Asset struct {
	URL             string
	DurationSeconds float64
}

// Store persists uploaded media. Upload consumes the reader fully; the
// returned Asset URL is what gets persisted on user and video records, and
// Delete accepts that same URL when records are removed or replaced.
type Store interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (Asset, error)
	Delete(ctx context.Context, assetURL string) error
}
