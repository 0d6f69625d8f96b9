package platform

import (
	"context"

	"github.com/irancrypto/marketbot/internal/store"
)

// MediaItem references one media attachment. Source is a local path or a
// remote URL; Data carries an in-memory buffer (e.g. renderer output) and
// takes precedence when set.
type MediaItem struct {
	Source string
	Data   []byte
}

// Content is the materialized artifact handed to a publisher: final post
// copy plus zero or more media attachments.
type Content struct {
	Text  string
	Media []MediaItem
}

// Publisher delivers materialized content to one platform.
type Publisher interface {
	// Platform returns the platform this publisher delivers to.
	Platform() store.Platform

	// Publish delivers the content for the given target. A returned error is
	// retryable at the granularity of the scheduled entry.
	Publish(ctx context.Context, target string, content *Content) error
}
