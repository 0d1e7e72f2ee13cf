package render

import (
	"context"
	"fmt"
	"sync"
)

// FeedBuilder recomputes a user's feed views from persisted fragments. The
// sqlite repository implements it by concatenating stored renders — no
// templating happens at read time.
type FeedBuilder interface {
	BuildFeed(ctx context.Context, userID string) (string, error)
	BuildCommentsFeed(ctx context.Context, userID string) (string, error)
}

// FeedCache memoizes two precomputed HTML strings per user: the bookmark
// feed (all bookmarks, newest-modified first) and the all-comments view
// (newest first).
//
// Any mutation touching a user's bookmarks or comments invalidates both
// entries; the next read rebuilds lazily. That is a full O(total content
// size) recompute per mutation, and deliberately so: the corpus is one
// person's reading list, and full invalidation is trivially correct where
// per-item diffing would need proof. Do not "optimize" this into partial
// invalidation without that proof.
//
// Not a package global — an injected singleton whose lifetime is the
// process. Safe for concurrent use.
type FeedCache struct {
	mu       sync.RWMutex
	builder  FeedBuilder
	feeds    map[string]string
	comments map[string]string
}

// NewFeedCache creates an empty cache over the given builder.
func NewFeedCache(builder FeedBuilder) *FeedCache {
	return &FeedCache{
		builder:  builder,
		feeds:    make(map[string]string),
		comments: make(map[string]string),
	}
}

// Invalidate drops both cached views for a user. Cheap; called on every
// mutation affecting that user's data.
func (c *FeedCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.feeds, userID)
	delete(c.comments, userID)
	c.mu.Unlock()
}

// Feed returns the user's bookmark feed HTML, rebuilding it on a miss.
func (c *FeedCache) Feed(ctx context.Context, userID string) (string, error) {
	return c.get(ctx, userID, c.feeds, c.builder.BuildFeed)
}

// CommentsFeed returns the user's all-comments HTML, rebuilding on a miss.
func (c *FeedCache) CommentsFeed(ctx context.Context, userID string) (string, error) {
	return c.get(ctx, userID, c.comments, c.builder.BuildCommentsFeed)
}

func (c *FeedCache) get(
	ctx context.Context,
	userID string,
	m map[string]string,
	build func(context.Context, string) (string, error),
) (string, error) {
	c.mu.RLock()
	html, ok := m[userID]
	c.mu.RUnlock()
	if ok {
		return html, nil
	}

	// Rebuild under the write lock. A concurrent reader for the same user
	// may have beaten us here — the double check keeps the build single.
	c.mu.Lock()
	defer c.mu.Unlock()
	if html, ok := m[userID]; ok {
		return html, nil
	}
	html, err := build(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("render: rebuilding cached view for user %s: %w", userID, err)
	}
	m[userID] = html
	return html, nil
}
