package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/clipmark/clipmark/internal/model"
	"github.com/clipmark/clipmark/internal/repository"
)

const (
	fetchTimeout  = 30 * time.Second
	fetchAttempts = 3
	maxAssetBytes = 32 << 20 // refuse to mirror assets larger than 32 MiB
)

// Fetcher downloads referenced assets into the blob/media tables.
//
// Failure model: every URL is independent. A non-OK status, a missing
// content type, or a network error logs a warning and skips that URL —
// it never aborts the rest of the snapshot, and because the fetch runs
// after the clip transaction committed it cannot affect the bookmark or
// comment either.
type Fetcher struct {
	media  repository.MediaRepository
	client *http.Client
	logger *slog.Logger

	// sleep is swappable in tests so retry jitter doesn't slow them down.
	sleep func(time.Duration)
}

// NewFetcher creates a Fetcher writing through the given media repository.
func NewFetcher(media repository.MediaRepository, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		media:  media,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
		sleep:  time.Sleep,
	}
}

// MirrorAsync kicks off Mirror in the background and returns immediately.
// The clip path calls this after its transaction commits.
func (f *Fetcher) MirrorAsync(bookmarkID int64, refs []Ref) {
	if len(refs) == 0 {
		return
	}
	go f.Mirror(context.Background(), bookmarkID, refs)
}

// Mirror downloads every referenced asset, storing bytes in blobs and the
// (bookmark, path) mapping in media. Both inserts are idempotent, so
// mirroring the same snapshot twice is harmless.
func (f *Fetcher) Mirror(ctx context.Context, bookmarkID int64, refs []Ref) {
	for _, ref := range refs {
		if err := f.fetchWithRetry(ctx, bookmarkID, ref); err != nil {
			f.logger.Warn("skipping snapshot asset",
				slog.Int64("bookmarkID", bookmarkID),
				slog.String("url", ref.Original),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, bookmarkID int64, ref Ref) error {
	var err error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			// Jittered backoff so a flaky host isn't hammered in lockstep.
			f.sleep(time.Duration(attempt)*500*time.Millisecond +
				time.Duration(rand.Intn(500))*time.Millisecond)
		}
		if err = f.fetchOne(ctx, bookmarkID, ref); err == nil {
			return nil
		}
	}
	return err
}

func (f *Fetcher) fetchOne(ctx context.Context, bookmarkID int64, ref Ref) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.Original, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		return fmt.Errorf("response has no content type")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxAssetBytes {
		return fmt.Errorf("asset exceeds %d bytes", maxAssetBytes)
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	if err := f.media.InsertBlob(ctx, &model.Blob{
		SHA256:  hash,
		Mime:    mime,
		Size:    int64(len(body)),
		Content: body,
	}); err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	return f.media.InsertMedia(ctx, &model.Media{
		BookmarkID: bookmarkID,
		Path:       ref.MirrorPath,
		SHA256:     hash,
	})
}
