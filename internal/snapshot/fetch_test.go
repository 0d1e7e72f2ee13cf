package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
)

// memMedia is an in-memory MediaRepository capturing what the fetcher
// stores.
type memMedia struct {
	mu    sync.Mutex
	blobs map[string]*model.Blob
	media map[string]*model.Media // keyed by path
}

func newMemMedia() *memMedia {
	return &memMedia{
		blobs: make(map[string]*model.Blob),
		media: make(map[string]*model.Media),
	}
}

func (m *memMedia) InsertBlob(_ context.Context, blob *model.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[blob.SHA256]; ok {
		return nil // dedupe, like the real repository
	}
	m.blobs[blob.SHA256] = blob
	return nil
}

func (m *memMedia) InsertMedia(_ context.Context, media *model.Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[media.Path] = media
	return nil
}

func (m *memMedia) GetBlob(_ context.Context, sha string) (*model.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.blobs[sha]; ok {
		return b, nil
	}
	return nil, apperror.NotFound("blob", sha)
}

func (m *memMedia) GetMediaByPath(_ context.Context, _ int64, path string) (*model.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if md, ok := m.media[path]; ok {
		return md, nil
	}
	return nil, apperror.NotFound("media", path)
}

func newTestFetcher(store *memMedia) *Fetcher {
	f := NewFetcher(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.sleep = func(time.Duration) {} // no backoff delay in tests
	return f
}

func TestMirror_StoresBlobAndMapping(t *testing.T) {
	payload := []byte("fake png bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	store := newMemMedia()
	f := newTestFetcher(store)

	ref := Ref{Original: srv.URL + "/pic.png", MirrorPath: mirrorPath(7, srv.URL+"/pic.png")}
	f.Mirror(context.Background(), 7, []Ref{ref})

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	blob, err := store.GetBlob(context.Background(), hash)
	require.NoError(t, err, "blob should be stored under its content hash")
	assert.Equal(t, "image/png", blob.Mime)
	assert.Equal(t, int64(len(payload)), blob.Size)

	media, err := store.GetMediaByPath(context.Background(), 7, ref.MirrorPath)
	require.NoError(t, err, "media row should be keyed by the mirror path")
	assert.Equal(t, hash, media.SHA256)
	assert.Equal(t, int64(7), media.BookmarkID)
}

func TestMirror_SkipsFailedURLsIndependently(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body{}"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer bad.Close()

	store := newMemMedia()
	f := newTestFetcher(store)

	f.Mirror(context.Background(), 1, []Ref{
		{Original: bad.URL + "/missing.png", MirrorPath: mirrorPath(1, bad.URL+"/missing.png")},
		{Original: good.URL + "/main.css", MirrorPath: mirrorPath(1, good.URL+"/main.css")},
	})

	// The failing URL is skipped; the good one still lands.
	_, err := store.GetMediaByPath(context.Background(), 1, mirrorPath(1, good.URL+"/main.css"))
	assert.NoError(t, err)
	_, err = store.GetMediaByPath(context.Background(), 1, mirrorPath(1, bad.URL+"/missing.png"))
	assert.Error(t, err)
}

func TestFetchWithRetry_RecoversFromTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/gif")
		w.Write([]byte("gif"))
	}))
	defer srv.Close()

	store := newMemMedia()
	f := newTestFetcher(store)

	ref := Ref{Original: srv.URL, MirrorPath: mirrorPath(1, srv.URL)}
	err := f.fetchWithRetry(context.Background(), 1, ref)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFetchOne_RejectsMissingContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Suppress Go's automatic content-type sniffing.
		w.Header()["Content-Type"] = nil
		w.Write([]byte("???"))
	}))
	defer srv.Close()

	f := newTestFetcher(newMemMedia())
	err := f.fetchOne(context.Background(), 1, Ref{Original: srv.URL, MirrorPath: "/media/1/x"})
	assert.ErrorContains(t, err, "no content type")
}

func TestFetchOne_RejectsOversizedAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		chunk := make([]byte, 1<<20)
		for i := 0; i < 33; i++ { // 33 MiB, over the cap
			w.Write(chunk)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(newMemMedia())
	err := f.fetchOne(context.Background(), 1, Ref{Original: srv.URL, MirrorPath: "/media/1/x"})
	assert.ErrorContains(t, err, "exceeds")
}
