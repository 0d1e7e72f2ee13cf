package handler

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/auth"
	"github.com/clipmark/clipmark/internal/repository"
	"github.com/clipmark/clipmark/internal/service"
)

// FeedHandler serves the rendered HTML feeds and mirrored media assets.
// The feeds are read straight from the cache as prebuilt HTML; no template
// rendering happens per request.
type FeedHandler struct {
	bookmarks *service.BookmarkService
	media     repository.MediaRepository
	logger    *slog.Logger
}

func NewFeedHandler(bookmarks *service.BookmarkService, media repository.MediaRepository, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{bookmarks: bookmarks, media: media, logger: logger}
}

// HandleFeed serves the user's bookmark feed, newest-updated first.
//
// HTTP: GET /feed
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "Bookmarks", h.bookmarks.Feed)
}

// HandleCommentsFeed serves the flat feed of standalone comments.
//
// HTTP: GET /comments
func (h *FeedHandler) HandleCommentsFeed(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "Comments", h.bookmarks.CommentsFeed)
}

// servePage wraps a cached feed body in a minimal HTML shell. The body is
// already-escaped HTML built by the render package.
func (h *FeedHandler) servePage(
	w http.ResponseWriter,
	r *http.Request,
	title string,
	build func(ctx context.Context, userID string) (string, error),
) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	body, err := build(r.Context(), userID)
	if err != nil {
		h.logger.Error("building feed", slog.String("userID", userID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeShell(w, title, body)
}

// writeShell wraps already-rendered body HTML in the minimal page shell.
func writeShell(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n", title)
	w.Write([]byte(body))
	fmt.Fprint(w, "</body></html>\n")
}

// HandleCommentPage serves one comment's standalone page straight from its
// cached full render: bookmark header, sibling navigation, body.
//
// HTTP: GET /comments/{id}
func (h *FeedHandler) HandleCommentPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.bookmarks.GetComment(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeShell(w, "Comment", c.FullRender)
}

// HandleCommentBySibling resolves the prev/next navigation links, which
// address a comment by its position within the bookmark rather than by id.
//
// HTTP: GET /bookmarks/{bookmarkID}/comments/{idx}
func (h *FeedHandler) HandleCommentBySibling(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	bookmarkID, err := idParam(r, "bookmarkID")
	if err != nil {
		writeError(w, err)
		return
	}
	idx, err := idParam(r, "idx")
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.bookmarks.GetCommentBySibling(r.Context(), userID, bookmarkID, int(idx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeShell(w, "Comment", c.FullRender)
}

// HandleCommentEditPage serves a minimal edit form. Saving goes through the
// JSON API (PUT /api/comments/{id}), so the page itself has no form
// endpoint of its own.
//
// HTTP: GET /comments/{id}/edit
func (h *FeedHandler) HandleCommentEditPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.bookmarks.GetComment(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<form id="edit" data-comment-id="%d">`, c.ID)
	fmt.Fprintf(&sb, `<textarea name="content" rows="10" cols="80">%s</textarea>`, html.EscapeString(c.Content))
	sb.WriteString(`<br><button type="submit">Save</button></form>`)
	sb.WriteString(editScript)
	writeShell(w, "Edit comment", sb.String())
}

const editScript = `<script>
document.getElementById("edit").addEventListener("submit", async function (e) {
	e.preventDefault();
	const resp = await fetch("/api/comments/" + this.dataset.commentId, {
		method: "PUT",
		headers: {"Content-Type": "application/json"},
		body: JSON.stringify({content: this.elements.content.value}),
	});
	if (resp.ok) {
		window.location = "/comments/" + this.dataset.commentId;
	} else {
		alert("saving failed");
	}
});
</script>`

// HandleMedia serves one mirrored asset. The wildcard tail is the
// path-escaped original URL, exactly as written into the rewritten
// snapshot HTML.
//
// HTTP: GET /media/{bookmarkID}/*
func (h *FeedHandler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	bookmarkID, err := idParam(r, "bookmarkID")
	if err != nil {
		writeError(w, err)
		return
	}

	// chi hands back the decoded tail; re-escaping reproduces the stored
	// mirror path byte for byte.
	tail := chi.URLParam(r, "*")
	if tail == "" {
		writeError(w, apperror.ValidationFailed("path", "missing asset path"))
		return
	}
	path := fmt.Sprintf("/media/%d/%s", bookmarkID, url.PathEscape(tail))

	media, err := h.media.GetMediaByPath(r.Context(), bookmarkID, path)
	if err != nil {
		writeError(w, err)
		return
	}
	blob, err := h.media.GetBlob(r.Context(), media.SHA256)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", blob.Mime)
	// Content-addressed: the bytes behind this URL never change.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(blob.Content)
}
