package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/auth"
	"github.com/clipmark/clipmark/internal/service"
)

// BookmarkHandler manages operations on existing bookmarks and comments.
type BookmarkHandler struct {
	bookmarks *service.BookmarkService
	logger    *slog.Logger
}

func NewBookmarkHandler(bookmarks *service.BookmarkService, logger *slog.Logger) *BookmarkHandler {
	return &BookmarkHandler{bookmarks: bookmarks, logger: logger}
}

// idParam parses a chi URL parameter as an int64 ID.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "must be a positive integer")
	}
	return id, nil
}

// HandleGet returns one bookmark with its comments.
//
// HTTP: GET /api/bookmarks/{id}
func (h *BookmarkHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	b, comments, err := h.bookmarks.GetBookmark(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookmark": b,
		"comments": comments,
	})
}

// HandleEditComment replaces a comment's text.
//
// HTTP: PUT /api/comments/{id}
func (h *BookmarkHandler) HandleEditComment(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}

	comment, err := h.bookmarks.EditComment(r.Context(), userID, id, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// HandleDelete removes a bookmark with everything attached to it.
//
// HTTP: DELETE /api/bookmarks/{id}
func (h *BookmarkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.bookmarks.DeleteBookmark(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMerge folds the bookmark in the URL into the target named in the
// body, carrying its comments over.
//
// HTTP: POST /api/bookmarks/{id}/merge  {"into": 42}
func (h *BookmarkHandler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	fromID, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Into int64 `json:"into"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Into <= 0 {
		writeError(w, apperror.ValidationFailed("into", "must be a positive integer"))
		return
	}

	merged, err := h.bookmarks.Merge(r.Context(), userID, fromID, req.Into)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

// HandleSnapshot serves the stored page snapshot as HTML.
//
// HTTP: GET /api/bookmarks/{id}/snapshot
func (h *BookmarkHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
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

	backup, err := h.bookmarks.LatestSnapshot(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(backup.Content))
}
