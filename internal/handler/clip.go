// Package handler contains the HTTP layer: request parsing, response
// formatting, and nothing else. Business rules live in the service layer.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/auth"
	"github.com/clipmark/clipmark/internal/service"
)

// ClipHandler accepts bookmarklet submissions.
type ClipHandler struct {
	bookmarks *service.BookmarkService
	logger    *slog.Logger
}

func NewClipHandler(bookmarks *service.BookmarkService, logger *slog.Logger) *ClipHandler {
	return &ClipHandler{bookmarks: bookmarks, logger: logger}
}

// clipRequest is the JSON body posted by the bookmarklet.
type clipRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
	HTML    string `json:"html,omitempty"` // page source for the snapshot, optional
}

// clipResponse reports where the clip landed.
type clipResponse struct {
	BookmarkID  int64 `json:"bookmarkId"`
	CommentID   int64 `json:"commentId"`
	SiblingIdx  int   `json:"siblingIdx"`
	NumComments int   `json:"numComments"`
	Created     bool  `json:"created"`
}

// HandleClip stores one clip: a new bookmark with its first comment, or a
// sibling comment on an existing bookmark. Responds 201 either way.
//
// HTTP: POST /api/clip
func (h *ClipHandler) HandleClip(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var req clipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}

	result, err := h.bookmarks.Clip(r.Context(), userID, service.ClipRequest{
		URL:     req.URL,
		Title:   req.Title,
		Comment: req.Comment,
		HTML:    req.HTML,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, clipResponse{
		BookmarkID:  result.Bookmark.ID,
		CommentID:   result.Comment.ID,
		SiblingIdx:  result.Comment.SiblingIdx,
		NumComments: result.Bookmark.NumComments,
		Created:     result.Created,
	})
}
