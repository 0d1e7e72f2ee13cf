// Package render computes the denormalized HTML stored alongside bookmarks
// and comments.
//
// WHY PRE-RENDERED FRAGMENTS?
// Serving a feed is the hot path and the corpus is one user's reading list,
// so instead of a live join+template pass we keep three caches consistent on
// every mutation:
//
//	comment.inner_render — the comment body alone (feed building block)
//	comment.full_render  — the comment wrapped in its bookmark header plus
//	                       sibling navigation (the per-comment page)
//	bookmark.render      — header + all inner fragments, newest first
//
// The functions in this file are pure: same input, byte-identical output.
// That property is load-bearing — the fast-update splice and the full
// re-render must converge to the same string, and re-rendering unchanged
// data must be a byte-level no-op. Persistence of the fragments happens in
// the sqlite repository, inside the same transaction as the relational
// write they belong to.
//
// THE SINGLE-LINE HEADER CONTRACT:
// bookmark.render always starts with the header on exactly the first line.
// FastUpdateBookmarkRender exploits that: it splices a new comment fragment
// right after the first newline, prepending the newest comment without
// re-reading the others. A header containing an embedded newline would
// silently corrupt every spliced render, so escapeLine maps newlines (and
// all other control characters) to a visible glyph, and callers verify the
// contract with CheckHeaderLine before splicing.
package render

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
)

// timeLayout is the display format for timestamps inside fragments.
// Rendering is idempotent only if the format is stable, so this never
// includes sub-minute precision or local zones.
const timeLayout = "2006-01-02 15:04"

// controlGlyph replaces control characters and line breaks in titles and
// URLs. Visible in the output, so a pasted multi-line title still reads as
// one line instead of vanishing.
const controlGlyph = "¶"

// escapeLine HTML-escapes s and folds every control character into
// controlGlyph. The result never contains a newline.
func escapeLine(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			b.WriteString(controlGlyph)
			continue
		}
		b.WriteRune(r)
	}
	return html.EscapeString(b.String())
}

// escapeBody HTML-escapes free-text comment content, turning line breaks
// into <br> so the fragment itself stays newline-free.
func escapeBody(s string) string {
	s = html.EscapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// BookmarkHeader returns the opening and closing wrapper HTML for a
// bookmark. idSuffix disambiguates the anchor id when the same bookmark is
// rendered once per comment (the full_render pages); pass "" for the feed
// entry.
//
// If the URL is not a well-formed absolute URL the header degrades to the
// bare title with no hostname snippet and no link — never an error. The
// returned pre fragment is guaranteed single-line (see package doc).
func BookmarkHeader(b *model.Bookmark, idSuffix string) (pre, post string) {
	anchor := fmt.Sprintf("b%d", b.ID)
	if idSuffix != "" {
		anchor += "_" + idSuffix
	}

	title := escapeLine(b.Title)
	if title == "" {
		title = escapeLine(b.URL)
	}
	if title == "" {
		title = "(untitled)"
	}

	host := ""
	if u, err := url.Parse(b.URL); err == nil && u.IsAbs() && u.Host != "" {
		host = escapeLine(u.Host)
	}

	var sb strings.Builder
	sb.WriteString(`<div class="bookmark" id="`)
	sb.WriteString(anchor)
	sb.WriteString(`"><span class="bookmark-title">`)
	if host != "" {
		sb.WriteString(`<a href="`)
		sb.WriteString(escapeLine(b.URL))
		sb.WriteString(`">`)
		sb.WriteString(title)
		sb.WriteString(`</a> <span class="host">(`)
		sb.WriteString(host)
		sb.WriteString(`)</span>`)
	} else {
		// Malformed or missing URL: show the raw title/url undecorated.
		sb.WriteString(title)
	}
	sb.WriteString(`</span>`)

	return sb.String(), `</div>`
}

// CheckHeaderLine enforces the single-line header contract. A violation is
// a programmer error — it means escapeLine regressed — and must abort the
// mutation before the corrupt header reaches a stored render.
func CheckHeaderLine(pre string) error {
	if strings.ContainsRune(pre, '\n') {
		return apperror.Integrity("bookmark header contains a newline: %q", pre)
	}
	return nil
}

// CommentInner renders the content-only fragment for a comment: body,
// timestamps, permalink and edit controls. The fragment is a single line
// terminated by exactly one "\n" — the bookmark render is a concatenation
// of these lines, which is what makes the fast-update splice well defined.
func CommentInner(c *model.Comment) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<div class="comment" id="c%d"><p>`, c.ID))
	sb.WriteString(escapeBody(c.Content))
	sb.WriteString(`</p><span class="comment-meta">`)
	sb.WriteString(fmtTime(c.CreatedAt))
	if c.UpdatedAt.After(c.CreatedAt) {
		sb.WriteString(" (edited ")
		sb.WriteString(fmtTime(c.UpdatedAt))
		sb.WriteString(")")
	}
	sb.WriteString(fmt.Sprintf(` · <a href="/comments/%d">link</a> · <a href="/comments/%d/edit">edit</a></span></div>`, c.ID, c.ID))
	sb.WriteString("\n")
	return sb.String()
}

// CommentFull renders the standalone page fragment for a comment: the
// bookmark header (anchored per comment so ids never collide), sibling
// navigation computed from siblingIdx vs numComments, and the inner
// fragment. b is read-only context — its NumComments must already reflect
// the state the fragment should describe.
//
// Navigation: a link to siblingIdx-1 if it exists, siblingIdx+1 if it
// exists, and an "x/N" position indicator only when N > 1.
func CommentFull(c *model.Comment, b *model.Bookmark) string {
	pre, post := BookmarkHeader(b, fmt.Sprintf("c%d", c.ID))

	var nav strings.Builder
	if b.NumComments > 1 {
		nav.WriteString(`<span class="siblings">`)
		if c.SiblingIdx > 1 {
			nav.WriteString(fmt.Sprintf(`<a href="/bookmarks/%d/comments/%d">←</a> `, b.ID, c.SiblingIdx-1))
		}
		nav.WriteString(fmt.Sprintf("%d/%d", c.SiblingIdx, b.NumComments))
		if c.SiblingIdx < b.NumComments {
			nav.WriteString(fmt.Sprintf(` <a href="/bookmarks/%d/comments/%d">→</a>`, b.ID, c.SiblingIdx+1))
		}
		nav.WriteString(`</span>`)
	}

	return pre + nav.String() + "\n" + CommentInner(c) + post + "\n"
}

// BookmarkRender produces the full cached render for a bookmark from its
// comment inner fragments, which must be ordered newest first and each end
// in "\n". Layout: header line, fragment lines, closing line.
func BookmarkRender(b *model.Bookmark, innerFragments []string) string {
	pre, post := BookmarkHeader(b, "")
	var sb strings.Builder
	sb.WriteString(pre)
	sb.WriteString("\n")
	for _, f := range innerFragments {
		sb.WriteString(f)
	}
	sb.WriteString(post)
	sb.WriteString("\n")
	return sb.String()
}

// FastUpdateBookmarkRender splices a freshly rendered comment fragment into
// an existing bookmark render without recomputing the other fragments. By
// the single-line header contract the header occupies exactly the first
// line, so the new fragment goes immediately after the first newline —
// newest comments first.
//
// The caller is responsible for bumping numComments by exactly one in the
// same transaction that persists the returned render.
func FastUpdateBookmarkRender(existing, innerFragment string) (string, error) {
	i := strings.IndexByte(existing, '\n')
	if i < 0 {
		return "", apperror.Integrity("bookmark render has no header line: %q", existing)
	}
	if !strings.HasSuffix(innerFragment, "\n") {
		return "", apperror.Integrity("comment fragment is not newline-terminated: %q", innerFragment)
	}
	return existing[:i+1] + innerFragment + existing[i+1:], nil
}
