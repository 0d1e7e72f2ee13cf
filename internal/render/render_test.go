package render

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
)

func testTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test time %q: %v", s, err)
	}
	return parsed
}

func testBookmark(t *testing.T) *model.Bookmark {
	t.Helper()
	return &model.Bookmark{
		ID:          7,
		UserID:      "u1",
		URL:         "https://example.com/article",
		Title:       "An Article",
		NumComments: 1,
		CreatedAt:   testTime(t, "2025-03-01T10:00:00Z"),
		UpdatedAt:   testTime(t, "2025-03-01T10:00:00Z"),
	}
}

func testComment(t *testing.T) *model.Comment {
	t.Helper()
	created := testTime(t, "2025-03-01T10:00:00Z")
	return &model.Comment{
		ID:         3,
		BookmarkID: 7,
		Content:    "worth re-reading",
		SiblingIdx: 1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

// =========================================================================
// HEADER TESTS
// =========================================================================

// The header must be a single line no matter what garbage lands in the URL
// or title — the fast-update splice depends on it.
func TestBookmarkHeader_NeverContainsNewline(t *testing.T) {
	urls := []string{
		"https://example.com",
		"https://example.com/a?b=c&d=e",
		"not a url at all",
		"",
		"https://example.com/line\nbreak",
		"ftp://files.example.com/x",
		"https://\x00\x01\x02.example.com",
		"https://example.com/\r\npath",
	}
	titles := []string{
		"plain title",
		"",
		"title\nwith\nnewlines",
		"title\r\nwindows",
		"tab\there",
		"<script>alert(1)</script>",
		"ünïcode — em dash",
		strings.Repeat("x", 1000) + "\n" + strings.Repeat("y", 1000),
	}

	b := testBookmark(t)
	for _, u := range urls {
		for _, title := range titles {
			b.URL = u
			b.Title = title
			pre, post := BookmarkHeader(b, "")
			if strings.ContainsRune(pre, '\n') {
				t.Errorf("header for url=%q title=%q contains newline: %q", u, title, pre)
			}
			if err := CheckHeaderLine(pre); err != nil {
				t.Errorf("CheckHeaderLine failed for url=%q title=%q: %v", u, title, err)
			}
			if post != "</div>" {
				t.Errorf("post = %q, want </div>", post)
			}
		}
	}
}

func TestBookmarkHeader_ControlCharsBecomeGlyph(t *testing.T) {
	b := testBookmark(t)
	b.Title = "two\nlines"

	pre, _ := BookmarkHeader(b, "")
	if !strings.Contains(pre, "two"+controlGlyph+"lines") {
		t.Errorf("expected newline folded to %q in %q", controlGlyph, pre)
	}
}

func TestBookmarkHeader_EscapesHTML(t *testing.T) {
	b := testBookmark(t)
	b.Title = `<b>"bold"</b>`

	pre, _ := BookmarkHeader(b, "")
	if strings.Contains(pre, "<b>") {
		t.Errorf("title not escaped: %q", pre)
	}
	if !strings.Contains(pre, "&lt;b&gt;") {
		t.Errorf("expected escaped title in %q", pre)
	}
}

func TestBookmarkHeader_MalformedURLDegradesToTitle(t *testing.T) {
	b := testBookmark(t)
	b.URL = "::not-a-url::"

	pre, _ := BookmarkHeader(b, "")
	if strings.Contains(pre, "<a href=") {
		t.Errorf("malformed URL must not produce a link: %q", pre)
	}
	if !strings.Contains(pre, "An Article") {
		t.Errorf("title missing from degraded header: %q", pre)
	}
}

func TestBookmarkHeader_ValidURLGetsHostSnippet(t *testing.T) {
	b := testBookmark(t)
	pre, _ := BookmarkHeader(b, "")
	if !strings.Contains(pre, `<span class="host">(example.com)</span>`) {
		t.Errorf("expected host snippet in %q", pre)
	}
	if !strings.Contains(pre, `id="b7"`) {
		t.Errorf("expected anchor b7 in %q", pre)
	}
}

func TestBookmarkHeader_AnchorSuffix(t *testing.T) {
	b := testBookmark(t)
	pre, _ := BookmarkHeader(b, "c3")
	if !strings.Contains(pre, `id="b7_c3"`) {
		t.Errorf("expected suffixed anchor in %q", pre)
	}
}

func TestBookmarkHeader_EmptyEverything(t *testing.T) {
	b := testBookmark(t)
	b.URL = ""
	b.Title = ""

	pre, _ := BookmarkHeader(b, "")
	if !strings.Contains(pre, "(untitled)") {
		t.Errorf("expected placeholder title in %q", pre)
	}
}

func TestCheckHeaderLine_RejectsNewline(t *testing.T) {
	err := CheckHeaderLine("broken\nheader")
	if !errors.Is(err, apperror.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

// =========================================================================
// COMMENT FRAGMENT TESTS
// =========================================================================

// The fragment functions are pure — calling them twice on the same input
// must yield byte-identical strings, otherwise re-rendering unchanged data
// would dirty the stored caches.
func TestCommentInner_Idempotent(t *testing.T) {
	c := testComment(t)
	first := CommentInner(c)
	second := CommentInner(c)
	if first != second {
		t.Errorf("CommentInner not idempotent:\n%q\n%q", first, second)
	}
}

func TestCommentInner_SingleNewlineTerminated(t *testing.T) {
	c := testComment(t)
	c.Content = "line one\nline two"

	frag := CommentInner(c)
	if !strings.HasSuffix(frag, "\n") {
		t.Fatalf("fragment not newline-terminated: %q", frag)
	}
	if strings.Count(frag, "\n") != 1 {
		t.Errorf("fragment must contain exactly one newline, got %d: %q", strings.Count(frag, "\n"), frag)
	}
	if !strings.Contains(frag, "line one<br>line two") {
		t.Errorf("body newlines should become <br>: %q", frag)
	}
}

func TestCommentInner_ShowsEditedTime(t *testing.T) {
	c := testComment(t)
	if got := CommentInner(c); strings.Contains(got, "edited") {
		t.Errorf("unedited comment should not show edited marker: %q", got)
	}

	c.UpdatedAt = c.CreatedAt.Add(2 * time.Hour)
	got := CommentInner(c)
	if !strings.Contains(got, "(edited 2025-03-01 12:00)") {
		t.Errorf("expected edited marker in %q", got)
	}
}

func TestCommentFull_SoleComment(t *testing.T) {
	b := testBookmark(t)
	c := testComment(t)

	full := CommentFull(c, b)
	if strings.Contains(full, `class="siblings"`) {
		t.Errorf("single comment must have no sibling nav: %q", full)
	}
	if !strings.Contains(full, `id="b7_c3"`) {
		t.Errorf("expected per-comment header anchor: %q", full)
	}
	if !strings.Contains(full, CommentInner(c)) {
		t.Errorf("full fragment must embed the inner fragment")
	}
}

func TestCommentFull_SiblingNavigation(t *testing.T) {
	b := testBookmark(t)
	b.NumComments = 3

	tests := []struct {
		idx      int
		wantPrev bool
		wantNext bool
	}{
		{1, false, true},
		{2, true, true},
		{3, true, false},
	}
	for _, tt := range tests {
		c := testComment(t)
		c.SiblingIdx = tt.idx

		full := CommentFull(c, b)
		hasPrev := strings.Contains(full, "/bookmarks/7/comments/"+itoa(tt.idx-1))
		hasNext := strings.Contains(full, "/bookmarks/7/comments/"+itoa(tt.idx+1))
		if hasPrev != tt.wantPrev {
			t.Errorf("idx %d: prev link = %v, want %v\n%q", tt.idx, hasPrev, tt.wantPrev, full)
		}
		if hasNext != tt.wantNext {
			t.Errorf("idx %d: next link = %v, want %v\n%q", tt.idx, hasNext, tt.wantNext, full)
		}
		if !strings.Contains(full, itoa(tt.idx)+"/3") {
			t.Errorf("idx %d: missing position indicator in %q", tt.idx, full)
		}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// =========================================================================
// BOOKMARK RENDER TESTS
// =========================================================================

// The load-bearing property: prepending a fragment via the fast splice must
// produce the same bytes as rebuilding from the full fragment list.
func TestFastUpdate_ConvergesWithFullRender(t *testing.T) {
	b := testBookmark(t)

	older := testComment(t)
	older.ID = 1
	older.SiblingIdx = 1
	newer := testComment(t)
	newer.ID = 2
	newer.SiblingIdx = 2
	newer.Content = "second thought"
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	newer.UpdatedAt = newer.CreatedAt

	b.NumComments = 1
	initial := BookmarkRender(b, []string{CommentInner(older)})

	b.NumComments = 2
	spliced, err := FastUpdateBookmarkRender(initial, CommentInner(newer))
	if err != nil {
		t.Fatalf("FastUpdateBookmarkRender() error = %v", err)
	}

	// Full rebuild, newest first.
	rebuilt := BookmarkRender(b, []string{CommentInner(newer), CommentInner(older)})

	if spliced != rebuilt {
		t.Errorf("splice and rebuild diverged:\nspliced: %q\nrebuilt: %q", spliced, rebuilt)
	}
}

func TestFastUpdate_RepeatedSplices(t *testing.T) {
	b := testBookmark(t)
	b.NumComments = 1

	first := testComment(t)
	rendered := BookmarkRender(b, []string{CommentInner(first)})

	var frags []string
	frags = append(frags, CommentInner(first))
	for i := 2; i <= 5; i++ {
		c := testComment(t)
		c.ID = int64(i * 10)
		c.SiblingIdx = i
		c.CreatedAt = first.CreatedAt.Add(time.Duration(i) * time.Hour)
		c.UpdatedAt = c.CreatedAt

		var err error
		rendered, err = FastUpdateBookmarkRender(rendered, CommentInner(c))
		if err != nil {
			t.Fatalf("splice %d: %v", i, err)
		}
		frags = append([]string{CommentInner(c)}, frags...)
	}

	b.NumComments = 5
	if want := BookmarkRender(b, frags); rendered != want {
		t.Errorf("after 5 splices:\ngot:  %q\nwant: %q", rendered, want)
	}
}

func TestFastUpdate_RejectsHeaderlessRender(t *testing.T) {
	_, err := FastUpdateBookmarkRender("no newline anywhere", "frag\n")
	if !errors.Is(err, apperror.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestFastUpdate_RejectsUnterminatedFragment(t *testing.T) {
	_, err := FastUpdateBookmarkRender("header\nbody\n", "fragment without newline")
	if !errors.Is(err, apperror.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestBookmarkRender_Layout(t *testing.T) {
	b := testBookmark(t)
	c := testComment(t)

	out := BookmarkRender(b, []string{CommentInner(c)})
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (header, fragment, footer), got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], `<div class="bookmark"`) {
		t.Errorf("line 1 should be the header: %q", lines[0])
	}
	if lines[2] != "</div>" {
		t.Errorf("line 3 should be the footer: %q", lines[2])
	}
}
