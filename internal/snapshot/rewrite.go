// Package snapshot processes full-page HTML captured by the bookmarklet:
// it finds the media a page references, rewrites those references to the
// local mirror, and asynchronously downloads the bytes into the
// content-addressed blob store.
//
// Nothing here sits on the clip path's critical section. Rewriting is a
// pure string transformation done before the backup row is written; the
// downloads are fire-and-forget and their failure never rolls back or
// blocks the bookmark/comment write that triggered them.
package snapshot

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Ref is one external asset referenced by a snapshot. Original is the
// absolute URL as resolved against the page's base; MirrorPath is the local
// URL written into the rewritten page and stored as the media row's path.
type Ref struct {
	Original   string
	MirrorPath string
}

// mirrorPath is where the rewritten page will look for the asset.
func mirrorPath(bookmarkID int64, original string) string {
	return fmt.Sprintf("/media/%d/%s", bookmarkID, url.PathEscape(original))
}

// refAttr returns the attribute carrying a mirrorable reference for an
// element, or "" when the element references nothing we mirror.
// Covered: <img src>, <video src>, <source src>, <link rel=stylesheet href>.
func refAttr(n *html.Node) string {
	switch n.Data {
	case "img", "video", "source":
		return "src"
	case "link":
		for _, a := range n.Attr {
			if a.Key == "rel" && strings.EqualFold(a.Val, "stylesheet") {
				return "href"
			}
		}
	}
	return ""
}

// Rewrite parses rawHTML, rewrites every mirrorable reference to its local
// mirror path under the given bookmark, and returns the rewritten document
// together with the list of referenced absolute URLs. References that do
// not resolve to an absolute http(s) URL are left untouched.
//
// The same URL referenced twice yields one Ref — the mirror is keyed by
// (bookmark, original URL), so duplicates would only produce no-op inserts
// downstream anyway.
func Rewrite(rawHTML, baseURL string, bookmarkID int64) (string, []Ref, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", nil, fmt.Errorf("snapshot: parsing page HTML: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		// A bad base just means relative references can't resolve;
		// absolute ones still can.
		base = nil
	}

	seen := make(map[string]bool)
	var refs []Ref

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr := refAttr(n); attr != "" {
				for i := range n.Attr {
					if n.Attr[i].Key != attr {
						continue
					}
					abs := resolve(base, n.Attr[i].Val)
					if abs == "" {
						break
					}
					n.Attr[i].Val = mirrorPath(bookmarkID, abs)
					if !seen[abs] {
						seen[abs] = true
						refs = append(refs, Ref{Original: abs, MirrorPath: n.Attr[i].Val})
					}
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", nil, fmt.Errorf("snapshot: rendering rewritten HTML: %w", err)
	}
	return sb.String(), refs, nil
}

// resolve turns a reference into an absolute http(s) URL, or "" when it
// cannot (fragment-only, data:, javascript:, unresolvable relative, ...).
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}
