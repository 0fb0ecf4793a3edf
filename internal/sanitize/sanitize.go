// Package sanitize neutralizes author-submitted markup before it is
// persisted or broadcast. Output is safe to embed verbatim in a rendering
// sink that accepts the fixed presentational subset produced by the
// client-side markdown pipeline.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

// allowedTags are inert presentational tags re-enabled after escaping.
// Anchors are handled separately so their targets can be restricted.
var allowedTags = []string{
	"b", "i", "em", "strong", "code", "pre",
	"ul", "ol", "li", "blockquote", "br", "hr",
}

// anchorRe matches an escaped http(s) anchor open tag, optionally already
// carrying the canonical attributes from a previous pass. The target runs
// up to the escaped closing quote, so query strings and fragments survive
// in their escaped form.
var anchorRe = regexp.MustCompile(`&lt;a href=&#34;(https?://.*?)&#34;( target=&#34;_blank&#34; rel=&#34;noopener noreferrer&#34;)?&gt;`)

// Sanitize escapes all markup in raw, then re-enables the allow-listed
// tags and http(s) anchors. Anchors are rewritten to open in a new
// browsing context with no opener or referrer; every other tag, attribute
// and pseudo-protocol stays escaped. The function is total and idempotent;
// worst case it returns fully escaped plain text.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	// Normalize entities before escaping so repeated sanitization is
	// stable: sanitize(sanitize(x)) == sanitize(x).
	s := html.EscapeString(html.UnescapeString(raw))

	for _, tag := range allowedTags {
		s = strings.ReplaceAll(s, "&lt;"+tag+"&gt;", "<"+tag+">")
		s = strings.ReplaceAll(s, "&lt;/"+tag+"&gt;", "</"+tag+">")
	}

	s = anchorRe.ReplaceAllString(s, `<a href="$1" target="_blank" rel="noopener noreferrer">`)
	s = strings.ReplaceAll(s, "&lt;/a&gt;", "</a>")

	return s
}
