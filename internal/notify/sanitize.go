package notify

import (
	"regexp"
	"strings"
)

// allowedTags are the HTML tags the chat platform renders. Everything else
// is stripped, keeping the inner content.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"a": true, "code": true, "pre": true,
}

// defaultMaxPreviewLength bounds the body preview in notifications.
const defaultMaxPreviewLength = 1000

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	tagRe        = regexp.MustCompile(`(?i)</?([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)
	anchorRe     = regexp.MustCompile(`(?is)<a(\s[^>]*)?>.*?</a>`)
	anchorOpenRe = regexp.MustCompile(`(?is)^<a(\s[^>]*)?>`)
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
)

// SanitizeHTML reduces an HTML body to the allow-listed tag set:
// script and style blocks are removed entirely, disallowed tags are
// stripped while their content is kept, anchors without an href attribute
// are removed as a whole (tag and content), and blank lines collapse.
func SanitizeHTML(html string) string {
	sanitized := scriptRe.ReplaceAllString(html, "")
	sanitized = styleRe.ReplaceAllString(sanitized, "")

	// An href-less anchor is removed with its content so no dangling link
	// text survives. Runs before generic tag stripping while the anchor
	// element is still intact.
	sanitized = anchorRe.ReplaceAllStringFunc(sanitized, func(match string) string {
		open := anchorOpenRe.FindString(match)
		if strings.Contains(strings.ToLower(open), "href=") {
			return match
		}
		return ""
	})

	sanitized = tagRe.ReplaceAllStringFunc(sanitized, func(match string) string {
		name := strings.ToLower(tagRe.FindStringSubmatch(match)[1])
		if allowedTags[name] {
			return match
		}
		return ""
	})

	sanitized = blankLineRe.ReplaceAllString(sanitized, "\n")
	return strings.TrimSpace(sanitized)
}

// TruncateHTML limits sanitized HTML to maxLength characters, preferring a
// word-boundary cut when one falls within the last 20% of the budget, then
// re-closes any tags the cut left open (in reverse order, with an ellipsis
// before the closing tags).
func TruncateHTML(html string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = defaultMaxPreviewLength
	}
	runes := []rune(html)
	if len(runes) <= maxLength {
		return html
	}

	truncated := string(runes[:maxLength])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxLength*8/10 {
		truncated = truncated[:lastSpace]
	}

	// Track tags still open at the cut.
	var openTags []string
	for _, match := range tagRe.FindAllStringSubmatch(truncated, -1) {
		name := strings.ToLower(match[1])
		if strings.HasPrefix(match[0], "</") {
			if len(openTags) > 0 && openTags[len(openTags)-1] == name {
				openTags = openTags[:len(openTags)-1]
			}
		} else {
			openTags = append(openTags, name)
		}
	}

	var b strings.Builder
	b.WriteString(truncated)
	b.WriteString("...")
	for i := len(openTags) - 1; i >= 0; i-- {
		b.WriteString("</" + openTags[i] + ">")
	}
	return b.String()
}
