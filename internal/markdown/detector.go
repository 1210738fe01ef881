package markdown

import (
	"regexp"
	"strings"
)

var (
	headerPattern = regexp.MustCompile(`^#{1,6}\s+\S`)
	listPattern   = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	linkPattern   = regexp.MustCompile(`\[.+?\]\(.+?\)`)
	tagPattern    = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?>`)
)

// IsMarkdownContentType checks if the Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsMarkdownURL checks if the URL indicates a markdown file.
func IsMarkdownURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown")
}

// IsMarkdownContent uses heuristics to detect if content is markdown.
func IsMarkdownContent(content string) bool {
	if content == "" {
		return false
	}

	trimmed := strings.TrimSpace(content)

	if LooksLikeDocument(trimmed) || HasHTMLTags(trimmed) {
		return false
	}

	return hasMarkdownPatterns(trimmed)
}

// LooksLikeDocument reports whether content starts like a complete HTML
// document rather than a fragment.
func LooksLikeDocument(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

// HasHTMLTags reports whether content contains at least one HTML tag.
func HasHTMLTags(content string) bool {
	return tagPattern.MatchString(content)
}

// hasMarkdownPatterns checks for common markdown syntax.
func hasMarkdownPatterns(content string) bool {
	return headerPattern.MatchString(content) ||
		listPattern.MatchString(content) ||
		linkPattern.MatchString(content)
}

// MarkdownURLVariants returns potential markdown versions of a URL.
// Returns empty slice if URL is already a markdown file (except GitHub blob URLs).
func MarkdownURLVariants(url string) []string {
	var variants []string

	// GitHub blob → raw conversion (even if already .md, we want the raw URL)
	if strings.Contains(url, "github.com") && strings.Contains(url, "/blob/") {
		raw := strings.Replace(url, "github.com", "raw.githubusercontent.com", 1)
		raw = strings.Replace(raw, "/blob/", "/", 1)
		variants = append(variants, raw)
		return variants
	}

	if IsMarkdownURL(url) {
		return []string{}
	}

	cleanURL := strings.TrimSuffix(url, "/")
	variants = append(variants, cleanURL+".md")

	return variants
}

// Detect combines all detection methods to determine if content is markdown.
// Checks in order: Content-Type, URL, then content heuristics.
func Detect(url, contentType, content string) bool {
	if IsMarkdownContentType(contentType) {
		return true
	}
	if IsMarkdownURL(url) {
		return true
	}
	return IsMarkdownContent(content)
}

// IsMarkdownEntry decides whether a dataset entry body is already Markdown
// and can skip HTML curation. Bodies containing HTML tags never qualify,
// whatever their URL says.
func IsMarkdownEntry(url, body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || HasHTMLTags(trimmed) {
		return false
	}
	return IsMarkdownURL(url) || hasMarkdownPatterns(trimmed)
}

// Line is one non-blank line of a flattened document. Block is set when a
// blank line separated it from the line before.
type Line struct {
	Text  string
	Block bool
}

// SplitLines splits a flattened document into its non-blank lines. Blank
// lines are not lines of their own; they only mark block boundaries.
func SplitLines(doc string) []Line {
	var lines []Line
	gap := false
	for _, text := range strings.Split(doc, "\n") {
		if strings.TrimSpace(text) == "" {
			gap = true
			continue
		}
		lines = append(lines, Line{Text: text, Block: gap && len(lines) > 0})
		gap = false
	}
	return lines
}

// Texts returns the text of every line.
func Texts(lines []Line) []string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return texts
}

// Select returns the lines whose keep flag is set. A kept line starts a new
// block if it, or any dropped line since the previous kept one, did.
func Select(lines []Line, keep []bool) []Line {
	var kept []Line
	block := false
	for i, l := range lines {
		block = block || l.Block
		if i >= len(keep) || !keep[i] {
			continue
		}
		kept = append(kept, Line{Text: l.Text, Block: block && len(kept) > 0})
		block = false
	}
	return kept
}

// JoinLines is the inverse of SplitLines: lines starting a block are
// preceded by a blank line.
func JoinLines(lines []Line) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			if l.Block {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(l.Text)
	}
	return b.String()
}
