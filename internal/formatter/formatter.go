// Package formatter renders a processed entry as a Markdown section.
package formatter

import "strings"

// Format returns the entry as a level-two heading, an optional source link
// and the trimmed body.
func Format(title, url, body string) string {
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if url != "" {
		b.WriteString("[Read More](")
		b.WriteString(url)
		b.WriteString(")\n\n")
	}
	b.WriteString(strings.TrimSpace(body))
	return b.String()
}
