// Package curator strips navigation, ads, forms and other boilerplate from
// raw HTML before it is flattened to Markdown.
package curator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/mfenderov/bam-curate/internal/markdown"
)

// ErrParse marks HTML that could not be parsed or rendered back. Curate
// returns it together with the untouched input.
var ErrParse = errors.New("html parse failed")

// BoilerplateSelectors are the DOM regions removed from every page.
var BoilerplateSelectors = []string{
	"header",
	"footer",
	"nav",
	".navbar",
	".menu",
	".footer-links",
	"#sidebar",
	"#ad-container",
	`div[class*="cookie"]`,
	`div[class*="banner"]`,
	"aside",
	".pagination",
	"form",
}

// DefaultStripTags is the tag denylist used when none is configured.
var DefaultStripTags = []string{"script", "style", "meta"}

// Curator removes boilerplate regions and denylisted tags from HTML.
// It holds only compiled selectors and is safe for concurrent use.
type Curator struct {
	matchers []goquery.Matcher
	parse    func(io.Reader) (*goquery.Document, error)
}

// New creates a Curator. A nil stripTags uses DefaultStripTags; an empty
// non-nil slice disables tag stripping.
func New(stripTags []string) (*Curator, error) {
	if stripTags == nil {
		stripTags = DefaultStripTags
	}

	selectors := make([]string, 0, len(BoilerplateSelectors)+len(stripTags))
	selectors = append(selectors, BoilerplateSelectors...)
	for _, tag := range stripTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			selectors = append(selectors, tag)
		}
	}

	matchers := make([]goquery.Matcher, 0, len(selectors))
	for _, sel := range selectors {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
		}
		matchers = append(matchers, m)
	}

	return &Curator{
		matchers: matchers,
		parse:    goquery.NewDocumentFromReader,
	}, nil
}

// Curate returns html with all boilerplate removed. Curating its own output
// removes nothing further. Fragments are rendered back as fragments.
//
// When the input cannot be parsed the original html is returned with an
// error wrapping ErrParse; callers should log it and carry on.
func (c *Curator) Curate(html string) (string, error) {
	doc, err := c.parse(strings.NewReader(html))
	if err != nil {
		return html, fmt.Errorf("%w: %v", ErrParse, err)
	}

	removed := 0
	for _, m := range c.matchers {
		sel := doc.FindMatcher(m)
		removed += sel.Length()
		sel.Remove()
	}

	out, err := render(doc, markdown.LooksLikeDocument(html))
	if err != nil {
		return html, fmt.Errorf("%w: %v", ErrParse, err)
	}

	slog.Debug("curated html", "removed", removed, "input_bytes", len(html), "output_bytes", len(out))
	return out, nil
}

// render writes the document back out. Fragments only get their head and
// body contents so that the parser's implied wrapper elements do not leak
// into the result.
func render(doc *goquery.Document, fullDocument bool) (string, error) {
	if fullDocument {
		return doc.Html()
	}

	head, err := doc.Find("head").Html()
	if err != nil {
		return "", err
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", err
	}
	return head + body, nil
}
