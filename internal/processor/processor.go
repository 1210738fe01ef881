package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

// ErrConversion wraps failures of the HTML to Markdown converter.
var ErrConversion = errors.New("markdown conversion failed")

// Config holds flattening options.
type Config struct {
	StripTags    []string // Tags dropped together with their content
	ConvertLinks bool     // Render anchors as [text](href); otherwise text only
}

// Processor flattens curated HTML into Markdown, one line per block element.
type Processor struct {
	config Config
}

// New creates a new HTML to Markdown processor.
func New(config Config) *Processor {
	return &Processor{config: config}
}

// Flatten transforms HTML content into Markdown.
func (p *Processor) Flatten(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	markdown, err := p.newConverter().ConvertString(htmlContent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversion, err)
	}

	return strings.TrimSpace(markdown), nil
}

// newConverter builds a converter for a single conversion; converters are
// not shared between workers.
func (p *Processor) newConverter() *converter.Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	for _, tag := range p.config.StripTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		conv.Register.TagType(tag, converter.TagTypeRemove, converter.PriorityStandard)
	}

	if !p.config.ConvertLinks {
		conv.Register.RendererFor("a", converter.TagTypeInline, renderLinkText, converter.PriorityEarly)
	}

	return conv
}

// renderLinkText writes only the anchor's content, dropping the href.
func renderLinkText(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	ctx.RenderChildNodes(ctx, w, n)
	return converter.RenderSuccess
}

// ExtractTitle extracts the <title> content from HTML.
func (p *Processor) ExtractTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var findTitle func(*html.Node)
	findTitle = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findTitle(c)
		}
	}
	findTitle(doc)

	return strings.TrimSpace(title)
}
