package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/bmatcuk/doublestar/v4"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"

	"github.com/mfenderov/bam-curate/internal/markdown"
	"github.com/mfenderov/bam-curate/internal/storage"
	"github.com/mfenderov/bam-curate/pkg/models"
)

// Config holds crawler configuration.
type Config struct {
	Delay            time.Duration
	MaxDepth         int
	FollowLinks      bool
	UserAgent        string
	Timeout          time.Duration
	TryMarkdownFirst bool     // Try to fetch markdown version of pages
	MaxPages         int      // Stop after this many requests; 0 means no limit
	Match            []string // Glob patterns a link must match to be followed
	Exclude          []string // Glob patterns that stop a link from being followed
	Selector         string   // CSS selector of the content to keep; empty keeps the page
	Readability      bool     // Reduce each page to its main article
	Cookies          []Cookie // Sent with every request, e.g. to dismiss a consent banner
}

// Cookie is a name/value pair sent in the Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// ParseCookie parses a "name=value" pair.
func ParseCookie(s string) (Cookie, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Cookie{}, fmt.Errorf("invalid cookie %q, want name=value", s)
	}
	return Cookie{Name: name, Value: strings.TrimSpace(value)}, nil
}

// cookieHeader renders the configured cookies as a Cookie header value.
func (c Config) cookieHeader() string {
	parts := make([]string, 0, len(c.Cookies))
	for _, ck := range c.Cookies {
		parts = append(parts, (&http.Cookie{Name: ck.Name, Value: ck.Value}).String())
	}
	return strings.Join(parts, "; ")
}

// Scraper fetches web pages and returns them as dataset entries.
type Scraper struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Scraper with the given configuration.
func New(config Config) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "BAM-Curate/1.0"
	}
	return &Scraper{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Validate checks that the glob patterns and selector are well formed.
func (c Config) Validate() error {
	for _, p := range append(append([]string{}, c.Match...), c.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid url pattern %q", p)
		}
	}
	for _, ck := range c.Cookies {
		if ck.Name == "" {
			return fmt.Errorf("cookie with value %q has no name", ck.Value)
		}
	}
	if c.Selector != "" {
		if _, err := cascadia.Compile(c.Selector); err != nil {
			return fmt.Errorf("invalid selector %q: %w", c.Selector, err)
		}
	}
	return nil
}

// Scrape fetches the given URL and optionally follows links. Entries are
// returned in visit order. The context can be used to cancel the crawl.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Entry, error) {
	var entries []models.Entry
	var mu sync.Mutex
	var cancelled bool
	requests := 0

	slog.Debug("starting crawl", "url", startURL, "max_depth", s.config.MaxDepth, "max_pages", s.config.MaxPages)

	// Parse the start URL to get allowed domain
	parsedURL, err := url.Parse(startURL)
	if err != nil {
		slog.Error("failed to parse URL", "url", startURL, "error", err)
		return nil, err
	}

	c := colly.NewCollector(
		colly.MaxDepth(s.config.MaxDepth),
		colly.UserAgent(s.config.UserAgent),
	)

	// Set rate limiting
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       s.config.Delay,
		Parallelism: 2,
	})

	c.SetRequestTimeout(s.config.Timeout)

	cookies := s.config.cookieHeader()

	// Check for cancellation and the page budget before each request
	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()

		if ctx.Err() != nil {
			slog.Debug("crawl cancelled", "url", r.URL.String())
			r.Abort()
			cancelled = true
			return
		}
		if s.config.MaxPages > 0 && requests >= s.config.MaxPages {
			slog.Debug("page limit reached", "url", r.URL.String())
			r.Abort()
			return
		}
		requests++
		if cookies != "" {
			r.Headers.Set("Cookie", cookies)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= 400 {
			slog.Debug("skipping page with error status", "url", r.Request.URL.String(), "status", r.StatusCode)
			return
		}

		entry, ok := s.buildEntry(ctx, r.Request.URL, r.Headers.Get("Content-Type"), r.Body)
		if !ok {
			return
		}

		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
	})

	if s.config.FollowLinks {
		c.OnHTML("a[href]", func(e *colly.HTMLElement) {
			absoluteURL := e.Request.AbsoluteURL(e.Attr("href"))

			// Only follow links within the same domain
			linkURL, err := url.Parse(absoluteURL)
			if err != nil || linkURL.Host != parsedURL.Host {
				return
			}
			if !s.shouldFollow(absoluteURL) {
				return
			}
			e.Request.Visit(absoluteURL)
		})
	}

	err = c.Visit(startURL)
	if err != nil {
		slog.Debug("visit error (continuing)", "url", startURL, "error", err)
		return entries, nil
	}

	c.Wait()

	if cancelled {
		slog.Info("crawl cancelled by context", "pages_crawled", len(entries))
		return entries, ctx.Err()
	}

	slog.Debug("crawl complete", "url", startURL, "pages", len(entries))
	return entries, nil
}

// shouldFollow applies the match and exclude patterns to a link.
func (s *Scraper) shouldFollow(link string) bool {
	for _, pattern := range s.config.Exclude {
		if ok, _ := doublestar.Match(pattern, link); ok {
			return false
		}
	}
	if len(s.config.Match) == 0 {
		return true
	}
	for _, pattern := range s.config.Match {
		if ok, _ := doublestar.Match(pattern, link); ok {
			return true
		}
	}
	return false
}

// buildEntry turns a fetched page into a dataset entry. Pages without the
// configured selector are skipped.
func (s *Scraper) buildEntry(ctx context.Context, pageURL *url.URL, contentType string, body []byte) (models.Entry, bool) {
	link := pageURL.String()
	content := string(body)

	slog.Debug("crawled page", "url", link, "content_type", contentType, "size", len(content))

	if s.config.TryMarkdownFirst {
		if mdContent, ok := s.tryMarkdownVariants(ctx, link); ok {
			slog.Debug("using markdown variant", "url", link)
			return models.Entry{Title: firstHeading(mdContent), URL: link, HTML: mdContent}, true
		}
	}

	if markdown.Detect(link, contentType, content) {
		return models.Entry{Title: firstHeading(content), URL: link, HTML: content}, true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("failed to parse page", "url", link, "error", err)
		return models.Entry{}, false
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	if s.config.Selector != "" {
		selected, err := selectContent(doc, s.config.Selector)
		if err != nil || selected == "" {
			slog.Debug("selector not found, skipping page", "url", link, "selector", s.config.Selector)
			return models.Entry{}, false
		}
		content = selected
	}

	if s.config.Readability {
		article, err := readability.FromReader(strings.NewReader(content), pageURL)
		if err != nil {
			slog.Debug("readability failed, keeping page", "url", link, "error", err)
		} else if strings.TrimSpace(article.Content) != "" {
			content = article.Content
			if title == "" {
				title = article.Title
			}
		}
	}

	return models.Entry{Title: title, URL: link, HTML: content}, true
}

// selectContent returns the outer HTML of every element matching selector.
func selectContent(doc *goquery.Document, selector string) (string, error) {
	var b strings.Builder
	var renderErr error
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if renderErr != nil {
			return
		}
		html, err := goquery.OuterHtml(sel)
		if err != nil {
			renderErr = err
			return
		}
		b.WriteString(html)
	})
	return b.String(), renderErr
}

// firstHeading returns the first H1 of a Markdown document.
func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// tryMarkdownVariants attempts to fetch markdown versions of the URL.
func (s *Scraper) tryMarkdownVariants(ctx context.Context, pageURL string) (string, bool) {
	for _, variantURL := range markdown.MarkdownURLVariants(pageURL) {
		if ctx.Err() != nil {
			return "", false
		}
		if content, ok := s.tryFetchMarkdown(ctx, variantURL); ok {
			return content, true
		}
	}
	return "", false
}

// tryFetchMarkdown attempts to fetch a single markdown URL.
func (s *Scraper) tryFetchMarkdown(ctx context.Context, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	if cookies := s.config.cookieHeader(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	content := string(body)
	if markdown.Detect(url, resp.Header.Get("Content-Type"), content) {
		return content, true
	}
	return "", false
}

// CrawlResult holds the result of a CrawlToS3 operation.
type CrawlResult struct {
	Prefix    string // S3 prefix of the crawl
	Key       string // Object key of the dataset
	PageCount int    // Number of entries written
	SourceURL string // Original URL that was crawled
}

// CrawlToS3 crawls the given URL and stores the entries as a dataset in S3.
func (s *Scraper) CrawlToS3(ctx context.Context, startURL string, storageClient *storage.Client) (*CrawlResult, error) {
	prefix := storage.DatasetPrefix(startURL, uuid.NewString()[:8], time.Now())

	slog.Info("starting crawl to S3", "url", startURL, "prefix", prefix)

	entries, err := s.Scrape(ctx, startURL)
	if err != nil && len(entries) == 0 {
		return nil, fmt.Errorf("crawl failed: %w", err)
	}

	key, err := storageClient.PutDataset(ctx, prefix, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}

	slog.Info("crawl to S3 complete", "url", startURL, "key", key, "pages", len(entries))

	return &CrawlResult{
		Prefix:    prefix,
		Key:       key,
		PageCount: len(entries),
		SourceURL: startURL,
	}, nil
}
