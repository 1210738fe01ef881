package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mfenderov/bam-curate/internal/config"
	"github.com/mfenderov/bam-curate/internal/dataset"
	"github.com/mfenderov/bam-curate/internal/events"
	"github.com/mfenderov/bam-curate/internal/scraper"
	"github.com/mfenderov/bam-curate/pkg/models"
)

var (
	crawlOutput      string
	crawlUpload      bool
	crawlMaxPages    int
	crawlMatch       []string
	crawlExclude     []string
	crawlSelector    string
	crawlReadability bool
	crawlCookies     []string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <url> [url...]",
	Short: "Crawl sites into a JSON dataset",
	Long: `Crawl one or more start URLs and write every page as a dataset entry
({title, url, html}) ready for 'bam-curate convert'.

Examples:
  # Crawl into a local dataset file
  bam-curate crawl https://go.dev/doc/ --output go-doc.json

  # Only follow pages below /doc/ and keep the main article
  bam-curate crawl https://go.dev/doc/ --match 'https://go.dev/doc/**' --readability

  # Accept a cookie consent banner before crawling
  bam-curate crawl https://example.com/docs/ --cookie consent=accepted

  # Store the dataset in S3, then convert it from there
  bam-curate crawl https://go.dev/doc/ --upload`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVarP(&crawlOutput, "output", "o", "output.json", "dataset file to write")
	crawlCmd.Flags().BoolVar(&crawlUpload, "upload", false, "write one dataset per URL to S3 instead of a local file")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "stop each crawl after this many pages")
	crawlCmd.Flags().StringSliceVar(&crawlMatch, "match", nil, "glob a link must match to be followed (repeatable)")
	crawlCmd.Flags().StringSliceVar(&crawlExclude, "exclude", nil, "glob that stops a link from being followed (repeatable)")
	crawlCmd.Flags().StringVar(&crawlSelector, "selector", "", "CSS selector of the content to keep")
	crawlCmd.Flags().BoolVar(&crawlReadability, "readability", false, "reduce each page to its main article")
	crawlCmd.Flags().StringArrayVar(&crawlCookies, "cookie", nil, "name=value cookie sent with every request (repeatable)")
	crawlCmd.MarkFlagsMutuallyExclusive("output", "upload")
}

func applyCrawlFlags(cmd *cobra.Command, cc *config.Crawler) error {
	flags := cmd.Flags()
	if flags.Changed("max-pages") {
		cc.MaxPages = crawlMaxPages
	}
	if flags.Changed("match") {
		cc.Match = crawlMatch
	}
	if flags.Changed("exclude") {
		cc.Exclude = crawlExclude
	}
	if flags.Changed("selector") {
		cc.Selector = crawlSelector
	}
	if flags.Changed("readability") {
		cc.Readability = crawlReadability
	}
	if flags.Changed("cookie") {
		cc.Cookies = nil
		for _, raw := range crawlCookies {
			ck, err := scraper.ParseCookie(raw)
			if err != nil {
				return err
			}
			cc.Cookies = append(cc.Cookies, config.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
	return nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if err := applyCrawlFlags(cmd, &cfg.Crawler); err != nil {
		return fmt.Errorf("invalid crawl flags: %w", err)
	}

	sc := scraper.Config{
		Delay:            cfg.Crawler.Delay,
		MaxDepth:         cfg.Crawler.MaxDepth,
		MaxPages:         cfg.Crawler.MaxPages,
		FollowLinks:      cfg.Crawler.FollowLinks,
		Timeout:          cfg.Crawler.Timeout,
		UserAgent:        cfg.Crawler.UserAgent,
		TryMarkdownFirst: cfg.Crawler.TryMarkdownFirst,
		Match:            cfg.Crawler.Match,
		Exclude:          cfg.Crawler.Exclude,
		Selector:         cfg.Crawler.Selector,
		Readability:      cfg.Crawler.Readability,
	}
	for _, ck := range cfg.Crawler.Cookies {
		sc.Cookies = append(sc.Cookies, scraper.Cookie{Name: ck.Name, Value: ck.Value})
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid crawler configuration: %w", err)
	}
	s := scraper.New(sc)

	slog.Debug("crawl command starting", "urls", len(args), "upload", crawlUpload)

	// Crawls are produced in order; the consumer reports them as they land.
	crawlEvents := make(chan events.CrawlCompleteEvent)
	done := make(chan struct{})
	totalPages := 0

	go func() {
		defer close(done)
		for event := range crawlEvents {
			totalPages += event.PageCount
			fmt.Printf("  Pages: %d, Dataset: %s\n", event.PageCount, event.Key)
		}
	}()

	err := crawlURLs(ctx, &cfg, s, args, crawlEvents)
	close(crawlEvents)
	<-done
	if err != nil {
		return err
	}

	color.Green("\n✓ Crawled %d pages\n", totalPages)
	if crawlUpload {
		fmt.Println("Run 'bam-curate convert --prefix <prefix>' to convert these datasets")
	}
	return nil
}

// crawlURLs crawls each start URL and sends one event per written dataset.
// Local crawls are merged into a single file written after the last URL.
func crawlURLs(ctx context.Context, cfg *config.Config, s *scraper.Scraper, urls []string, out chan<- events.CrawlCompleteEvent) error {
	if crawlUpload {
		storageClient, err := newStorageClient(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		for _, u := range urls {
			fmt.Printf("Crawling to S3: %s\n", u)

			result, err := s.CrawlToS3(ctx, u, storageClient)
			if err != nil {
				color.Red("  Error: %v\n", err)
				continue
			}
			out <- events.CrawlCompleteEvent{
				Bucket:    storageClient.Bucket(),
				Key:       result.Prefix,
				SourceURL: result.SourceURL,
				PageCount: result.PageCount,
				Timestamp: time.Now(),
			}
		}
		return nil
	}

	var all []models.Entry
	for _, u := range urls {
		fmt.Printf("Crawling: %s\n", u)

		entries, err := s.Scrape(ctx, u)
		if err != nil {
			if ctx.Err() != nil && len(entries) > 0 {
				slog.Warn("crawl interrupted, keeping partial results", "url", u, "pages", len(entries))
				all = append(all, entries...)
				break
			}
			color.Red("  Error: %v\n", err)
			continue
		}
		all = append(all, entries...)
	}

	if err := dataset.WriteFile(crawlOutput, all); err != nil {
		return err
	}
	out <- events.CrawlCompleteEvent{
		Key:       crawlOutput,
		SourceURL: urls[0],
		PageCount: len(all),
		Timestamp: time.Now(),
	}
	return nil
}
