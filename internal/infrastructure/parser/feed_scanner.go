package parser

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"NewsRelay/internal/dedup"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/scanner"
)

const (
	// KindRSS reads an RSS or Atom document from the configured URL.
	KindRSS = "rss"
	// KindGoogleNews searches Google News for the configured domain.
	KindGoogleNews = "google-news"

	defaultUserAgent = "Mozilla/5.0 (compatible; NewsRelay/1.0; +https://github.com/newsrelay)"
)

// FeedScanner fetches a feed over HTTP and maps its entries to raw items.
type FeedScanner struct {
	kind      string
	client    *http.Client
	policy    *bluemonday.Policy
	userAgent string
}

// NewRSSScanner reads the source URL as a feed.
func NewRSSScanner(client *http.Client) *FeedScanner {
	return newFeedScanner(KindRSS, client)
}

// NewGoogleNewsScanner searches Google News RSS for articles on the source domain.
func NewGoogleNewsScanner(client *http.Client) *FeedScanner {
	return newFeedScanner(KindGoogleNews, client)
}

func newFeedScanner(kind string, client *http.Client) *FeedScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &FeedScanner{
		kind:      kind,
		client:    client,
		policy:    bluemonday.StrictPolicy(),
		userAgent: defaultUserAgent,
	}
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return f.kind
}

// Scan downloads and parses the feed for one source.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	feedURL, err := f.feedURL(req)
	if err != nil {
		return nil, err
	}

	feed, err := f.fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceID, err)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		title := f.cleanTitle(it.Title)
		link := strings.TrimSpace(it.Link)
		if title == "" && link == "" {
			continue
		}
		items = append(items, domain.RawItem{
			SourceID:    req.SourceID,
			Title:       title,
			Link:        dedup.UnwrapRedirect(link),
			PublishedAt: publishedAt(it),
			ImageURL:    NormalizeImageURL(ExtractImageURL(it)),
		})
	}
	return items, nil
}

func (f *FeedScanner) feedURL(req scanner.Request) (string, error) {
	if f.kind == KindGoogleNews {
		if req.Domain == "" {
			return "", fmt.Errorf("source %s: google-news scanner requires a domain", req.SourceID)
		}
		return GoogleNewsURL(req.Domain), nil
	}
	if req.URL == "" {
		return "", fmt.Errorf("source %s: feed url is empty", req.SourceID)
	}
	return req.URL, nil
}

func (f *FeedScanner) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// cleanTitle strips markup that some feeds embed in titles.
func (f *FeedScanner) cleanTitle(raw string) string {
	text := html.UnescapeString(f.policy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

func publishedAt(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC()
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

// GoogleNewsURL builds the Google News RSS search for articles on domain.
func GoogleNewsURL(domainName string) string {
	q := url.QueryEscape("site:" + domainName)
	return "https://news.google.com/rss/search?q=" + q + "&hl=en-US&gl=US&ceid=US:en"
}
