package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const maxArticleBytes = 700_000

var imageSelectors = []struct {
	query string
	attr  string
}{
	{query: `meta[property="og:image"]`, attr: "content"},
	{query: `meta[name="og:image"]`, attr: "content"},
	{query: `meta[name="twitter:image"]`, attr: "content"},
	{query: `meta[property="twitter:image"]`, attr: "content"},
	{query: `link[rel="image_src"]`, attr: "href"},
	{query: `img[src]`, attr: "src"},
}

// ArticleImageResolver reads an article page and returns its lead image.
type ArticleImageResolver struct {
	client    *http.Client
	userAgent string
}

var _ ports.ImageResolver = (*ArticleImageResolver)(nil)

// NewArticleImageResolver wires an HTTP client; a nil client gets a 20s timeout.
func NewArticleImageResolver(client *http.Client) *ArticleImageResolver {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArticleImageResolver{
		client:    client,
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// ArticleImage returns the og:image (or nearest equivalent) of articleURL,
// resolved against the final URL after redirects.
func (r *ArticleImageResolver) ArticleImage(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article returned %s", resp.Status)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml+xml") {
		return "", domain.ErrNoImage
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}

	base := resp.Request.URL
	for _, sel := range imageSelectors {
		var found string
		doc.Find(sel.query).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, ok := s.Attr(sel.attr)
			v = strings.TrimSpace(v)
			if !ok || v == "" || strings.HasPrefix(v, "data:") {
				return true
			}
			found = v
			return false
		})
		if found == "" {
			continue
		}
		if abs := resolveAgainst(base, found); abs != "" {
			return NormalizeImageURL(abs), nil
		}
	}
	return "", domain.ErrNoImage
}

func resolveAgainst(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
