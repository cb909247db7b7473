package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/scanner"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:News="https://www.bing.com/news/search?q=&amp;format=RSS">
<channel>
  <title>World</title>
  <item>
    <title>Missile strike &lt;b&gt;hits&lt;/b&gt;   port city</title>
    <link>https://www.bing.com/news/apiclick.aspx?ref=FexRss&amp;url=https%3a%2f%2fwww.reuters.com%2fworld%2fport-strike%2f&amp;c=1</link>
    <pubDate>Tue, 14 Apr 2026 08:30:00 GMT</pubDate>
    <News:Image>http://www.bing.com/th?id=OVFT.abc&amp;pid=News</News:Image>
  </item>
  <item>
    <title>Markets rally</title>
    <link>https://www.reuters.com/markets/rally</link>
    <pubDate>Tue, 14 Apr 2026 07:00:00 GMT</pubDate>
    <media:thumbnail url="https://img.example.com/rally.jpg"/>
  </item>
  <item>
    <title>Enclosure only</title>
    <link>https://www.reuters.com/world/enclosure</link>
    <enclosure url="https://img.example.com/enc.png" type="image/png" length="1"/>
  </item>
</channel>
</rss>`

func TestFeedScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "NewsRelay") {
			t.Errorf("missing user agent: %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	sc := NewRSSScanner(server.Client())
	items, err := sc.Scan(context.Background(), scanner.Request{SourceID: "Reuters", URL: server.URL + "/feed"})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "Missile strike hits port city" {
		t.Fatalf("unexpected title: %q", first.Title)
	}
	if first.Link != "https://www.reuters.com/world/port-strike/" {
		t.Fatalf("redirect not unwrapped: %s", first.Link)
	}
	if first.SourceID != "Reuters" {
		t.Fatalf("unexpected source: %s", first.SourceID)
	}
	want := time.Date(2026, time.April, 14, 8, 30, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published time: %v", first.PublishedAt)
	}
	img, err := url.Parse(first.ImageURL)
	if err != nil {
		t.Fatalf("parse image url: %v", err)
	}
	if img.Scheme != "https" || img.Query().Get("w") != "1600" || img.Query().Get("id") != "OVFT.abc" {
		t.Fatalf("bing thumbnail not normalised: %s", first.ImageURL)
	}

	if items[1].ImageURL != "https://img.example.com/rally.jpg" {
		t.Fatalf("unexpected media thumbnail: %s", items[1].ImageURL)
	}
	if items[2].ImageURL != "https://img.example.com/enc.png" {
		t.Fatalf("unexpected enclosure image: %s", items[2].ImageURL)
	}
	if !items[2].PublishedAt.IsZero() {
		t.Fatalf("expected zero time without pubDate, got %v", items[2].PublishedAt)
	}
}

func TestFeedScannerHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewRSSScanner(server.Client()).Scan(context.Background(), scanner.Request{SourceID: "WSJ", URL: server.URL})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestGoogleNewsScannerRequiresDomain(t *testing.T) {
	t.Parallel()

	sc := NewGoogleNewsScanner(nil)
	if sc.Name() != KindGoogleNews {
		t.Fatalf("unexpected name: %s", sc.Name())
	}
	if _, err := sc.Scan(context.Background(), scanner.Request{SourceID: "AP"}); err == nil {
		t.Fatalf("expected error without domain")
	}

	got := GoogleNewsURL("apnews.com")
	if got != "https://news.google.com/rss/search?q=site%3Aapnews.com&hl=en-US&gl=US&ceid=US:en" {
		t.Fatalf("unexpected google news url: %s", got)
	}
}

func TestNormalizeImageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "http://cdn.example.com/a.jpg", want: "https://cdn.example.com/a.jpg"},
		{in: "https://www.bing.com/th?pid=News", want: "https://www.bing.com/th?pid=News"},
		{in: "https://lh3.googleusercontent.com/abc=s0-w300-rw", want: "https://lh3.googleusercontent.com/abc=s0-w1600-rw"},
		{in: "https://lh3.googleusercontent.com/abc=w300-h200-p", want: "https://lh3.googleusercontent.com/abc=w1600-h900-p"},
	}
	for _, tt := range tests {
		if got := NormalizeImageURL(tt.in); got != tt.want {
			t.Fatalf("NormalizeImageURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type stubScanner struct {
	name  string
	items map[string][]domain.RawItem
	fail  map[string]error
}

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(_ context.Context, req scanner.Request) ([]domain.RawItem, error) {
	if err := s.fail[req.SourceID]; err != nil {
		return nil, err
	}
	return s.items[req.SourceID], nil
}

func TestStrategySourceFetchAll(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(stubScanner{
		name: KindRSS,
		items: map[string][]domain.RawItem{
			"NYP": {{Title: "a"}, {Title: "b"}},
		},
		fail: map[string]error{"WaPo": errors.New("timeout")},
	})

	src := NewStrategySource(reg, []config.SourceConfig{
		{ID: "NYP", Scanner: KindRSS},
		{ID: "WaPo", Scanner: KindRSS},
		{ID: "Odd", Scanner: "carrier-pigeon"},
	}, nil)

	results := src.FetchAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].SourceID != "NYP" || results[0].Err != nil || len(results[0].Items) != 2 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[0].Items[0].SourceID != "NYP" {
		t.Fatalf("source id not stamped: %+v", results[0].Items[0])
	}
	if results[1].Err == nil || !strings.Contains(results[1].Err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", results[1].Err)
	}
	if results[2].Err == nil || !strings.Contains(results[2].Err.Error(), "not registered") {
		t.Fatalf("expected registry error, got %v", results[2].Err)
	}
}
