package usecase

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsRelay/internal/domain"
)

func TestRankByCategory(t *testing.T) {
	t.Parallel()

	items := []domain.NewsItem{
		{Fingerprint: "p1", Category: "politics", Heat: 2},
		{Fingerprint: "c1", Category: "conflict", Heat: 6},
		{Fingerprint: "p2", Category: "politics", Heat: 9},
		{Fingerprint: "c2", Category: "conflict", Heat: 8},
		{Fingerprint: "g1", Category: "general", Heat: 1},
	}

	groups := rankByCategory(items)
	require.Len(t, groups, 3)
	require.Equal(t, "conflict", groups[0].Name)
	require.InDelta(t, 7.0, groups[0].Mean, 1e-9)
	require.Equal(t, "politics", groups[1].Name)
	require.Equal(t, "general", groups[2].Name)
	require.Equal(t, "c2", groups[0].Items[0].Fingerprint)
	require.Equal(t, "p2", groups[1].Items[0].Fingerprint)

	var order []string
	for _, it := range sendOrder(groups) {
		order = append(order, it.Fingerprint)
	}
	require.Equal(t, []string{"p2", "c2", "c1", "p1", "g1"}, order)
}

func TestHeatMarker(t *testing.T) {
	t.Parallel()

	require.Equal(t, "🔥🔥🔥", heatMarker(8))
	require.Equal(t, "🔥🔥", heatMarker(7.9))
	require.Equal(t, "🔥🔥", heatMarker(5))
	require.Equal(t, "🔥", heatMarker(3))
	require.Equal(t, "•", heatMarker(2.99))
}

func TestRenderDigestPaginatesEveryItem(t *testing.T) {
	t.Parallel()

	var items []domain.NewsItem
	for i := 0; i < 120; i++ {
		items = append(items, domain.NewsItem{
			Fingerprint: fmt.Sprint(i),
			SourceID:    "reuters",
			Title:       fmt.Sprintf("Headline %03d %s", i, strings.Repeat("x", 40)),
			Link:        fmt.Sprintf("https://www.reuters.com/world/%d?a=1&b=%s", i, strings.Repeat("z", 200)),
			Category:    "general",
			Heat:        float64(i % 10),
		})
	}

	sources := map[string]domain.Source{"reuters": {ID: "reuters", Name: "Reuters"}}
	pages := renderDigest("📰 News digest", rankByCategory(items), sources, baseTime, time.UTC)
	require.Greater(t, len(pages), 1)

	seen := map[string]bool{}
	for i, page := range pages {
		require.LessOrEqual(t, visibleLen(page.Text), maxMessageLen)
		require.Contains(t, page.Text, "120 stories")
		require.Contains(t, page.Text, fmt.Sprintf("part %d/%d", i+1, len(pages)))
		require.Contains(t, page.Text, "<b>GENERAL</b>", "heading repeats on continued pages")
		require.Contains(t, page.Text, "<i>Reuters</i>")
		require.Equal(t, len(page.Items), strings.Count(page.Text, "<a href="))
		for _, it := range page.Items {
			require.False(t, seen[it.Fingerprint], "item %s on two pages", it.Fingerprint)
			seen[it.Fingerprint] = true
		}
	}
	require.Len(t, seen, 120)
}

func TestRenderDigestSinglePageHasNoPartMarker(t *testing.T) {
	t.Parallel()

	items := []domain.NewsItem{{Title: "One", Link: "https://a.example/1", Category: "general", Heat: 1}}
	pages := renderDigest("Digest", rankByCategory(items), nil, baseTime, time.UTC)
	require.Len(t, pages, 1)
	require.Contains(t, pages[0].Text, "1 stories")
	require.NotContains(t, pages[0].Text, "part ")
}

func TestRenderSummaryDigestIndexesEveryItem(t *testing.T) {
	t.Parallel()

	var items []domain.NewsItem
	for i := 0; i < 60; i++ {
		items = append(items, domain.NewsItem{
			Fingerprint: fmt.Sprint(i),
			Title:       fmt.Sprintf("Story %d %s", i, strings.Repeat("y", 90)),
			Link:        fmt.Sprintf("https://b.example/%d", i),
		})
	}

	pages := renderSummaryDigest("Digest", strings.Repeat("Summary & context. ", 500), items, baseTime, time.UTC)
	require.Greater(t, len(pages), 1)
	require.Contains(t, pages[0].Text, "Summary &amp; context.")
	require.NotContains(t, pages[1].Text, "Summary &amp;")

	var n int
	for _, page := range pages {
		require.LessOrEqual(t, visibleLen(page.Text), maxMessageLen)
		n += len(page.Items)
	}
	require.Equal(t, 60, n)
	require.Contains(t, pages[len(pages)-1].Text, "60. <a href=")
}

func TestVisibleLen(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, visibleLen(`<a href="https://x.example/?a=1&amp;b=2">a&amp;b</a>`))
	require.Equal(t, 4, visibleLen("<b>&lt;hi&gt;</b>"))
	require.Equal(t, 2, visibleLen("🔥"), "astral runes count as two units")
}

func TestRenderDigestEscapesMarkup(t *testing.T) {
	t.Parallel()

	items := []domain.NewsItem{{Title: "<script>alert(1)</script> & more", Link: "https://a.example/?q=1&r=2", Category: "general", Heat: 9}}
	pages := renderDigest("Digest", rankByCategory(items), nil, baseTime, time.UTC)
	require.Len(t, pages, 1)
	text := pages[0].Text

	require.NotContains(t, text, "<script>")
	require.Contains(t, text, "&lt;script&gt;")
	require.Contains(t, text, `href="https://a.example/?q=1&amp;r=2"`)
	require.Contains(t, text, "🔥🔥🔥")
}

func TestRenderCaptionRespectsLimit(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CST", 8*3600)
	item := domain.NewsItem{
		Title:       strings.Repeat("Very long headline ", 100),
		Link:        "https://www.economist.com/briefing/2026/04/14/long",
		PublishedAt: time.Date(2026, 4, 14, 2, 0, 0, 0, time.UTC),
	}

	caption := renderCaption(item, "Economist", loc)
	require.LessOrEqual(t, visibleLen(caption), maxCaptionLen)
	require.True(t, strings.HasPrefix(caption, "[Economist]\n<b>Very long headline"))
	require.Contains(t, caption, "2026-04-14 10:00 CST")
	require.True(t, strings.HasSuffix(caption, item.Link))
}

func TestRenderCaptionShortensLinkWithoutSplittingEntities(t *testing.T) {
	t.Parallel()

	item := domain.NewsItem{
		Title: "Tom & Jerry <live>",
		Link:  "https://news.google.com/rss/articles/x?" + strings.Repeat("a=1&b=2&", 300),
	}

	caption := renderCaption(item, "G&N", time.UTC)
	require.LessOrEqual(t, visibleLen(caption), maxCaptionLen)
	require.True(t, strings.HasPrefix(caption, "[G&amp;N]\n<b>"))
	require.Contains(t, caption, "https://news.google.com/rss/articles/x?a=1&amp;b=2")

	// Every '&' must open a complete entity.
	for i := strings.Index(caption, "&"); i >= 0; {
		rest := caption[i:]
		require.Truef(t, strings.HasPrefix(rest, "&amp;") || strings.HasPrefix(rest, "&lt;") || strings.HasPrefix(rest, "&gt;"),
			"broken entity at %q", rest[:min(len(rest), 8)])
		next := strings.Index(rest[1:], "&")
		if next < 0 {
			break
		}
		i += next + 1
	}
	require.Equal(t, 1, strings.Count(caption, "<b>"))
	require.Equal(t, 1, strings.Count(caption, "</b>"))
}
