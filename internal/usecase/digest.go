package usecase

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"NewsRelay/internal/domain"
)

// Telegram limits, counted in UTF-16 units after HTML parsing. Messages keep
// some headroom below 4096.
const (
	maxMessageLen   = 3900
	maxCaptionLen   = 1024
	maxSummaryRunes = 1800

	maxCaptionLinkRunes = 512
	maxHeadlineRunes    = 300
)

type categoryGroup struct {
	Name  string
	Items []domain.NewsItem
	Mean  float64
}

// rankByCategory groups items by category. Groups are ordered by mean heat and
// items inside a group by heat, both descending and stable.
func rankByCategory(items []domain.NewsItem) []categoryGroup {
	index := map[string]int{}
	var groups []categoryGroup
	for _, it := range items {
		i, ok := index[it.Category]
		if !ok {
			i = len(groups)
			index[it.Category] = i
			groups = append(groups, categoryGroup{Name: it.Category})
		}
		groups[i].Items = append(groups[i].Items, it)
	}

	for i := range groups {
		g := &groups[i]
		sort.SliceStable(g.Items, func(a, b int) bool { return g.Items[a].Heat > g.Items[b].Heat })
		sum := 0.0
		for _, it := range g.Items {
			sum += it.Heat
		}
		g.Mean = sum / float64(len(g.Items))
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Mean > groups[b].Mean })
	return groups
}

// sendOrder flattens ranked groups into individual send order: heat
// descending, ties keep the category ranking.
func sendOrder(groups []categoryGroup) []domain.NewsItem {
	out := flatten(groups)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Heat > out[b].Heat })
	return out
}

func flatten(groups []categoryGroup) []domain.NewsItem {
	var out []domain.NewsItem
	for _, g := range groups {
		out = append(out, g.Items...)
	}
	return out
}

func heatMarker(h float64) string {
	switch {
	case h >= 8:
		return "🔥🔥🔥"
	case h >= 5:
		return "🔥🔥"
	case h >= 3:
		return "🔥"
	default:
		return "•"
	}
}

func headline(it domain.NewsItem) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(it.Link), html.EscapeString(truncateRunes(it.Title, maxHeadlineRunes)))
}

func digestHeader(title string, count int, now time.Time, loc *time.Location, part, parts int) string {
	stories := fmt.Sprintf("%d stories", count)
	if parts > 1 {
		stories += fmt.Sprintf(" · part %d/%d", part, parts)
	}
	return fmt.Sprintf("<b>%s</b> · %s\n<i>%s</i>",
		html.EscapeString(title), now.In(loc).Format("2006-01-02 15:04 MST"), stories)
}

// digestPage is one chat message of a digest and the items it links.
type digestPage struct {
	Text  string
	Items []domain.NewsItem
}

type digestLine struct {
	section string
	text    string
	item    domain.NewsItem
}

// renderDigest is the deterministic digest layout used when no summary is available.
func renderDigest(title string, groups []categoryGroup, sources map[string]domain.Source, now time.Time, loc *time.Location) []digestPage {
	var lines []digestLine
	for _, g := range groups {
		section := "<b>" + html.EscapeString(strings.ToUpper(g.Name)) + "</b>"
		for _, it := range g.Items {
			lines = append(lines, digestLine{
				section: section,
				text: fmt.Sprintf("%s %s · <i>%s</i>",
					heatMarker(it.Heat), headline(it), html.EscapeString(sourceName(sources, it.SourceID))),
				item: it,
			})
		}
	}
	return paginate(title, "", lines, now, loc)
}

// renderSummaryDigest puts summarizer prose on the first page, followed by a
// numbered headline index covering every item.
func renderSummaryDigest(title, summary string, items []domain.NewsItem, now time.Time, loc *time.Location) []digestPage {
	intro := html.EscapeString(truncateRunes(strings.TrimSpace(summary), maxSummaryRunes))
	lines := make([]digestLine, 0, len(items))
	for i, it := range items {
		lines = append(lines, digestLine{text: fmt.Sprintf("%d. %s", i+1, headline(it)), item: it})
	}
	return paginate(title, intro, lines, now, loc)
}

// paginate packs lines into as many messages as needed so that every item
// is linked exactly once and no message exceeds maxMessageLen visible units.
// A section heading is repeated when its group continues on a new page.
func paginate(title, intro string, lines []digestLine, now time.Time, loc *time.Location) []digestPage {
	type draft struct {
		body  []string
		items []domain.NewsItem
		used  int
	}
	headerCost := visibleLen(digestHeader(title, len(lines), now, loc, 99, 99))

	cur := draft{used: headerCost}
	if intro != "" {
		cur.body = append(cur.body, "", intro)
		cur.used += visibleLen(intro) + 2
	}
	section := ""
	cost := func(ln digestLine) int {
		c := visibleLen(ln.text) + 1
		if ln.section != "" && ln.section != section {
			c += visibleLen(ln.section) + 2
		}
		return c
	}

	var drafts []draft
	for _, ln := range lines {
		if len(cur.items) > 0 && cur.used+cost(ln) > maxMessageLen {
			drafts = append(drafts, cur)
			cur = draft{used: headerCost}
			section = ""
		}
		cur.used += cost(ln)
		if ln.section != "" && ln.section != section {
			cur.body = append(cur.body, "", ln.section)
			section = ln.section
		}
		cur.body = append(cur.body, ln.text)
		cur.items = append(cur.items, ln.item)
	}
	if len(cur.body) > 0 {
		drafts = append(drafts, cur)
	}

	pages := make([]digestPage, 0, len(drafts))
	for i, d := range drafts {
		header := digestHeader(title, len(lines), now, loc, i+1, len(drafts))
		pages = append(pages, digestPage{
			Text:  strings.Join(append([]string{header}, d.body...), "\n"),
			Items: d.items,
		})
	}
	return pages
}

// visibleLen measures text the way Telegram does: markup removed, entities
// decoded, counted in UTF-16 code units. Callers only pass markup they built
// themselves, so every literal '<' opens a tag.
func visibleLen(s string) int {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return len(utf16.Encode([]rune(html.UnescapeString(b.String()))))
}

// renderCaption formats a single-item message within the photo caption
// limit. Raw text is shortened before escaping so an entity is never split.
// An oversized link is capped first so the title survives.
func renderCaption(it domain.NewsItem, source string, loc *time.Location) string {
	published := ""
	if !it.PublishedAt.IsZero() {
		published = it.PublishedAt.In(loc).Format("2006-01-02 15:04 MST")
	}

	build := func(title, link string) string {
		parts := []string{
			"[" + html.EscapeString(source) + "]",
			"<b>" + html.EscapeString(title) + "</b>",
		}
		if published != "" {
			parts = append(parts, published)
		}
		if link != "" {
			parts = append(parts, html.EscapeString(link))
		}
		return strings.Join(parts, "\n")
	}

	title, link := it.Title, truncateRunes(it.Link, maxCaptionLinkRunes)
	caption := build(title, link)
	for visibleLen(caption) > maxCaptionLen && title != "" {
		title = truncateRunes(title, utf8.RuneCountInString(title)*9/10)
		caption = build(title, link)
	}
	for visibleLen(caption) > maxCaptionLen && link != "" {
		link = truncateRunes(link, utf8.RuneCountInString(link)*9/10)
		caption = build(title, link)
	}
	return caption
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func sourceName(sources map[string]domain.Source, id string) string {
	if src, ok := sources[id]; ok && src.Name != "" {
		return src.Name
	}
	return id
}
