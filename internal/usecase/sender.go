package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"NewsRelay/internal/domain"
)

// DefaultPlaceholderImage is the last photo tried before falling back to text.
const DefaultPlaceholderImage = "https://upload.wikimedia.org/wikipedia/commons/thumb/a/ac/No_image_available.svg/512px-No_image_available.svg.png"

type imageStep struct {
	name    string
	resolve func(ctx context.Context) (string, error)
}

func staticStep(name, u string) imageStep {
	return imageStep{name: name, resolve: func(context.Context) (string, error) {
		if u == "" {
			return "", domain.ErrNoImage
		}
		return u, nil
	}}
}

// imageChain lists photo candidates for item in fallback order. Steps are
// resolved lazily so the article page is only fetched when the feed image
// is missing or rejected.
func (p *Pipeline) imageChain(item domain.NewsItem) []imageStep {
	steps := []imageStep{staticStep("item", item.ImageURL)}

	if p.settings.FetchArticleImage && p.images != nil && item.Link != "" {
		steps = append(steps, imageStep{name: "article", resolve: func(ctx context.Context) (string, error) {
			ctx, cancel := withTimeout(ctx, p.settings.Timeouts.Image)
			defer cancel()
			return p.images.ArticleImage(ctx, item.Link)
		}})
	}

	src := p.sources[item.SourceID]
	if src.Logo != "" {
		steps = append(steps, staticStep("logo", src.Logo))
	} else if host := logoDomain(src, item.Link); host != "" {
		steps = append(steps,
			staticStep("logo", "https://logo.clearbit.com/"+host),
			staticStep("favicon", fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=256", url.QueryEscape(host))),
		)
	}

	placeholder := p.settings.PlaceholderImage
	if placeholder == "" {
		placeholder = DefaultPlaceholderImage
	}
	return append(steps, staticStep("placeholder", placeholder))
}

func logoDomain(src domain.Source, link string) string {
	if src.Domain != "" {
		return strings.TrimPrefix(strings.ToLower(src.Domain), "www.")
	}
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// sendItem walks the photo chain and finally sends text. It reports whether
// any step was delivered.
func (p *Pipeline) sendItem(ctx context.Context, item domain.NewsItem) bool {
	caption := renderCaption(item, sourceName(p.sources, item.SourceID), p.settings.Location)
	tried := map[string]struct{}{}

	for _, step := range p.imageChain(item) {
		imageURL, err := step.resolve(ctx)
		if err != nil || imageURL == "" {
			if err != nil && !errors.Is(err, domain.ErrNoImage) {
				p.logger.Warn("image step failed", "step", step.name, "link", item.Link, "error", err)
			}
			continue
		}
		if _, dup := tried[imageURL]; dup {
			continue
		}
		tried[imageURL] = struct{}{}

		sendCtx, cancel := withTimeout(ctx, p.settings.Timeouts.Send)
		err = p.transport.SendPhoto(sendCtx, p.settings.Target, imageURL, caption)
		cancel()
		if err == nil {
			p.logger.Debug("photo sent", "step", step.name, "fingerprint", item.Fingerprint)
			return true
		}
		p.logger.Warn("send photo failed", "step", step.name, "image", imageURL, "error", err)
	}

	sendCtx, cancel := withTimeout(ctx, p.settings.Timeouts.Send)
	defer cancel()
	if err := p.transport.SendMessage(sendCtx, p.settings.Target, caption); err != nil {
		p.logger.Warn("send text failed", "fingerprint", item.Fingerprint, "link", item.Link, "error", err)
		return false
	}
	return true
}

// sendDigest renders items as one or more messages and sends them in order,
// stopping at the first failure. It returns the items whose page was
// delivered and the number of pages sent.
func (p *Pipeline) sendDigest(ctx context.Context, title string, items []domain.NewsItem, now time.Time) ([]domain.NewsItem, int, error) {
	pages := p.digestPages(ctx, title, rankByCategory(items), now)

	var delivered []domain.NewsItem
	for i, page := range pages {
		sendCtx, cancel := withTimeout(ctx, p.settings.Timeouts.Send)
		err := p.transport.SendMessage(sendCtx, p.settings.Target, page.Text)
		cancel()
		if err != nil {
			return delivered, i, fmt.Errorf("send digest part %d/%d: %w", i+1, len(pages), err)
		}
		delivered = append(delivered, page.Items...)
	}
	return delivered, len(pages), nil
}

func (p *Pipeline) digestPages(ctx context.Context, title string, groups []categoryGroup, now time.Time) []digestPage {
	ranked := flatten(groups)
	if p.summarizer != nil {
		batch := ranked
		if limit := p.settings.SummaryMaxItems; limit > 0 && len(batch) > limit {
			batch = batch[:limit]
		}
		sumCtx, cancel := withTimeout(ctx, p.settings.Timeouts.Summary)
		summary, err := p.summarizer.Summarize(sumCtx, batch)
		cancel()
		if err == nil && strings.TrimSpace(summary) != "" {
			return renderSummaryDigest(title, summary, ranked, now, p.settings.Location)
		}
		if err != nil {
			p.logger.Warn("summarize failed, using template", "error", err)
		}
	}
	return renderDigest(title, groups, p.sources, now, p.settings.Location)
}
