package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
)

var (
	googleSizeExpr = regexp.MustCompile(`=s0-w\d+(-rw)?`)
	googleDimsExpr = regexp.MustCompile(`=w\d+-h\d+(-p)?`)
)

// ExtractImageURL picks the best image of a feed item.
// Priority: Item.Image > media:thumbnail > media:content > News:Image > image enclosure.
func ExtractImageURL(item *gofeed.Item) string {
	if item == nil {
		return ""
	}
	if item.Image != nil && isValidImageScheme(item.Image.URL) {
		return item.Image.URL
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; isValidImageScheme(u) {
				return u
			}
		}
		for _, content := range media["content"] {
			medium := content.Attrs["medium"]
			if medium != "" && medium != "image" {
				continue
			}
			if u := content.Attrs["url"]; isValidImageScheme(u) {
				return u
			}
		}
	}

	// Bing News puts thumbnails in its own namespace.
	for prefix, ext := range item.Extensions {
		if !strings.EqualFold(prefix, "news") {
			continue
		}
		for name, elems := range ext {
			if !strings.EqualFold(name, "image") {
				continue
			}
			for _, el := range elems {
				if u := strings.TrimSpace(el.Value); isValidImageScheme(u) {
					return u
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") && isValidImageScheme(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

// NormalizeImageURL forces https and asks known thumbnail hosts for a larger rendition.
func NormalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.HasSuffix(host, "bing.com") && u.Path == "/th":
		q := u.Query()
		if q.Get("id") == "" && q.Get("thid") == "" {
			return raw
		}
		q.Set("w", "1600")
		q.Set("h", "900")
		q.Set("c", "14")
		q.Set("rs", "1")
		u.RawQuery = q.Encode()
		return u.String()
	case strings.HasSuffix(host, "googleusercontent.com"):
		raw = googleSizeExpr.ReplaceAllString(raw, "=s0-w1600-rw")
		return googleDimsExpr.ReplaceAllString(raw, "=w1600-h900-p")
	}
	return raw
}

func isValidImageScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
