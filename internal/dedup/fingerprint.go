package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"ocid":   {},
	"cmpid":  {},
	"smid":   {},
	"ref":    {},
}

// Fingerprint derives the dedup key for an article. The canonical link is the
// identity; the normalised title stands in only when the link is unusable.
func Fingerprint(sourceID, link, title string) string {
	identity := CanonicalLink(link)
	if identity == "" {
		identity = "title:" + normalizeTitle(title)
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceID) + "\n" + identity))
	return hex.EncodeToString(sum[:])
}

// CanonicalLink returns a stable form of link, or "" when the link cannot
// identify an article (empty, unparseable, or missing a host).
func CanonicalLink(link string) string {
	link = UnwrapRedirect(strings.TrimSpace(link))
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, drop := trackingParams[lower]; drop {
			q.Del(key)
		}
	}
	u.RawQuery = encodeSorted(q)

	return u.String()
}

// UnwrapRedirect resolves aggregator click-through links to the article URL.
func UnwrapRedirect(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	host := strings.ToLower(u.Hostname())
	if strings.HasSuffix(host, "bing.com") && strings.HasPrefix(u.Path, "/news/apiclick.aspx") {
		if target := u.Query().Get("url"); target != "" {
			return target
		}
	}
	return link
}

func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
