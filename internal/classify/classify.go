package classify

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultCategory is assigned when no rule matches.
const DefaultCategory = "general"

// CategoryRule maps title keywords to a topic category.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Rules configures the classifier. Categories are evaluated in order.
type Rules struct {
	Categories   []CategoryRule `yaml:"categories"`
	Default      string         `yaml:"default"`
	Major        []string       `yaml:"major"`
	OpinionTitle []string       `yaml:"opinionTitle"`
	OpinionPath  []string       `yaml:"opinionPath"`
}

type category struct {
	name     string
	patterns []*regexp.Regexp
}

// Classifier assigns categories and decides whether an item is major news.
type Classifier struct {
	categories   []category
	fallback     string
	major        []*regexp.Regexp
	opinionTitle []*regexp.Regexp
	opinionPath  map[string]struct{}
}

// New compiles rules into matchers.
func New(rules Rules) *Classifier {
	c := &Classifier{
		fallback:     strings.TrimSpace(rules.Default),
		major:        Patterns(rules.Major),
		opinionTitle: Patterns(rules.OpinionTitle),
		opinionPath:  map[string]struct{}{},
	}
	if c.fallback == "" {
		c.fallback = DefaultCategory
	}
	for _, rule := range rules.Categories {
		c.categories = append(c.categories, category{name: rule.Name, patterns: Patterns(rule.Keywords)})
	}
	for _, seg := range rules.OpinionPath {
		seg = strings.Trim(strings.ToLower(strings.TrimSpace(seg)), "/")
		if seg != "" {
			c.opinionPath[seg] = struct{}{}
		}
	}
	return c
}

// Category returns the first matching category in rule order.
func (c *Classifier) Category(title string) string {
	for _, cat := range c.categories {
		if matchAny(cat.patterns, title) {
			return cat.name
		}
	}
	return c.fallback
}

// IsMajor is true when the title hits a major keyword and the piece is not opinion.
func (c *Classifier) IsMajor(title, link string) bool {
	if c.IsOpinion(title, link) {
		return false
	}
	return matchAny(c.major, title)
}

// IsOpinion detects editorial pieces by title marker or link path segment.
func (c *Classifier) IsOpinion(title, link string) bool {
	if matchAny(c.opinionTitle, title) {
		return true
	}
	if len(c.opinionPath) == 0 || link == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if _, ok := c.opinionPath[seg]; ok {
			return true
		}
	}
	return false
}

// Patterns compiles keywords into case-insensitive matchers. ASCII keywords
// match whole words ("fed" does not hit "federal") and multi-word phrases
// accept spaces or hyphens between words. Other scripts match as substrings
// because titles in those scripts rarely carry word separators.
func Patterns(keywords []string) []*regexp.Regexp {
	fold := cases.Fold()
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if isASCII(kw) {
			parts := strings.Fields(kw)
			for i, p := range parts {
				parts[i] = regexp.QuoteMeta(p)
			}
			expr := `(?i)(?:^|[^A-Za-z0-9_])` + strings.Join(parts, `[\s\-]+`) + `(?:$|[^A-Za-z0-9_])`
			out = append(out, regexp.MustCompile(expr))
			continue
		}
		out = append(out, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(fold.String(kw))))
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, title string) bool {
	if title == "" {
		return false
	}
	folded := cases.Fold().String(title)
	for _, p := range patterns {
		if p.MatchString(title) || p.MatchString(folded) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// DefaultMajorKeywords is the bundled "major news" vocabulary.
var DefaultMajorKeywords = []string{
	"breaking", "urgent", "election", "war", "ceasefire", "attack", "missile",
	"killed", "dead", "explosion", "earthquake", "flood", "hurricane", "wildfire",
	"sanction", "supreme court", "white house", "fed", "interest rate", "inflation",
	"recession", "bankruptcy", "merger", "acquisition", "ipo", "earnings", "tariff",
	"taiwan", "south china sea", "trump", "xi jinping", "习近平", "巴以冲突",
	"israel", "israeli", "palestine", "palestinian", "gaza", "hamas", "west bank",
	"俄乌战争", "ukraine", "ukrainian", "russia", "russian", "putin", "zelensky",
	"kyiv", "moscow", "乌克兰", "俄罗斯", "eu", "europe", "european", "eurozone",
	"ecb", "brussels", "africa", "african", "非洲", "sudan", "darfur", "congo",
	"drc", "somalia", "sahel", "boko haram", "al-shabaab", "greenland", "格陵兰",
	"格陵兰岛", "southeast asia", "asean", "东南亚", "philippines", "vietnam",
	"thailand", "myanmar", "indonesia", "malaysia", "singapore", "cambodia", "laos",
}

// DefaultRules returns the built-in categories and opinion markers.
func DefaultRules() Rules {
	return Rules{
		Categories: []CategoryRule{
			{Name: "conflict", Keywords: []string{"war", "missile", "ceasefire", "attack", "gaza", "hamas", "ukraine", "russia", "military"}},
			{Name: "disaster", Keywords: []string{"earthquake", "flood", "hurricane", "wildfire", "tsunami", "explosion"}},
			{Name: "politics", Keywords: []string{"election", "white house", "supreme court", "congress", "parliament", "sanction", "trump"}},
			{Name: "economy", Keywords: []string{"fed", "interest rate", "inflation", "recession", "tariff", "earnings", "ipo", "merger", "acquisition", "bankruptcy"}},
			{Name: "asia", Keywords: []string{"china", "taiwan", "south china sea", "asean", "japan", "korea", "习近平", "东南亚"}},
		},
		Default:      DefaultCategory,
		Major:        DefaultMajorKeywords,
		OpinionTitle: []string{"opinion", "opinions", "op-ed", "editorial"},
		OpinionPath:  []string{"opinion", "opinions", "commentary", "editorial", "editorials"},
	}
}
