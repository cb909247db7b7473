// Package scoring ranks news items by an editorial heat signal.
//
// Heat is a pure function of the item and the evaluation instant:
//
//	heat = source + title signal + recency + numeric event bonus
//
// Every term is driven by Weights so tables can be tuned from configuration
// without touching the algorithm.
package scoring

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"NewsRelay/internal/domain"
)

// Bucket groups keywords that share a title-signal weight.
type Bucket struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// RecencyStep assigns Weight to items younger than Below.
type RecencyStep struct {
	Below  time.Duration `yaml:"below"`
	Weight float64       `yaml:"weight"`
}

// Weights holds every tunable of the heat function.
type Weights struct {
	Sources          map[string]float64 `yaml:"sources"`
	DefaultSource    float64            `yaml:"defaultSource"`
	Buckets          []Bucket           `yaml:"buckets"`
	Recency          []RecencyStep      `yaml:"recency"`
	Stale            float64            `yaml:"stale"`
	NumericBonus     float64            `yaml:"numericBonus"`
	NumericMinDigits int                `yaml:"numericMinDigits"`
}

// Breakdown itemises a heat score.
type Breakdown struct {
	Source  float64
	Title   float64
	Recency float64
	Numeric float64
}

// Total sums the breakdown.
func (b Breakdown) Total() float64 {
	return b.Source + b.Title + b.Recency + b.Numeric
}

type foldedBucket struct {
	weight   float64
	keywords []string
}

// Engine evaluates heat with a fixed set of weights.
type Engine struct {
	weights Weights
	buckets []foldedBucket
	recency []RecencyStep
	digits  *regexp.Regexp
}

// NewEngine prepares an engine; keywords are case-folded once up front.
func NewEngine(w Weights) *Engine {
	fold := cases.Fold()

	buckets := make([]foldedBucket, 0, len(w.Buckets))
	for _, b := range w.Buckets {
		fb := foldedBucket{weight: b.Weight}
		for _, kw := range b.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			fb.keywords = append(fb.keywords, fold.String(kw))
		}
		buckets = append(buckets, fb)
	}

	recency := append([]RecencyStep(nil), w.Recency...)
	sort.SliceStable(recency, func(i, j int) bool { return recency[i].Below < recency[j].Below })

	minDigits := w.NumericMinDigits
	if minDigits <= 0 {
		minDigits = 3
	}

	return &Engine{
		weights: w,
		buckets: buckets,
		recency: recency,
		digits:  regexp.MustCompile(`[0-9]{` + strconv.Itoa(minDigits) + `,}`),
	}
}

// Heat scores item as of now.
func (e *Engine) Heat(item domain.NewsItem, now time.Time) float64 {
	return e.Breakdown(item, now).Total()
}

// Breakdown returns each heat component separately.
func (e *Engine) Breakdown(item domain.NewsItem, now time.Time) Breakdown {
	return Breakdown{
		Source:  e.sourceWeight(item.SourceID),
		Title:   e.titleSignal(item.Title),
		Recency: e.recencyWeight(now.Sub(item.PublishedAt)),
		Numeric: e.numericBonus(item.Title),
	}
}

func (e *Engine) sourceWeight(sourceID string) float64 {
	if w, ok := e.weights.Sources[sourceID]; ok {
		return w
	}
	return e.weights.DefaultSource
}

func (e *Engine) titleSignal(title string) float64 {
	// Casers carry state, so each call gets its own.
	folded := cases.Fold().String(title)
	total := 0.0
	for _, b := range e.buckets {
		for _, kw := range b.keywords {
			if strings.Contains(folded, kw) {
				total += b.weight
				break
			}
		}
	}
	return total
}

func (e *Engine) recencyWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	for _, step := range e.recency {
		if age < step.Below {
			return step.Weight
		}
	}
	return e.weights.Stale
}

func (e *Engine) numericBonus(title string) float64 {
	if e.digits.MatchString(title) {
		return e.weights.NumericBonus
	}
	return 0
}

// DefaultWeights mirrors the editorial priorities of the bundled source list.
func DefaultWeights() Weights {
	return Weights{
		Sources: map[string]float64{
			"Reuters":      3,
			"AP NEWS":      3,
			"WSJ":          2.5,
			"Economist":    2.5,
			"WaPo":         2,
			"Politico":     2,
			"The Atlantic": 1.5,
			"SCMP":         1.5,
			"NYP":          1,
		},
		DefaultSource: 1,
		Buckets: []Bucket{
			{Name: "breaking", Weight: 3, Keywords: []string{"breaking", "urgent", "just in"}},
			{Name: "conflict", Weight: 2, Keywords: []string{"war", "missile", "attack", "ceasefire", "killed", "explosion"}},
			{Name: "disaster", Weight: 2, Keywords: []string{"earthquake", "flood", "hurricane", "wildfire", "tsunami"}},
			{Name: "markets", Weight: 1.5, Keywords: []string{"interest rate", "inflation", "recession", "tariff", "bankruptcy"}},
			{Name: "politics", Weight: 1, Keywords: []string{"election", "supreme court", "white house", "sanction"}},
		},
		Recency: []RecencyStep{
			{Below: 3 * time.Hour, Weight: 3},
			{Below: 12 * time.Hour, Weight: 2},
			{Below: 24 * time.Hour, Weight: 1},
		},
		Stale:            0,
		NumericBonus:     1,
		NumericMinDigits: 3,
	}
}
