package ports

import (
	"context"
	"time"

	"NewsRelay/internal/domain"
)

// SourceResult is the outcome of fetching a single configured source.
type SourceResult struct {
	SourceID string
	Items    []domain.RawItem
	Err      error
}

// FeedSource pulls candidate items from every configured media source.
// A failing source is reported in its SourceResult, never as a call error.
type FeedSource interface {
	FetchAll(ctx context.Context) []SourceResult
}

// Transport delivers messages to the chat endpoint. Both calls are single-attempt.
type Transport interface {
	SendPhoto(ctx context.Context, target, imageURL, captionHTML string) error
	SendMessage(ctx context.Context, target, textHTML string) error
}

// Summarizer produces digest prose for a ranked batch of items.
type Summarizer interface {
	Summarize(ctx context.Context, items []domain.NewsItem) (string, error)
}

// ImageResolver extracts a representative image from an article page.
type ImageResolver interface {
	ArticleImage(ctx context.Context, articleURL string) (string, error)
}

// StateStore persists RunState with compare-and-swap on RunState.Version.
type StateStore interface {
	Load(ctx context.Context) (domain.RunState, error)
	Save(ctx context.Context, state domain.RunState) error
	Close() error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// CycleObserver receives the outcome of every dispatch cycle.
type CycleObserver interface {
	ObserveCycle(report domain.CycleReport, err error)
}
