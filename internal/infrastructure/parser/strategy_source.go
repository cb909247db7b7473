package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"NewsRelay/internal/config"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/scanner"
)

// StrategySource implements ports.FeedSource via registered scanner strategies.
type StrategySource struct {
	registry    *scanner.Registry
	sources     []config.SourceConfig
	logger      *slog.Logger
	concurrency int
}

var _ ports.FeedSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:    reg,
		sources:     sources,
		logger:      log,
		concurrency: 4,
	}
}

// FetchAll scans every source, a few at a time. Results keep config order and
// a failing source only affects its own entry.
func (s *StrategySource) FetchAll(ctx context.Context) []ports.SourceResult {
	results := make([]ports.SourceResult, len(s.sources))
	if s.registry == nil {
		for i, src := range s.sources {
			results[i] = ports.SourceResult{SourceID: src.ID, Err: fmt.Errorf("scanner registry is not configured")}
		}
		return results
	}

	s.debug("fetch sources", "sources", len(s.sources))

	sem := make(chan struct{}, max(1, s.concurrency))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src config.SourceConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.scan(ctx, src)
		}(i, src)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r.Items)
	}
	s.debug("strategy source done", "total_items", total)
	return results
}

func (s *StrategySource) scan(ctx context.Context, src config.SourceConfig) ports.SourceResult {
	res := ports.SourceResult{SourceID: src.ID}

	strategy, err := s.registry.Resolve(src.Scanner)
	if err != nil {
		res.Err = fmt.Errorf("source %s: %w", src.ID, err)
		return res
	}

	items, err := strategy.Scan(ctx, scanner.Request{
		SourceID: src.ID,
		URL:      src.URL,
		Domain:   src.Domain,
		Options:  src.Options,
	})
	if err != nil {
		res.Err = fmt.Errorf("scan source %s: %w", src.ID, err)
		return res
	}

	for i := range items {
		if items[i].SourceID == "" {
			items[i].SourceID = src.ID
		}
	}
	s.debug("source produced items", "source", src.ID, "scanner", src.Scanner, "count", len(items))
	res.Items = items
	return res
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
