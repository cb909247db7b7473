package scanner

import (
	"context"
	"fmt"

	"NewsRelay/internal/domain"
)

// Request carries everything a strategy needs to read one configured source.
type Request struct {
	SourceID string
	URL      string
	Domain   string
	Options  map[string]string
}

// Scanner captures a single strategy implementation (RSS, Google News search, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.RawItem, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies; config validation uses it.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		out = append(out, name)
	}
	return out
}
