package scraper

import (
	"context"
	"fmt"
	"sort"

	"EcoCart/internal/domain"
)

// Strategy is one way of turning a product URL into listing data (remote relay, direct HTML, ...).
type Strategy interface {
	Name() string
	Scrape(ctx context.Context, url string) (domain.ScrapedProduct, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error listing the known ones.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("scrape strategy %q is not registered (known: %v)", name, r.Names())
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Named gives an existing scraper a registry name.
func Named(name string, scrape func(ctx context.Context, url string) (domain.ScrapedProduct, error)) Strategy {
	return namedStrategy{name: name, scrape: scrape}
}

type namedStrategy struct {
	name   string
	scrape func(ctx context.Context, url string) (domain.ScrapedProduct, error)
}

func (n namedStrategy) Name() string { return n.name }

func (n namedStrategy) Scrape(ctx context.Context, url string) (domain.ScrapedProduct, error) {
	return n.scrape(ctx, url)
}
