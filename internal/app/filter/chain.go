package filter

import (
	"context"
	"maps"
	"slices"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig creates a chain of the enabled registered filters, ordered by name.
// A filter whose settings fail validation is logged and left out.
func NewChainFromConfig(cfg *config.Config) *Chain {
	c := NewChain()
	for _, name := range slices.Sorted(maps.Keys(registry)) {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.Filters[name].Settings); err != nil {
			zlog.Error().Msgf("failed to validate %s config: %v", name, err)
			continue
		}
		c.Add(f)
		zlog.Info().Msgf("registered filter: name=%s codes=%v", name, f.ReturnCodes())
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
func (c *Chain) Execute(ctx context.Context, req Request) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, req)
		if !result.Accepted {
			zlog.Debug().Msgf("filter rejected request: filter=%s code=%s title=%s", f.Name(), result.Code, req.Track.Title)
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
