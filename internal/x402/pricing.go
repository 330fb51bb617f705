package x402

import (
	"fmt"

	"github.com/frahmantamala/keyword-research-api/internal"
)

// MeterHeader declares the unit count for routes with usage-dependent
// pricing. The route handler cross-checks it against the actual payload.
const MeterHeader = "x-keyword-count"

// RouteConfig is the pricing entry for one metered route. Either Price is
// set (flat) or UnitPrice+MaxUnits are (metered).
type RouteConfig struct {
	Price       Money
	UnitPrice   Money
	MaxUnits    int
	Metered     bool
	Description string
	MimeType    string
}

// PriceContext carries the caller-declared metering input. It is an explicit
// struct so price resolution never reads from a request object.
type PriceContext struct {
	DeclaredUnits int
}

// Resolver computes route prices. It is pure: the same route and context
// always yield the same amount, whether evaluated while building a challenge
// or while re-verifying a submitted payment.
type Resolver struct {
	routes map[string]RouteConfig
}

func NewResolver(cfg internal.PricingConfig) (*Resolver, error) {
	overview, err := ParsePrice(cfg.OverviewPrice)
	if err != nil {
		return nil, fmt.Errorf("overview_price: %w", err)
	}
	batchUnit, err := ParsePrice(cfg.BatchUnitPrice)
	if err != nil {
		return nil, fmt.Errorf("batch_unit_price: %w", err)
	}
	ideas, err := ParsePrice(cfg.IdeasPrice)
	if err != nil {
		return nil, fmt.Errorf("ideas_price: %w", err)
	}

	return &Resolver{
		routes: map[string]RouteConfig{
			"/api/v1/keywords/overview": {
				Price:       overview,
				Description: "Keyword overview (search volume, difficulty, CPC)",
				MimeType:    "application/json",
			},
			"/api/v1/keywords/overview/batch": {
				UnitPrice:   batchUnit,
				MaxUnits:    cfg.BatchMaxUnits,
				Metered:     true,
				Description: "Keyword overview batch (single payment for multiple keywords)",
				MimeType:    "application/json",
			},
			"/api/v1/keywords/ideas": {
				Price:       ideas,
				Description: "Keyword ideas and suggestions",
				MimeType:    "application/json",
			},
		},
	}, nil
}

// Route returns the pricing entry for a path, if the path is metered.
func (r *Resolver) Route(path string) (RouteConfig, bool) {
	rc, ok := r.routes[path]
	return rc, ok
}

// Resolve computes the price for a route. The declared unit count is clamped
// to [1, MaxUnits] before use, bounding worst-case exposure no matter what
// the caller declares.
func (r *Resolver) Resolve(path string, pc PriceContext) (Money, error) {
	rc, ok := r.routes[path]
	if !ok {
		return Money{}, fmt.Errorf("no pricing configured for route %s", path)
	}
	if !rc.Metered {
		return rc.Price, nil
	}
	return rc.UnitPrice.Times(clampUnits(pc.DeclaredUnits, rc.MaxUnits)), nil
}

func clampUnits(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}
