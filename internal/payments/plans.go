package payments

import (
	"errors"
	"time"
)

var ErrContactSales = errors.New("more than 100 units: contact us for pricing")

type Plan struct {
	Name       string        `json:"name"`
	PriceCents int64         `json:"price_cents"`
	Duration   time.Duration `json:"-"` // zero for lifetime plans
	MaxUnits   int           `json:"max_units"`
}

const subscriptionPeriod = 30 * 24 * time.Hour

var plans = map[string]Plan{
	"starter":      {Name: "starter", PriceCents: 2_000_00, Duration: subscriptionPeriod, MaxUnits: 10},
	"basic":        {Name: "basic", PriceCents: 2_500_00, Duration: subscriptionPeriod, MaxUnits: 20},
	"professional": {Name: "professional", PriceCents: 4_500_00, Duration: subscriptionPeriod, MaxUnits: 50},
	"enterprise":   {Name: "enterprise", PriceCents: 7_500_00, Duration: subscriptionPeriod, MaxUnits: 100},
	"onetime":      {Name: "onetime", PriceCents: 40_000_00},
}

// tiers is ordered by MaxUnits.
var tiers = []string{"starter", "basic", "professional", "enterprise"}

func LookupPlan(name string) (Plan, error) {
	p, ok := plans[name]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

// ExpiresAt is nil for lifetime plans.
func (p Plan) ExpiresAt(from time.Time) *time.Time {
	if p.Duration == 0 {
		return nil
	}
	t := from.Add(p.Duration)
	return &t
}

// PlanForUnits picks the cheapest monthly plan that covers totalUnits.
func PlanForUnits(totalUnits int) (Plan, error) {
	if totalUnits < 1 {
		return Plan{}, ErrInvalidAmount
	}
	for _, name := range tiers {
		if p := plans[name]; totalUnits <= p.MaxUnits {
			return p, nil
		}
	}
	return Plan{}, ErrContactSales
}

// Plans lists the monthly tiers in ascending size followed by the lifetime
// plan.
func Plans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, name := range tiers {
		out = append(out, plans[name])
	}
	return append(out, plans["onetime"])
}
