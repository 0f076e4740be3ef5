package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/concierge-agent/backend/internal/storage/sqlite"
)

var pricingKeywords = []string{"price", "pricing", "cost", "how much", "plan", "rate", "fee", "budget"}

// GetPricing grounds the draft with the current plan catalog so quoted
// amounts can be checked verbatim by the reflection engine.
type GetPricing struct {
	db *sqlite.Client
}

func NewGetPricing(db *sqlite.Client) *GetPricing {
	return &GetPricing{db: db}
}

func (t *GetPricing) Name() string {
	return NameGetPricing
}

func (t *GetPricing) Applicable(req Request) bool {
	return req.PageContext == "pricing" || containsAny(req.Query, pricingKeywords)
}

func (t *GetPricing) Invoke(ctx context.Context, _ Request) (string, error) {
	plans, err := t.db.GetPricingPlans(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to load pricing plans: %w", err)
	}

	if len(plans) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Current pricing plans:\n")
	for _, plan := range plans {
		fmt.Fprintf(&sb, "- %s: %s", plan.Name, plan.PriceUSD)
		if plan.BillingUnit != "" {
			fmt.Fprintf(&sb, " per %s", plan.BillingUnit)
		}
		if plan.Description != "" {
			fmt.Fprintf(&sb, " (%s)", plan.Description)
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
