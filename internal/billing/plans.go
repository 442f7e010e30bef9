package billing

import "strings"

// Plan display names keyed by checkout product.
const (
	PlanNameMonthly = "Pro Monthly"
	PlanNameOnetime = "Lifetime Access"
)

// PlanCatalog maps processor product ids to plan display names. Product ids
// come from deployment config, so the catalog is built at startup rather
// than hardcoded.
type PlanCatalog struct {
	byProductID map[string]string
}

// NewPlanCatalog builds the catalog from the configured product ids. Empty
// ids are skipped so a partially configured deployment degrades to
// unrecognized products instead of mapping "" to a plan.
func NewPlanCatalog(monthlyProductID, onetimeProductID string) PlanCatalog {
	byProductID := make(map[string]string, 2)
	if id := strings.TrimSpace(monthlyProductID); id != "" {
		byProductID[id] = PlanNameMonthly
	}
	if id := strings.TrimSpace(onetimeProductID); id != "" {
		byProductID[id] = PlanNameOnetime
	}
	return PlanCatalog{byProductID: byProductID}
}

// Resolve returns the plan name for a product id, or nil when the product is
// unrecognized or absent.
func (c PlanCatalog) Resolve(externalProductID *string) *string {
	if externalProductID == nil {
		return nil
	}
	name, ok := c.byProductID[strings.TrimSpace(*externalProductID)]
	if !ok {
		return nil
	}
	return &name
}
