// Package capability maps organization type and plan tier onto coarse
// feature toggles. The mapping is a pure lookup with no stored state, so a
// tenant's capabilities can always be recomputed from its type and plan.
package capability

import (
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
)

// Set is the coarse feature surface of a tenant. It is independent of role
// assignments; fine-grained permissions are resolved separately and gated
// operations must satisfy both.
type Set struct {
	FarmManagement bool     `json:"farm_management"`
	TradingAccess  bool     `json:"trading_access"`
	Logistics      bool     `json:"logistics"`
	Analytics      bool     `json:"analytics"`
	Modules        []string `json:"modules"`
	Features       []string `json:"features"`
}

// Lookup resolves capabilities for a tenant. Injected as a dependency so the
// table can be swapped in tests.
type Lookup func(orgType orgdomain.OrgType, plan orgdomain.PlanTier) Set

// For is the production capability table.
func For(orgType orgdomain.OrgType, plan orgdomain.PlanTier) Set {
	set := baseByType(orgType)

	switch plan {
	case orgdomain.PlanStandard:
		set.Analytics = true
		set.Features = append(set.Features, "analytics_basic")
	case orgdomain.PlanPremium:
		set.Analytics = true
		set.Features = append(set.Features, "analytics_basic", "analytics_advanced", "priority_support")
	}

	return set
}

func baseByType(orgType orgdomain.OrgType) Set {
	switch orgType {
	case orgdomain.TypeFarmOperation:
		return Set{
			FarmManagement: true,
			TradingAccess:  true,
			Modules:        []string{"farms", "commodities", "orders", "media"},
			Features:       []string{"farm_records", "harvest_planning"},
		}
	case orgdomain.TypeTradingCompany:
		return Set{
			TradingAccess: true,
			Modules:       []string{"commodities", "orders", "listings"},
			Features:      []string{"bulk_orders", "price_watch"},
		}
	case orgdomain.TypeCooperative:
		return Set{
			FarmManagement: true,
			TradingAccess:  true,
			Modules:        []string{"farms", "commodities", "orders", "members"},
			Features:       []string{"farm_records", "member_pooling"},
		}
	case orgdomain.TypeServiceProvider:
		return Set{
			Logistics: true,
			Modules:   []string{"orders", "logistics"},
			Features:  []string{"delivery_tracking"},
		}
	default:
		return Set{}
	}
}

// HasModule reports whether the module is enabled for the tenant.
func (s Set) HasModule(name string) bool {
	for _, m := range s.Modules {
		if m == name {
			return true
		}
	}
	return false
}

// HasFeature reports whether the feature is enabled for the tenant.
func (s Set) HasFeature(name string) bool {
	for _, f := range s.Features {
		if f == name {
			return true
		}
	}
	return false
}
