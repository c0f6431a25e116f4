package facade

import "github.com/farmstand/realtime/manager"

// Built-in domain names. Hosts may register further domains with New.
const (
	DomainInventory = "inventory"
	DomainMarketing = "marketing"
)

// InventoryFilter scopes an inventory channel to one seller's listings.
type InventoryFilter struct {
	SellerID string `json:"sellerId"`
	Location string `json:"location,omitempty"`
}

// MarketingFilter scopes a marketing channel to one campaign audience.
type MarketingFilter struct {
	CampaignID string `json:"campaignId"`
	Segment    string `json:"segment,omitempty"`
}

// NewInventory builds the inventory-domain facade.
func NewInventory(mgr *manager.Manager, filter InventoryFilter) *Facade {
	return New(mgr, DomainInventory, filter)
}

// NewMarketing builds the marketing-domain facade.
func NewMarketing(mgr *manager.Manager, filter MarketingFilter) *Facade {
	return New(mgr, DomainMarketing, filter)
}
