// Package settings holds the vault-wide configuration record written once
// by Init and read by every gated operation.
package settings

import "github.com/xraph/subvault/types"

// Settings is the single global configuration record.
type Settings struct {
	types.Entity
	// Token references the asset balances are denominated in.
	Token string `json:"token"`
	// Admin is the principal allowed to charge and to change MinTopup.
	Admin    string       `json:"admin"`
	MinTopup types.Amount `json:"min_topup"`
	// BillingService may run interval charges besides Admin. Empty disables it.
	BillingService string `json:"billing_service,omitempty"`
	// MeteringService may run usage charges besides Admin. Empty disables it.
	MeteringService string `json:"metering_service,omitempty"`
}

// Clone returns an independent copy of the record.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}

// Principals returns the configured non-empty principals, admin first.
func (s *Settings) Principals() []string {
	out := make([]string, 0, 3)
	for _, p := range []string{s.Admin, s.BillingService, s.MeteringService} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CanChargeInterval reports whether principal may run interval charges.
func (s *Settings) CanChargeInterval(principal string) bool {
	return principal == s.Admin || (s.BillingService != "" && principal == s.BillingService)
}

// CanChargeUsage reports whether principal may run usage charges.
func (s *Settings) CanChargeUsage(principal string) bool {
	return principal == s.Admin || (s.MeteringService != "" && principal == s.MeteringService)
}
