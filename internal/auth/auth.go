// Package auth maps user roles to platform capabilities.
package auth

import "quantlab/internal/domain"

// RoleChecker grants capabilities from a static role table. Research staff
// and admins may run backtests; client accounts are read-only.
type RoleChecker struct{}

// NewRoleChecker creates the default role table.
func NewRoleChecker() *RoleChecker { return &RoleChecker{} }

// CanRunBacktest reports whether the role may submit, cancel, or delete
// backtest runs.
func (RoleChecker) CanRunBacktest(role domain.Role) bool {
	switch role {
	case domain.RoleResearcher, domain.RolePortfolioManager, domain.RoleAdmin:
		return true
	default:
		return false
	}
}
