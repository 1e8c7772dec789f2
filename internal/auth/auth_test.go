package auth

import (
	"testing"

	"quantlab/internal/domain"
)

func TestCanRunBacktest(t *testing.T) {
	checker := NewRoleChecker()

	cases := []struct {
		role domain.Role
		want bool
	}{
		{domain.RoleResearcher, true},
		{domain.RolePortfolioManager, true},
		{domain.RoleAdmin, true},
		{domain.RoleClient, false},
		{domain.Role(""), false},
		{domain.Role("superuser"), false},
	}
	for _, tc := range cases {
		if got := checker.CanRunBacktest(tc.role); got != tc.want {
			t.Errorf("CanRunBacktest(%q) = %v, want %v", tc.role, got, tc.want)
		}
	}
}
