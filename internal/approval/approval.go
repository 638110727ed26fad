// Package approval decides which staff roles may perform privileged actions.
package approval

import (
	"fmt"

	"github.com/go-petr/pet-lender/internal/domain"
)

// DefaultMinimumRoles is the least privileged role allowed to perform each action.
func DefaultMinimumRoles() map[domain.Action]domain.Role {
	return map[domain.Action]domain.Role{
		domain.ActionApproveLoan:    domain.RoleManager,
		domain.ActionRejectLoan:     domain.RoleManager,
		domain.ActionDisburseLoan:   domain.RoleManager,
		domain.ActionDefaultLoan:    domain.RoleDirector,
		domain.ActionApproveSavings: domain.RoleManager,
		domain.ActionPostInterest:   domain.RoleManager,
		domain.ActionCloseSavings:   domain.RoleManager,
		domain.ActionReverseEntry:   domain.RoleDirector,
		domain.ActionVerifyLedger:   domain.RoleAdmin,
	}
}

// Policy authorizes actions by role rank.
type Policy struct {
	minimum map[domain.Action]domain.Role
}

// New returns a Policy using the default table with overrides applied on top.
func New(overrides map[domain.Action]domain.Role) *Policy {
	minimum := DefaultMinimumRoles()
	for action, role := range overrides {
		minimum[action] = role
	}

	return &Policy{minimum: minimum}
}

// Authorize returns an error wrapping domain.ErrUnauthorized unless actor may perform action.
// Actions missing from the table are denied.
func (p *Policy) Authorize(actor domain.Actor, action domain.Action) error {
	required, ok := p.minimum[action]
	if !ok {
		return fmt.Errorf("%w: %s is not a known action", domain.ErrUnauthorized, action)
	}

	if actor.Role.Rank() < required.Rank() {
		return fmt.Errorf("%w: %s requires %s, %s is %s",
			domain.ErrUnauthorized, action, required, actor.Username, actor.Role)
	}

	return nil
}
