package domain

// Role is a staff role. Roles are ordered by privilege.
type Role string

// Staff roles.
const (
	RoleOfficer  Role = "officer"
	RoleManager  Role = "manager"
	RoleDirector Role = "director"
	RoleAdmin    Role = "admin"
)

// Rank returns the privilege level of the role, 0 for unknown roles.
func (r Role) Rank() int {
	switch r {
	case RoleOfficer:
		return 1
	case RoleManager:
		return 2
	case RoleDirector:
		return 3
	case RoleAdmin:
		return 4
	}

	return 0
}

// Actor is the staff member issuing a command.
type Actor struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Action is a privileged operation checked by the approval gateway.
type Action string

// Privileged actions.
const (
	ActionApproveLoan    Action = "approve_loan"
	ActionRejectLoan     Action = "reject_loan"
	ActionDisburseLoan   Action = "disburse_loan"
	ActionDefaultLoan    Action = "default_loan"
	ActionApproveSavings Action = "approve_savings"
	ActionPostInterest   Action = "post_interest"
	ActionCloseSavings   Action = "close_savings"
	ActionReverseEntry   Action = "reverse_entry"
	ActionVerifyLedger   Action = "verify_ledger"
)
