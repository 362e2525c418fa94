package models

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleDriver   Role = "driver"
	RoleGuardian Role = "guardian"
	RoleRider    Role = "rider"
)

// Identity is the caller as asserted by a verified bearer token. Accounts
// themselves live in the external auth service.
type Identity struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
	SiteID    string `json:"site_id,omitempty"`
}

func (i Identity) Is(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
