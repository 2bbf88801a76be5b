package metadata

import "strings"

// Accountability is the resolved identity of the caller, set by the auth
// middleware.
type Accountability struct {
	User     string   `json:"user,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Policies []string `json:"policies,omitempty"`
	Admin    bool     `json:"admin,omitempty"`
	App      bool     `json:"app,omitempty"`
}

// HasPolicy checks whether the caller holds a policy (case-insensitive).
func (a *Accountability) HasPolicy(policy string) bool {
	if a == nil {
		return false
	}
	for _, p := range a.Policies {
		if strings.EqualFold(p, policy) {
			return true
		}
	}
	return false
}

// HasRole checks whether the caller has a specific role.
func (a *Accountability) HasRole(role string) bool {
	if a == nil {
		return false
	}
	if strings.EqualFold(a.Role, role) {
		return true
	}
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the caller bypasses permission checks.
func (a *Accountability) IsAdmin() bool {
	return a != nil && (a.Admin || a.HasRole("admin"))
}
