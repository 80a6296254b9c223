package domain

import "time"

// Role enumerates directory roles. A user may hold several.
type Role string

const (
	RoleAdmin         Role = "admin"
	RolePrincipal     Role = "principal"
	RoleVicePrincipal Role = "vice_principal"
	RoleFinance       Role = "finance"
	RoleSupport       Role = "support"
	RoleMaintenance   Role = "maintenance"
	RoleStaff         Role = "staff"
)

// adminLike roles see and administer every ticket.
var adminLike = map[Role]struct{}{
	RoleAdmin:         {},
	RolePrincipal:     {},
	RoleVicePrincipal: {},
	RoleFinance:       {},
}

// HasRole reports whether the role set contains r.
func HasRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsAdminLike reports whether any role grants administrative or
// finance-equivalent scope.
func IsAdminLike(roles []Role) bool {
	for _, r := range roles {
		if _, ok := adminLike[r]; ok {
			return true
		}
	}
	return false
}

// IsWorker reports whether the role set may work tickets: pick them up,
// record material needs and resolutions.
func IsWorker(roles []Role) bool {
	return HasRole(roles, RoleSupport) || HasRole(roles, RoleMaintenance) || IsAdminLike(roles)
}

// AdminLikeRoles returns the roles with unrestricted ticket scope; the
// notification audience for new/resolved/deleted events.
func AdminLikeRoles() []Role {
	return []Role{RoleAdmin, RolePrincipal, RoleVicePrincipal, RoleFinance}
}

// User is the directory record for an identity that can raise or work
// tickets.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Roles        []Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
