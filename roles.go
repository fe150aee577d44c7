package authflow

// Role is the application role recorded on a profile.
type Role string

const (
	// RoleUser is a regular directory visitor
	RoleUser Role = "user"
	// RoleBusiness owns one or more listings
	RoleBusiness Role = "business"
	// RoleAdmin moderates the portal
	RoleAdmin Role = "admin"
)

// Landing paths per role, consumed by every protected-route guard.
const (
	RouteHome        = "/"
	RouteLogin       = "/auth/login"
	RouteRegister    = "/auth/register"
	RouteVerifyEmail = "/auth/verify-email"
	RouteProfile     = "/profile"
	RouteBusiness    = "/business"
	RouteAdmin       = "/admin"
)

// RoleLabels maps roles to display names.
var RoleLabels = map[Role]string{
	RoleUser:     "User",
	RoleBusiness: "Business Owner",
	RoleAdmin:    "Administrator",
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleBusiness, RoleAdmin:
		return true
	default:
		return false
	}
}

// Label returns the display name for the role, defaulting to the role value.
func (r Role) Label() string {
	if label, ok := RoleLabels[r]; ok {
		return label
	}
	return string(r)
}

// RedirectPath is the default landing path for the role. Total over every
// input: unknown or empty roles land on the profile page.
func (r Role) RedirectPath() string {
	switch r {
	case RoleAdmin:
		return RouteAdmin
	case RoleBusiness:
		return RouteBusiness
	default:
		return RouteProfile
	}
}

// RedirectPathForRole is the function form of Role.RedirectPath for callers
// holding a raw role string.
func RedirectPathForRole(role Role) string {
	return role.RedirectPath()
}

// GetAllRoles returns all predefined roles.
func GetAllRoles() []Role {
	return []Role{RoleUser, RoleBusiness, RoleAdmin}
}
