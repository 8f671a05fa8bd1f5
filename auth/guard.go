package auth

import "github.com/digitechhorizons/portal/models"

// LoginPath is where visitors without a session are sent
const LoginPath = "/login"

// Decision is the outcome of a route guard check
type Decision struct {
	Allow      bool   `json:"allow"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// LandingPath returns the dashboard of a role
func LandingPath(role models.Role) string {
	if role == models.RoleAdmin {
		return "/dashboard"
	}
	return "/user-dashboard"
}

// Decide is the route guard. Without a session the visitor goes to the
// login page; with a required role other than the visitor's, to the
// visitor's own dashboard. An empty required role only asks for a
// session.
func Decide(session *models.Session, role models.Role, required models.Role) Decision {
	if session == nil {
		return Decision{RedirectTo: LoginPath}
	}
	if required != "" && role != required {
		return Decision{RedirectTo: LandingPath(role)}
	}
	return Decision{Allow: true}
}

// RequiredRole returns the role a guarded path needs. ok is false for
// paths the guard does not cover.
func RequiredRole(path string) (role models.Role, ok bool) {
	switch path {
	case "/dashboard":
		return models.RoleAdmin, true
	case "/user-dashboard":
		return models.RoleUser, true
	}
	return "", false
}
