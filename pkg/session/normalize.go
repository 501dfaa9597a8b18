package session

import (
	"github.com/squidstack/squidflags/pkg/auth"
	"github.com/squidstack/squidflags/pkg/model"
)

// normalize builds the persisted profile from the service's answer.
// isAdmin follows the roles when the service reported them and the caller's
// hint otherwise.
func normalize(p *auth.Profile, creds Credentials) model.UserProfile {
	if p == nil {
		return model.UserProfile{Username: creds.Username, Roles: []string{}, IsAdmin: creds.IsAdmin}
	}

	u := model.UserProfile{
		ID:       firstNonEmpty(p.ID, p.UserID),
		Username: firstNonEmpty(p.Username, creds.Username),
		Email:    p.Email,
		Roles:    []string{},
		Country:  p.Country,
		Address:  p.Address,
		Phone:    p.Phone,
	}
	u.Name = firstNonEmpty(p.FullName, p.Name, u.Username, "user")
	if p.HasRoles {
		u.Roles = append(u.Roles, p.Roles...)
		u.IsAdmin = u.HasRole("admin")
	} else {
		u.IsAdmin = creds.IsAdmin
	}
	return u
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
