package model

// UserProfile is the cached identity of the logged-in user.
type UserProfile struct {
	ID       string   `json:"id,omitempty"`
	Username string   `json:"username"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
	Country  string   `json:"country,omitempty"`
	Address  string   `json:"address,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	IsAdmin  bool     `json:"isAdmin"`
}

// HasRole reports whether the profile carries role.
func (u UserProfile) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is the persisted proof of authentication plus the cached profile.
type Session struct {
	Token string       `json:"token,omitempty"`
	User  *UserProfile `json:"user,omitempty"`
}

func (s Session) Active() bool { return s.Token != "" || s.User != nil }

// DecodedToken holds the unverified claims of a bearer token.
type DecodedToken struct {
	Raw    string
	Claims map[string]any
}
