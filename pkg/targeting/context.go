// Package targeting exposes user attributes to the remote flag backend.
//
// Every attribute is a getter that reads the current session when called, so a
// Context installed once keeps reflecting logins and logouts.
package targeting

import (
	"sort"
	"strings"

	"github.com/squidstack/squidflags/pkg/model"
)

const (
	Email       = "email"
	UserID      = "userId"
	Username    = "username"
	FullName    = "fullName"
	Country     = "country"
	Roles       = "roles"
	EmailDomain = "emailDomain"
	IsAdmin     = "isAdmin"
)

// UserSource yields the profile of the current session, if any.
type UserSource interface {
	User() (model.UserProfile, bool)
}

type (
	StringGetter func() string
	BoolGetter   func() bool
)

type Context struct {
	strings map[string]StringGetter
	bools   map[string]BoolGetter
}

// Empty returns a context without attributes.
func Empty() *Context {
	return &Context{
		strings: map[string]StringGetter{},
		bools:   map[string]BoolGetter{},
	}
}

// New returns a context with the standard user attributes read from users.
// With no current user every string attribute is "" and isAdmin is false.
func New(users UserSource) *Context {
	c := Empty()
	user := func() model.UserProfile {
		if users == nil {
			return model.UserProfile{}
		}
		u, _ := users.User()
		return u
	}

	c.SetString(Email, func() string { return user().Email })
	c.SetString(UserID, func() string { return user().ID })
	c.SetString(Username, func() string { return user().Username })
	c.SetString(FullName, func() string { return user().Name })
	c.SetString(Country, func() string { return user().Country })
	c.SetString(Roles, func() string { return strings.Join(user().Roles, ",") })
	c.SetString(EmailDomain, func() string { return emailDomain(user().Email) })
	c.SetBool(IsAdmin, func() bool { return user().HasRole("admin") })
	return c
}

func emailDomain(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(e, "@")
	if at <= 0 {
		return ""
	}
	return e[at+1:]
}

func (c *Context) SetString(name string, g StringGetter) { c.strings[name] = g }
func (c *Context) SetBool(name string, g BoolGetter)     { c.bools[name] = g }

// String evaluates the named string attribute; unknown names yield "".
func (c *Context) String(name string) string {
	if g, ok := c.strings[name]; ok {
		return g()
	}
	return ""
}

// Bool evaluates the named boolean attribute; unknown names yield false.
func (c *Context) Bool(name string) bool {
	if g, ok := c.bools[name]; ok {
		return g()
	}
	return false
}

// Names lists the attribute names in sorted order.
func (c *Context) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.strings)+len(c.bools))
	for n := range c.strings {
		names = append(names, n)
	}
	for n := range c.bools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Attributes evaluates every getter now. A nil Context has no attributes.
func (c *Context) Attributes() map[string]any {
	out := map[string]any{}
	if c == nil {
		return out
	}
	for n, g := range c.strings {
		out[n] = g()
	}
	for n, g := range c.bools {
		out[n] = g()
	}
	return out
}
