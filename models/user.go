package models

import (
	"strings"
	"time"
)

// Role is the access level attached to a user record.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleViewer    Role = "viewer"
)

// DefaultRole is assigned when a caller omits the role.
const DefaultRole = RoleUser

// Roles lists every accepted role in display order.
var Roles = []Role{RoleAdmin, RoleUser, RoleModerator, RoleViewer}

// ParseRole maps caller input onto a Role. Empty input yields DefaultRole.
// The second return value is false for values outside the enumerated set.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultRole, true
	}
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// User represents a user record held by the record store.
// It maps to the `users` table when the SQLite backend is used.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserUpdate carries the fields of a partial update. Nil fields keep their
// stored value.
type UserUpdate struct {
	Name  *string
	Email *string
	Role  *Role
}

// Apply copies the supplied fields onto dst.
func (u UserUpdate) Apply(dst *User) {
	if u.Name != nil {
		dst.Name = *u.Name
	}
	if u.Email != nil {
		dst.Email = *u.Email
	}
	if u.Role != nil {
		dst.Role = *u.Role
	}
}

// ListFilter selects a window of the insertion-ordered, search-filtered user list.
type ListFilter struct {
	Search string
	Offset int
	Limit  int
}

// Matches reports whether u passes the case-insensitive substring search
// over name, email and role. An empty search matches everything.
func (f ListFilter) Matches(u *User) bool {
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(u.Name), q) ||
		strings.Contains(strings.ToLower(u.Email), q) ||
		strings.Contains(strings.ToLower(string(u.Role)), q)
}

// SampleUsers returns the records loaded into a fresh store at startup.
func SampleUsers() []User {
	return []User{
		{Name: "John Doe", Email: "john@example.com", Role: RoleAdmin},
		{Name: "Jane Smith", Email: "jane@example.com", Role: RoleUser},
		{Name: "Bob Johnson", Email: "bob@example.com", Role: RoleModerator},
	}
}

// NormalizeEmail returns the key used for case-insensitive email comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
