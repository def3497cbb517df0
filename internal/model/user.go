// Package model defines domain entities for the application.
package model

import "time"

// User is an account that signs in with email and password.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Team is the tenant boundary. Projects, keys and jobs belong to a team.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Role is a member's permission level within a team.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// Scopes maps a member role onto the API key scope vocabulary so that
// session and key principals are authorized by the same checks.
func (r Role) Scopes() []string {
	switch {
	case r.AtLeast(RoleAdmin):
		return []string{ScopeAdmin}
	case r.AtLeast(RoleEditor):
		return []string{ScopeRead, ScopeWrite}
	case r == RoleViewer:
		return []string{ScopeRead}
	default:
		return nil
	}
}

// TeamMember links a user to a team with a role.
type TeamMember struct {
	TeamID    string    `json:"teamId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Membership is a team as seen by one of its members.
type Membership struct {
	TeamID   string    `json:"id"`
	TeamName string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"-"`
}
