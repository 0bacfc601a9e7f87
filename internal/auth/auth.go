package auth

import (
	"context"
	"errors"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("role not allowed")
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSecretary Role = "secretary"
	RoleViewer    Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSecretary, RoleViewer:
		return true
	}
	return false
}

// CanDispatch reports whether the role may send or schedule messages.
func (r Role) CanDispatch() bool {
	return r == RoleAdmin || r == RoleSecretary
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Authenticator turns a bearer token into the signed-in user.
type Authenticator interface {
	CurrentUser(ctx context.Context, token string) (*User, error)
}

// roleOf picks the strongest known role, viewer when none is recognised.
func roleOf(roles []string) Role {
	best := RoleViewer
	for _, r := range roles {
		switch Role(r) {
		case RoleAdmin:
			return RoleAdmin
		case RoleSecretary:
			best = RoleSecretary
		}
	}
	return best
}
