package auth

import (
	"time"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// User represents an account as seen by the login flow.
type User struct {
	ID           int64
	Username     string
	FullName     string
	Email        string
	PasswordHash string
	Role         roles.Role
	IsActive     bool
	LastAccessAt *time.Time
}

// Identity returns the session snapshot for u.
func (u *User) Identity() shared.Identity {
	return shared.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.FullName,
		Role:        u.Role,
		Email:       u.Email,
	}
}
