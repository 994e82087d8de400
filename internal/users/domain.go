package users

import (
	"io"
	"strings"
	"time"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// User represents a user account for management.
type User struct {
	ID           int64
	FullName     string
	Email        string
	Phone        string
	Username     string
	Role         roles.Role
	AccessTime   *time.Time
	ProfileImage string
	Address      string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the session snapshot for u.
func (u User) Identity() shared.Identity {
	return shared.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.FullName,
		Role:        u.Role,
		Email:       u.Email,
	}
}

// AvatarURL returns the path serving the profile image, or "" when unset.
func (u User) AvatarURL() string {
	if u.ProfileImage == "" {
		return ""
	}
	return "/avatars/" + strings.TrimPrefix(u.ProfileImage, avatarPrefix)
}

// AuthorSummary is an author row with article counts.
type AuthorSummary struct {
	User
	ArticleCount   int
	PublishedCount int
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	FullName string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=100"`
	Phone    string `validate:"omitempty,phone"`
	Username string `validate:"required,username"`
	Password string `validate:"required,password"`
	Role     roles.Role
	Address  string `validate:"max=500"`
}

// UpdateInput carries managed account changes. An empty Password keeps
// the current one.
type UpdateInput struct {
	ID       int64
	FullName string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=100"`
	Phone    string `validate:"omitempty,phone"`
	Address  string `validate:"max=500"`
	Password string `validate:"omitempty,password"`
}

// ProfileInput carries a user's edits to their own account.
type ProfileInput struct {
	FullName        string `validate:"required,max=100"`
	Email           string `validate:"required,email,max=100"`
	Phone           string `validate:"omitempty,phone"`
	Address         string `validate:"max=500"`
	CurrentPassword string
	NewPassword     string `validate:"omitempty,password"`
	ConfirmPassword string
	Image           *ImageUpload `validate:"-"`
}

// ImageUpload is a profile picture received from a multipart form.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
