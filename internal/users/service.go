package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// DefaultMaxImageBytes bounds profile image uploads.
const DefaultMaxImageBytes int64 = 2 << 20

// ErrSelfDelete rejects removing the acting account.
var ErrSelfDelete = errors.New("users: cannot delete own account")

// allowedImageTypes maps accepted extensions to their content type.
var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListByRole(ctx context.Context, role roles.Role) ([]User, error)
	ListAuthorsWithCounts(ctx context.Context) ([]AuthorSummary, error)
	CountByRole(ctx context.Context) (map[roles.Role]int, error)
	Get(ctx context.Context, id int64) (*User, error)
	PasswordHash(ctx context.Context, id int64) (string, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Create(ctx context.Context, u User, passwordHash string) (*User, error)
	Update(ctx context.Context, u User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Deactivate(ctx context.Context, id int64) (int64, error)
}

// WelcomeNotifier is told about new accounts.
type WelcomeNotifier interface {
	NotifyWelcome(ctx context.Context, u User) error
}

// ImageStore holds uploaded profile images.
type ImageStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Options tunes a Service.
type Options struct {
	Notifier      WelcomeNotifier
	Images        ImageStore
	MaxImageBytes int64
	HashCost      int
	Logger        *slog.Logger
}

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	notifier  WelcomeNotifier
	images    ImageStore
	maxImage  int64
	hashCost  int
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts Options) *Service {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		notifier:  opts.Notifier,
		images:    opts.Images,
		maxImage:  opts.MaxImageBytes,
		hashCost:  opts.HashCost,
		logger:    opts.Logger,
		validator: NewValidator(),
	}
}

// MaxImageBytes returns the upload size limit.
func (s *Service) MaxImageBytes() int64 { return s.maxImage }

// List returns the active accounts holding role. The actor must outrank it.
func (s *Service) List(ctx context.Context, actor shared.Identity, role roles.Role) ([]User, error) {
	if !roles.Outranks(actor.Role, role) {
		return nil, shared.ErrAccessDenied
	}
	return s.repo.ListByRole(ctx, role)
}

// ListAuthors returns authors with article counts.
func (s *Service) ListAuthors(ctx context.Context, actor shared.Identity) ([]AuthorSummary, error) {
	if !roles.Outranks(actor.Role, roles.RoleAuthor) {
		return nil, shared.ErrAccessDenied
	}
	return s.repo.ListAuthorsWithCounts(ctx)
}

// CountByRole returns active account totals per role.
func (s *Service) CountByRole(ctx context.Context) (map[roles.Role]int, error) {
	return s.repo.CountByRole(ctx)
}

// Get returns a managed account. The actor must outrank its role.
func (s *Service) Get(ctx context.Context, actor shared.Identity, id int64) (*User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !roles.Outranks(actor.Role, u.Role) {
		return nil, shared.ErrAccessDenied
	}
	return u, nil
}

// Create registers a new account of in.Role on behalf of actor.
func (s *Service) Create(ctx context.Context, actor shared.Identity, in CreateInput) (*User, error) {
	if !in.Role.Valid() || !roles.Outranks(actor.Role, in.Role) {
		return nil, shared.ErrAccessDenied
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)

	fields := shared.FieldErrors{}
	if err := validationErrors(s.validator.Struct(in)); err != nil {
		if !errors.As(err, &fields) {
			return nil, err
		}
	}
	if _, bad := fields["Username"]; !bad && in.Username != "" {
		taken, err := s.repo.UsernameTaken(ctx, in.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			fields.Add("Username", "Username already exists.")
		}
	}
	if _, bad := fields["Email"]; !bad && in.Email != "" {
		taken, err := s.repo.EmailTaken(ctx, in.Email, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			fields.Add("Email", "Email already exists.")
		}
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	created, err := s.repo.Create(ctx, User{
		FullName: in.FullName,
		Email:    in.Email,
		Phone:    in.Phone,
		Username: in.Username,
		Role:     in.Role,
		Address:  in.Address,
		IsActive: true,
	}, string(hash))
	if err != nil {
		return nil, err
	}
	s.logger.Info("account created",
		slog.Int64("actor_id", actor.UserID),
		slog.Int64("user_id", created.ID),
		slog.String("role", created.Role.String()),
	)
	if s.notifier != nil {
		if err := s.notifier.NotifyWelcome(ctx, *created); err != nil {
			s.logger.Warn("welcome notification", slog.Int64("user_id", created.ID), slog.Any("error", err))
		}
	}
	return created, nil
}

// Update edits a managed account. The actor must outrank its role.
func (s *Service) Update(ctx context.Context, actor shared.Identity, in UpdateInput) (*User, error) {
	current, err := s.Get(ctx, actor, in.ID)
	if err != nil {
		return nil, err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)

	fields := shared.FieldErrors{}
	if err := validationErrors(s.validator.Struct(in)); err != nil {
		if !errors.As(err, &fields) {
			return nil, err
		}
	}
	if err := s.checkEmail(ctx, fields, in.Email, in.ID); err != nil {
		return nil, err
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	current.FullName = in.FullName
	current.Email = in.Email
	current.Phone = in.Phone
	current.Address = in.Address
	if err := s.repo.Update(ctx, *current); err != nil {
		return nil, err
	}
	if in.Password != "" {
		if err := s.setPassword(ctx, in.ID, in.Password); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// Delete deactivates account id and removes its articles. Actors cannot
// delete themselves or accounts they do not outrank.
func (s *Service) Delete(ctx context.Context, actor shared.Identity, id int64) (*User, error) {
	return s.deactivate(ctx, actor, id, roles.RoleUnknown)
}

// DeleteAuthor is Delete limited to Author accounts. Any other target is
// reported as ErrNotFound.
func (s *Service) DeleteAuthor(ctx context.Context, actor shared.Identity, id int64) (*User, error) {
	return s.deactivate(ctx, actor, id, roles.RoleAuthor)
}

// deactivate removes account id. A valid only restricts the target's role.
func (s *Service) deactivate(ctx context.Context, actor shared.Identity, id int64, only roles.Role) (*User, error) {
	if id == actor.UserID {
		return nil, ErrSelfDelete
	}
	target, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if only.Valid() && target.Role != only {
		return nil, shared.ErrNotFound
	}
	removed, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account deactivated",
		slog.Int64("actor_id", actor.UserID),
		slog.Int64("user_id", id),
		slog.Int64("articles_removed", removed),
	)
	return target, nil
}

// Profile returns the acting user's own account.
func (s *Service) Profile(ctx context.Context, actor shared.Identity) (*User, error) {
	return s.repo.Get(ctx, actor.UserID)
}

// UpdateProfile applies the actor's edits to their own account and returns
// the saved record.
func (s *Service) UpdateProfile(ctx context.Context, actor shared.Identity, in ProfileInput) (*User, error) {
	current, err := s.repo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)

	fields := shared.FieldErrors{}
	if err := validationErrors(s.validator.Struct(in)); err != nil {
		if !errors.As(err, &fields) {
			return nil, err
		}
	}
	if err := s.checkEmail(ctx, fields, in.Email, current.ID); err != nil {
		return nil, err
	}

	changePassword := in.NewPassword != "" || in.CurrentPassword != "" || in.ConfirmPassword != ""
	if changePassword {
		switch {
		case in.CurrentPassword == "":
			fields.Add("CurrentPassword", "Current password is required to change your password.")
		case in.NewPassword == "":
			fields.Add("NewPassword", "New password is required.")
		case in.NewPassword != in.ConfirmPassword:
			fields.Add("ConfirmPassword", "New passwords do not match.")
		default:
			hash, err := s.repo.PasswordHash(ctx, current.ID)
			if err != nil {
				return nil, err
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.CurrentPassword)) != nil {
				fields.Add("CurrentPassword", "Current password is incorrect.")
			}
		}
	}

	var imageKey, imageType string
	if in.Image != nil {
		imageKey, imageType = s.checkImage(fields, in.Image)
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	previousImage := current.ProfileImage
	if imageKey != "" {
		if s.images == nil {
			return nil, errors.New("users: image storage not configured")
		}
		if err := s.images.Put(ctx, imageKey, io.LimitReader(in.Image.Body, s.maxImage), in.Image.Size, imageType); err != nil {
			return nil, err
		}
		current.ProfileImage = imageKey
	}

	current.FullName = in.FullName
	current.Email = in.Email
	current.Phone = in.Phone
	current.Address = in.Address
	if err := s.repo.Update(ctx, *current); err != nil {
		s.discardImage(ctx, imageKey)
		return nil, err
	}
	if changePassword {
		if err := s.setPassword(ctx, current.ID, in.NewPassword); err != nil {
			s.discardImage(ctx, imageKey)
			return nil, err
		}
	}
	if imageKey != "" && previousImage != "" && s.images != nil {
		if err := s.images.Delete(ctx, previousImage); err != nil {
			s.logger.Warn("delete previous profile image", slog.String("key", previousImage), slog.Any("error", err))
		}
	}
	return current, nil
}

// discardImage removes an upload whose profile save failed.
func (s *Service) discardImage(ctx context.Context, key string) {
	if key == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("discard profile image", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) checkEmail(ctx context.Context, fields shared.FieldErrors, email string, selfID int64) error {
	if _, bad := fields["Email"]; bad || email == "" {
		return nil
	}
	taken, err := s.repo.EmailTaken(ctx, email, selfID)
	if err != nil {
		return err
	}
	if taken {
		fields.Add("Email", "Email already exists.")
	}
	return nil
}

// checkImage validates an upload and returns the object key and content type.
func (s *Service) checkImage(fields shared.FieldErrors, img *ImageUpload) (string, string) {
	ext := strings.ToLower(path.Ext(img.Filename))
	contentType, ok := allowedImageTypes[ext]
	if !ok {
		fields.Add("Image", "Invalid file type. Only JPG, JPEG, PNG and GIF are allowed.")
		return "", ""
	}
	if img.Size <= 0 || img.Size > s.maxImage {
		fields.Add("Image", fmt.Sprintf("Profile image must be at most %d MB.", s.maxImage>>20))
		return "", ""
	}
	return "profiles/" + uuid.NewString() + ext, contentType
}

func (s *Service) setPassword(ctx context.Context, id int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}
