package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. It never says why.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a request without a logged-in identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrSessionExpired indicates the idle timeout elapsed since the last activity.
	ErrSessionExpired = errors.New("session expired")
	// ErrAccessDenied indicates the identity's role does not grant the action.
	ErrAccessDenied = errors.New("access denied")
	// ErrValidation indicates rejected user input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness conflict in the store.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// FieldErrors collects validation messages keyed by form field.
// It matches ErrValidation under errors.Is.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes FieldErrors satisfy errors.Is(err, ErrValidation).
func (f FieldErrors) Is(target error) bool {
	return target == ErrValidation
}

// Add records msg for field unless one is already present.
func (f FieldErrors) Add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

// Err returns f as an error, or nil when empty.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

// UserSafeMessage maps an error to text that can be shown to end users.
func UserSafeMessage(err error) string {
	var fields FieldErrors
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fields):
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			msgs = append(msgs, fields[k])
		}
		return strings.Join(msgs, " ")
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrAccessDenied):
		return "Access denied. You do not have permission to access that resource."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrDuplicate):
		return "A record with the same details already exists."
	case errors.Is(err, ErrValidation):
		return "Please check the form and try again."
	default:
		return "An error occurred. Please try again."
	}
}
