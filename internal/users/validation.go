package users

import (
	"errors"
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/inkwell-cms/inkwell/internal/shared"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9\-() ]{10,}$`)
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// StrongPassword reports whether p has at least MinPasswordLength
// characters including a letter and a digit.
func StrongPassword(p string) bool {
	if len([]rune(p)) < MinPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range p {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// NewValidator returns a validator with the account rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	return v
}

var fieldLabels = map[string]string{
	"FullName":    "Full name",
	"Email":       "Email",
	"Phone":       "Phone number",
	"Username":    "Username",
	"Password":    "Password",
	"NewPassword": "New password",
	"Address":     "Address",
}

// validationErrors converts validator output to shared.FieldErrors.
func validationErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := shared.FieldErrors{}
	for _, fe := range verrs {
		label := fieldLabels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		var msg string
		switch fe.Tag() {
		case "required":
			msg = label + " is required."
		case "email":
			msg = "Please enter a valid email address."
		case "username":
			msg = "Username must be 3-50 characters and use only letters, numbers, dot, dash or underscore."
		case "password":
			msg = label + " must be at least 6 characters and contain a letter and a number."
		case "phone":
			msg = "Please enter a valid phone number."
		case "max":
			msg = label + " is too long."
		default:
			msg = label + " is invalid."
		}
		fields.Add(fe.Field(), msg)
	}
	return fields.Err()
}
