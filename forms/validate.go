package forms

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Display messages for client-side validation failures.
const (
	MsgPasswordsDoNotMatch      = "Passwords do not match"
	MsgWeakPassword             = "Password must be at least 8 characters and include uppercase, lowercase, number and special character"
	MsgResetTokenMissing        = "Reset token is missing. Please use the link from your email."
	MsgVerificationTokenMissing = "Verification token is missing. Please use the link from your email."
	MsgInvalidMfaCode           = "Please enter the 6-digit code"
	MsgInvalidEmail             = "Please enter a valid email address"
	MsgInvalidURL               = "Please enter a valid URL"
)

// PasswordSpecialChars are the special characters a strong password may use.
const PasswordSpecialChars = "@$!%*?&"

const minPasswordLength = 8

var mfaCodePattern = regexp.MustCompile(`^\d{6}$`)

// ValidationError is a client-side validation failure. It is returned before
// any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var labels = map[string]string{
	"email":           "Email",
	"password":        "Password",
	"confirmPassword": "Confirm password",
	"currentPassword": "Current password",
	"newPassword":     "New password",
	"firstName":       "First name",
	"lastName":        "Last name",
	"code":            "Code",
	"token":           "Token",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("mfacode", func(fl validator.FieldLevel) bool {
		return IsMfaCode(fl.Field().String())
	})
	return v
}

// IsStrongPassword reports whether pw has at least eight characters drawn
// from letters, digits and PasswordSpecialChars, with at least one
// lowercase letter, uppercase letter, digit and special character.
func IsStrongPassword(pw string) bool {
	if len(pw) < minPasswordLength {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// IsMfaCode reports whether code is exactly six digits.
func IsMfaCode(code string) bool {
	return mfaCodePattern.MatchString(code)
}

// Validate checks a form struct and returns the first failure as a
// *ValidationError. A mismatched confirmation is reported before any
// other failure.
func Validate(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	first := errs[0]
	for _, fe := range errs {
		if fe.Tag() == "eqfield" {
			first = fe
			break
		}
	}
	return &ValidationError{Field: first.Field(), Message: message(first)}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		label, ok := labels[fe.Field()]
		if !ok {
			label = fe.Field()
		}
		return label + " is required"
	case "email":
		return MsgInvalidEmail
	case "strongpassword":
		return MsgWeakPassword
	case "eqfield":
		return MsgPasswordsDoNotMatch
	case "mfacode":
		return MsgInvalidMfaCode
	case "url":
		return MsgInvalidURL
	default:
		return fe.Error()
	}
}
