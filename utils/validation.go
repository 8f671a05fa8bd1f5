package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate

	// emailRegex accepts anything shaped like local@domain.tld
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	upperRegex   = regexp.MustCompile(`[A-Z]`)
	lowerRegex   = regexp.MustCompile(`[a-z]`)
	digitRegex   = regexp.MustCompile(`[0-9]`)
	specialRegex = regexp.MustCompile(`[!@#$%^&*]`)
)

// Messages shown for local credential checks
const (
	MsgInvalidEmail     = "Please enter a valid email address."
	MsgPasswordLength   = "Password must be at least 8 characters long."
	MsgPasswordUpper    = "Password must contain at least one uppercase letter."
	MsgPasswordLower    = "Password must contain at least one lowercase letter."
	MsgPasswordDigit    = "Password must contain at least one number."
	MsgPasswordSpecial  = "Password must contain at least one special character (!@#$%^&*)."
	MsgPasswordMismatch = "Passwords do not match"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 8

// passwordRules are checked in order; the first failure is reported
var passwordRules = []struct {
	ok      func(string) bool
	message string
}{
	{func(p string) bool { return len([]rune(p)) >= MinPasswordLength }, MsgPasswordLength},
	{upperRegex.MatchString, MsgPasswordUpper},
	{lowerRegex.MatchString, MsgPasswordLower},
	{digitRegex.MatchString, MsgPasswordDigit},
	{specialRegex.MatchString, MsgPasswordSpecial},
}

func init() {
	validate = validator.New()
	// report fields by their JSON names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		tag := err.Tag()

		switch tag {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "email":
			fields[field] = fmt.Sprintf("%s must be a valid email", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail validates the shape of an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return errors.New(MsgInvalidEmail)
	}
	return nil
}

// ValidatePassword applies the password rules in order and reports the
// first one violated
func ValidatePassword(password string) error {
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			return errors.New(rule.message)
		}
	}
	return nil
}

// ValidateRequired validates that a string is not blank
func ValidateRequired(value string, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidationDetails returns the field errors of err as a response details map
func ValidationDetails(err error) map[string]interface{} {
	fields := GetValidationFields(err)
	if len(fields) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return details
}
