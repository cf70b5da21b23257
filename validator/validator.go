package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Fields whose values are left out of validation errors
var sensitive = map[string]bool{"password": true}

var (
	zipCodePattern = regexp.MustCompile(`^(\d{5}-?\d{3}|\d{5}(-\d{4})?)$`)
	docIDPattern   = regexp.MustCompile(`^__.*__$`)
)

// Password bounds accepted by the identity service
const (
	minPasswordLen = 6
	maxPasswordLen = 128
)

// Validator wraps the go-playground validator
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// New creates a new validator instance
func New() *Validator {
	v := validator.New()

	// Register custom tag name function to use JSON tags
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validators
	v.RegisterValidation("docid", validateDocID)
	v.RegisterValidation("zipcode", validateZipCode)
	v.RegisterValidation("password", validatePassword)

	return &Validator{validate: v}
}

// Validate validates a struct and returns validation errors
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	// Convert validation errors to our custom format
	var validationErrs ValidationErrors
	for _, err := range fieldErrs {
		ve := ValidationError{
			Field:   err.Field(),
			Message: msgForTag(err),
			Tag:     err.Tag(),
		}
		// Never echo secrets back
		if !sensitive[err.Field()] {
			ve.Value = fmt.Sprintf("%v", err.Value())
		}
		validationErrs = append(validationErrs, ve)
	}

	return validationErrs
}

// msgForTag returns a human-readable error message for a validation tag
func msgForTag(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "docid":
		return fmt.Sprintf("%s must be a document id (no slashes, at most 1500 bytes)", field)
	case "zipcode":
		return fmt.Sprintf("%s must be a valid zip code (00000-000 or 00000-0000)", field)
	case "password":
		return fmt.Sprintf("%s must be between %d and %d characters", field, minPasswordLen, maxPasswordLen)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// Custom validators

// validateDocID accepts keys the document store can address directly
func validateDocID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || id == "." || id == ".." || len(id) > 1500 {
		return false
	}
	if strings.Contains(id, "/") {
		return false
	}
	return !docIDPattern.MatchString(id)
}

// validateZipCode accepts CEP (00000-000) and US ZIP (00000, 00000-0000) forms
func validateZipCode(fl validator.FieldLevel) bool {
	return zipCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validatePassword(fl validator.FieldLevel) bool {
	n := utf8.RuneCountInString(fl.Field().String())
	return n >= minPasswordLen && n <= maxPasswordLen
}
