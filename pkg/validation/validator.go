package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// emailRegex accepts one @, a non-empty local part and a dotted domain.
// Deliverability is not this package's concern.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Rule names reported in ValidationError.Rule
const (
	RuleRequired  = "required"
	RuleMaxLength = "max"
	RuleMinLength = "min"
	RuleEmail     = "email"
	RuleConfirmed = "confirmed"
	RuleUnique    = "unique"
)

// ValidationError represents a failed rule on one field
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult collects the first failure of every field
type ValidationResult struct {
	Errors []*ValidationError
}

// IsValid returns true if no rule failed
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Add records a failure unless the field already has one
func (r *ValidationResult) Add(field, rule, message string) {
	for _, e := range r.Errors {
		if e.Field == field {
			return
		}
	}
	r.Errors = append(r.Errors, &ValidationError{Field: field, Rule: rule, Message: message})
}

// Fields returns field -> message, the shape written in 422 responses
func (r *ValidationResult) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		out[e.Field] = e.Message
	}
	return out
}

// Validator checks request fields against rules. Each check is skipped when
// the field already failed, so a result holds the first failure per field.
//
//	v := validation.NewValidator()
//	v.Required("email", email).Email("email", email)
//	if res := v.Result(); !res.IsValid() { ... }
type Validator struct {
	result ValidationResult
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) failed(field string) bool {
	for _, e := range v.result.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Required fails on an empty or whitespace-only value
func (v *Validator) Required(field, value string) *Validator {
	if !v.failed(field) && strings.TrimSpace(value) == "" {
		v.result.Add(field, RuleRequired, fmt.Sprintf("the %s field is required", field))
	}
	return v
}

// MaxLength fails when value has more than max characters
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if !v.failed(field) && utf8.RuneCountInString(value) > max {
		v.result.Add(field, RuleMaxLength, fmt.Sprintf("the %s may not be greater than %d characters", field, max))
	}
	return v
}

// MinLength fails when value has fewer than min characters
func (v *Validator) MinLength(field, value string, min int) *Validator {
	if !v.failed(field) && utf8.RuneCountInString(value) < min {
		v.result.Add(field, RuleMinLength, fmt.Sprintf("the %s must be at least %d characters", field, min))
	}
	return v
}

// Email fails when value does not look like an email address
func (v *Validator) Email(field, value string) *Validator {
	if !v.failed(field) && !IsEmail(value) {
		v.result.Add(field, RuleEmail, fmt.Sprintf("the %s must be a valid email address", field))
	}
	return v
}

// Confirmed fails when value and its confirmation differ
func (v *Validator) Confirmed(field, value, confirmation string) *Validator {
	if !v.failed(field) && value != confirmation {
		v.result.Add(field, RuleConfirmed, fmt.Sprintf("the %s confirmation does not match", field))
	}
	return v
}

// Fail records an externally detected failure, such as a uniqueness clash
func (v *Validator) Fail(field, rule, message string) *Validator {
	v.result.Add(field, rule, message)
	return v
}

// Result returns the collected failures
func (v *Validator) Result() *ValidationResult {
	return &v.result
}

// IsEmail reports whether s looks like an email address
func IsEmail(s string) bool {
	return emailRegex.MatchString(s)
}
