package model

import "strings"

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateToken checks a Token for constraint violations before it is
// written. It returns a *ValidationError if any rules fail, or nil.
func ValidateToken(t *Token) error {
	var ve ValidationError

	if strings.TrimSpace(t.Value) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "token", Message: "is required"})
	}
	if strings.TrimSpace(t.Type) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "token_type", Message: "is required"})
	}

	// Recipient and issue time travel together.
	if t.Recipient != "" && t.IssuedAt == nil {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "used_at",
			Message: "is required when email is set",
		})
	}
	if t.Recipient == "" && t.IssuedAt != nil {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "used_at",
			Message: "must be nil when email is not set",
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
