package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

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

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateTenant checks a Tenant for constraint violations.
func ValidateTenant(t *Tenant) error {
	var ve ValidationError
	if strings.TrimSpace(t.Name) == "" {
		ve.add("name", "is required")
	} else if len([]rune(t.Name)) > 200 {
		ve.add("name", "must be 200 characters or fewer")
	}
	if !t.Status.IsValid() {
		ve.add("status", fmt.Sprintf("invalid value %q", t.Status))
	}
	if t.CreditsPurchased < 0 || t.CreditsConsumed < 0 {
		ve.add("credits", "must not be negative")
	}
	return ve.orNil()
}

// ValidateBusinessProfile checks a BusinessProfile for constraint violations.
func ValidateBusinessProfile(p *BusinessProfile) error {
	var ve ValidationError
	if strings.TrimSpace(p.BusinessName) == "" {
		ve.add("businessName", "is required")
	}
	if strings.TrimSpace(p.Industry) == "" {
		ve.add("industry", "is required")
	}
	if p.Website != "" {
		if u, err := url.Parse(p.Website); err != nil || u.Scheme == "" || u.Host == "" {
			ve.add("website", "must be an absolute URL")
		}
	}
	if len(p.Specialties) > 0 && !json.Valid(p.Specialties) {
		ve.add("specialties", "contains invalid JSON")
	}
	return ve.orNil()
}

// ValidateSOTDeclaration checks a SOTDeclaration for constraint violations.
func ValidateSOTDeclaration(d *SOTDeclaration) error {
	var ve ValidationError
	if strings.TrimSpace(d.InstanceID) == "" {
		ve.add("instanceId", "is required")
	}
	if strings.TrimSpace(d.InstanceType) == "" {
		ve.add("instanceType", "is required")
	}
	if strings.TrimSpace(d.BlueprintVersion) == "" {
		ve.add("blueprintVersion", "is required")
	}
	if d.CallbackURL != "" {
		u, err := url.Parse(d.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			ve.add("callbackUrl", "must be an http(s) URL")
		}
	}
	switch d.Status {
	case "", DeclarationPending, DeclarationActive:
	default:
		ve.add("status", fmt.Sprintf("invalid value %q", d.Status))
	}
	return ve.orNil()
}

// ValidatePage checks a Page for constraint violations.
func ValidatePage(p *Page) error {
	var ve ValidationError
	if strings.TrimSpace(p.TenantID) == "" {
		ve.add("tenantId", "is required")
	}
	if !strings.HasPrefix(p.Path, "/") {
		ve.add("path", "must start with /")
	}
	if strings.TrimSpace(p.Title) == "" {
		ve.add("title", "is required")
	}
	if len(p.Components) > 0 && !json.Valid(p.Components) {
		ve.add("components", "contains invalid JSON")
	}
	return ve.orNil()
}
