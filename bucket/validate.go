package bucket

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError flags one problem with a declared bucket schema.
type ValidationError struct {
	Bucket  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Bucket, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Bucket, e.Message)
}

// ValidationResult holds the outcome of validating a set of schemas.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && len(r.Warnings) == 0 {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) fail(bucket, field, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Bucket: bucket, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warn(bucket, field, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Bucket: bucket, Field: field, Message: fmt.Sprintf(format, args...)})
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks a set of bucket schemas before any table is touched:
// identifier shapes, name collisions with the audit columns, duplicate
// fields and tables, and types the adapter cannot persist.
func Validate(schemas []*Schema, meta MetaFields) *ValidationResult {
	result := &ValidationResult{}
	tables := map[string]string{}

	for _, s := range schemas {
		if s.Name == "" {
			result.fail("?", "", "bucket name is required")
			continue
		}
		if s.Table == "" {
			result.fail(s.Name, "", "table name is required")
			continue
		}
		if !identRe.MatchString(s.Table) {
			result.fail(s.Name, "", "invalid table name %q", s.Table)
		}
		if owner, taken := tables[s.Table]; taken {
			result.fail(s.Name, "", "table %q is already used by bucket %q", s.Table, owner)
		}
		tables[s.Table] = s.Name

		fields := map[string]bool{}
		for _, f := range s.Fields {
			if !identRe.MatchString(f.Name) {
				result.fail(s.Name, f.Name, "invalid field name")
				continue
			}
			if fields[f.Name] {
				result.fail(s.Name, f.Name, "duplicate field")
				continue
			}
			fields[f.Name] = true

			if meta.Has(f.Name) {
				result.fail(s.Name, f.Name, "collides with the %q audit column", f.Name)
			}
			if f.Type == TypeUnknown {
				result.fail(s.Name, f.Name, "unknown fields cannot be stored on SQL")
			}
			if f.Name == "id" {
				if f.Type != TypeInt {
					result.fail(s.Name, f.Name, "id must be an int, got %s", f.Type)
				}
				if f.Array {
					result.fail(s.Name, f.Name, "id cannot be an array")
				}
			}
			if f.Decimal != nil {
				if f.Type != TypeDecimal {
					result.warn(s.Name, f.Name, "decimal precision is ignored on %s fields", f.Type)
				} else if f.Decimal.Left <= 0 || f.Decimal.Right < 0 {
					result.fail(s.Name, f.Name, "invalid decimal precision (%d,%d)", f.Decimal.Left, f.Decimal.Right)
				}
			}
		}

		if !fields["id"] {
			result.warn(s.Name, "", "no id field declared; get, update and delete need an id column")
		}
	}
	return result
}
