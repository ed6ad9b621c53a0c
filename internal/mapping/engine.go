package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
	"github.com/EthanVT97/rangoon-middleware/internal/transform"
)

// FieldError names a target field that failed validation for one row.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the per-row verdict. Warnings carry advisory type
// mismatches; they never fail the row.
type ValidationResult struct {
	IsValid     bool
	FieldErrors []FieldError
	Warnings    []string
}

// RowError describes a row rejected by validation, keeping the raw row for
// diagnostics on the dashboard.
type RowError struct {
	RowIndex    int               `json:"row"`
	FieldErrors []FieldError      `json:"errors"`
	Raw         map[string]string `json:"data,omitempty"`
}

// Messages flattens field errors for the job error log.
func (e *RowError) Messages() []string {
	out := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		out = append(out, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return out
}

// TargetRecord is one row after transformation and validation, ready for ERP
// dispatch. Warnings carry the advisory coercion notes for values that kept
// their string form.
type TargetRecord struct {
	RowIndex int
	Endpoint string
	Fields   map[string]interface{}
	Warnings []string
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "02/01/2006", "01/02/2006"}

// coerce converts a transformed string into the declared source-column type.
// Policy: warn-and-coerce. A value that does not parse keeps its string form
// and produces a warning, never a row failure (the declared type is advisory).
func coerce(s, field, declaredType string) (interface{}, string) {
	if s == "" {
		return s, ""
	}
	switch declaredType {
	case "number":
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, ""
		}
		return s, fmt.Sprintf("field %s: value %q is not a valid number", field, s)
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			return true, ""
		case "false", "no", "0":
			return false, ""
		}
		return s, fmt.Sprintf("field %s: value %q is not a valid boolean", field, s)
	case "date":
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return t.Format(time.RFC3339), ""
			}
		}
		return s, fmt.Sprintf("field %s: value %q is not a recognized date", field, s)
	default:
		return s, ""
	}
}

// buildFields resolves, transforms and checks every target field for one row.
// Shared by Validate and ProcessRow so the two can never disagree.
func buildFields(spec models.MappingSnapshot, row Row) (map[string]interface{}, []FieldError, []string) {
	declaredTypes := make(map[string]string, len(spec.SourceColumns))
	for _, col := range spec.SourceColumns {
		declaredTypes[col.Name] = col.DataType
	}

	fields := make(map[string]interface{}, len(spec.TargetColumns))
	var fieldErrors []FieldError
	var warnings []string

	for field, target := range spec.TargetColumns {
		var value Value
		declared := ""
		if target.SourceColumn != nil {
			value = row[*target.SourceColumn]
			declared = declaredTypes[*target.SourceColumn]
		}
		if value.IsEmpty() && target.DefaultValue != nil {
			value = String(*target.DefaultValue)
		}

		rendered := value.String()
		if target.Transformation != "" && !value.IsNull() {
			// Unknown names are rejected at save time, so a lookup failure
			// here means the snapshot predates the registry; skip quietly.
			if fn, err := transform.Lookup(target.Transformation); err == nil {
				rendered = fn(rendered)
			}
		}

		if target.Required && strings.TrimSpace(rendered) == "" {
			fieldErrors = append(fieldErrors, FieldError{
				Field:   field,
				Message: "required field is missing or empty",
			})
			continue
		}

		coerced, warning := coerce(rendered, field, declared)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		fields[field] = coerced
	}

	return fields, fieldErrors, warnings
}

// Validate checks one decoded row against the mapping. It has no side
// effects and is idempotent: the same mapping and row always produce the
// same verdict.
func Validate(spec models.MappingSnapshot, row Row) ValidationResult {
	_, fieldErrors, warnings := buildFields(spec, row)
	return ValidationResult{
		IsValid:     len(fieldErrors) == 0,
		FieldErrors: fieldErrors,
		Warnings:    warnings,
	}
}

// ProcessRow turns one raw row into either an ERP-ready TargetRecord or a
// RowError. Pure per row: it never depends on or affects any other row's
// outcome, so rows can be processed concurrently.
func ProcessRow(spec models.MappingSnapshot, row Row, rowIndex int) (TargetRecord, *RowError) {
	fields, fieldErrors, warnings := buildFields(spec, row)
	if len(fieldErrors) > 0 {
		return TargetRecord{}, &RowError{
			RowIndex:    rowIndex,
			FieldErrors: fieldErrors,
			Raw:         row.RawStrings(),
		}
	}
	return TargetRecord{
		RowIndex: rowIndex,
		Endpoint: spec.ERPEndpoint,
		Fields:   fields,
		Warnings: warnings,
	}, nil
}
