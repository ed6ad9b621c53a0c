package mapping

import (
	"fmt"
	"strings"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
	"github.com/EthanVT97/rangoon-middleware/internal/transform"
)

// ConfigurationError reports an invalid mapping definition. It is raised when
// the mapping is saved, so a bad definition never reaches row processing.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid mapping definition: %s", strings.Join(e.Problems, "; "))
}

// ValidateDefinition checks a mapping definition against the invariants the
// engine relies on. knownEndpoints is the set of configured ERP endpoint
// names; pass nil to skip the endpoint check.
func ValidateDefinition(spec models.MappingSnapshot, knownEndpoints []string) error {
	var problems []string

	if strings.TrimSpace(spec.MappingName) == "" {
		problems = append(problems, "mapping name is required")
	}
	if len(spec.SourceColumns) == 0 {
		problems = append(problems, "at least one source column is required")
	}
	if len(spec.TargetColumns) == 0 {
		problems = append(problems, "at least one target column is required")
	}

	sourceNames := make(map[string]bool, len(spec.SourceColumns))
	for _, col := range spec.SourceColumns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			problems = append(problems, "source column with empty name")
			continue
		}
		if sourceNames[name] {
			problems = append(problems, fmt.Sprintf("duplicate source column %q", name))
		}
		sourceNames[name] = true
		if col.DataType != "" && !models.ValidSourceDataTypes[col.DataType] {
			problems = append(problems, fmt.Sprintf("source column %q has unknown data type %q", name, col.DataType))
		}
	}

	for field, target := range spec.TargetColumns {
		if strings.TrimSpace(field) == "" {
			problems = append(problems, "target field with empty name")
			continue
		}
		if target.SourceColumn != nil && !sourceNames[*target.SourceColumn] {
			problems = append(problems, fmt.Sprintf("target field %q references unknown source column %q", field, *target.SourceColumn))
		}
		if target.Required && target.SourceColumn == nil && target.DefaultValue == nil {
			problems = append(problems, fmt.Sprintf("required target field %q has neither a source column nor a default value", field))
		}
		if target.Transformation != "" && !transform.IsKnown(target.Transformation) {
			problems = append(problems, fmt.Sprintf("target field %q uses unknown transformation %q", field, target.Transformation))
		}
	}

	if knownEndpoints != nil {
		found := false
		for _, name := range knownEndpoints {
			if name == spec.ERPEndpoint {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("unknown ERP endpoint %q (configured: %s)", spec.ERPEndpoint, strings.Join(knownEndpoints, ", ")))
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}
