package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

func strPtr(s string) *string { return &s }

// customerMapping mirrors the canonical customer import setup: three source
// columns, customer_code built from Customer_ID with an uppercase transform.
func customerMapping() models.MappingSnapshot {
	return models.MappingSnapshot{
		MappingName: "Customer Import",
		SourceColumns: models.SourceColumnList{
			{Name: "Customer_ID", DataType: "string", Required: true},
			{Name: "Full_Name", DataType: "string", Required: true},
			{Name: "Phone", DataType: "string"},
		},
		TargetColumns: models.TargetColumnMap{
			"customer_code": {SourceColumn: strPtr("Customer_ID"), Transformation: "uppercase", Required: true},
			"customer_name": {SourceColumn: strPtr("Full_Name"), Transformation: "title_case", Required: true},
			"phone":         {SourceColumn: strPtr("Phone"), Transformation: "phone_format"},
			"country":       {DefaultValue: strPtr("MM"), Required: true},
		},
		ERPEndpoint: "customers",
	}
}

func TestProcessRowBuildsTargetRecord(t *testing.T) {
	spec := customerMapping()
	row := Row{
		"Customer_ID": String("abc123"),
		"Full_Name":   String("john doe"),
		"Phone":       String(""),
	}

	record, rowErr := ProcessRow(spec, row, 0)
	require.Nil(t, rowErr)

	assert.Equal(t, "customers", record.Endpoint)
	assert.Equal(t, "ABC123", record.Fields["customer_code"])
	assert.Equal(t, "John Doe", record.Fields["customer_name"])
	assert.Equal(t, "", record.Fields["phone"])
	assert.Equal(t, "MM", record.Fields["country"])
}

func TestProcessRowMissingRequiredField(t *testing.T) {
	spec := customerMapping()
	row := Row{
		"Customer_ID": String(""),
		"Full_Name":   String("Jane"),
	}

	_, rowErr := ProcessRow(spec, row, 4)
	require.NotNil(t, rowErr)
	assert.Equal(t, 4, rowErr.RowIndex)
	require.Len(t, rowErr.FieldErrors, 1)
	assert.Equal(t, "customer_code", rowErr.FieldErrors[0].Field)
	assert.Equal(t, "Jane", rowErr.Raw["Full_Name"])
}

func TestProcessRowDeterministic(t *testing.T) {
	spec := customerMapping()
	row := Row{
		"Customer_ID": String("x-9"),
		"Full_Name":   String("A B"),
		"Phone":       String("+95 1 234"),
	}

	first, firstErr := ProcessRow(spec, row, 7)
	for i := 0; i < 5; i++ {
		again, againErr := ProcessRow(spec, row, 7)
		assert.Equal(t, first, again)
		assert.Equal(t, firstErr, againErr)
	}
	assert.Equal(t, "951234", first.Fields["phone"])
}

func TestValidateIdempotent(t *testing.T) {
	spec := customerMapping()
	row := Row{"Customer_ID": String("ok"), "Full_Name": String("ok")}

	first := Validate(spec, row)
	assert.True(t, first.IsValid)
	assert.Equal(t, first, Validate(spec, row))
}

func TestValidateRequiredDefaultSubstitution(t *testing.T) {
	spec := customerMapping()
	// country has no source column; the default must satisfy the required check.
	row := Row{"Customer_ID": String("c1"), "Full_Name": String("n")}

	res := Validate(spec, row)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.FieldErrors)
}

func TestValidateTypeMismatchWarnsButPasses(t *testing.T) {
	spec := models.MappingSnapshot{
		MappingName: "Products",
		SourceColumns: models.SourceColumnList{
			{Name: "Price", DataType: "number"},
		},
		TargetColumns: models.TargetColumnMap{
			"unit_price": {SourceColumn: strPtr("Price")},
		},
		ERPEndpoint: "products",
	}

	res := Validate(spec, Row{"Price": String("not-a-number")})
	assert.True(t, res.IsValid, "type mismatches are advisory")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not a valid number")

	// A parseable value is coerced to a number in the record.
	record, rowErr := ProcessRow(spec, Row{"Price": String("12.50")}, 0)
	require.Nil(t, rowErr)
	assert.Equal(t, 12.5, record.Fields["unit_price"])
	assert.Empty(t, record.Warnings)

	// An unparseable value keeps its string form and the record carries the
	// warning for the job's advisory log.
	record, rowErr = ProcessRow(spec, Row{"Price": String("not-a-number")}, 3)
	require.Nil(t, rowErr)
	assert.Equal(t, "not-a-number", record.Fields["unit_price"])
	require.Len(t, record.Warnings, 1)
	assert.Contains(t, record.Warnings[0], "not a valid number")
}

func TestValidateDefinitionAcceptsValidMapping(t *testing.T) {
	err := ValidateDefinition(customerMapping(), []string{"customers", "products"})
	assert.NoError(t, err)
}

func TestValidateDefinitionRequiredWithoutSourceOrDefault(t *testing.T) {
	spec := customerMapping()
	tc := spec.TargetColumns["customer_code"]
	tc.SourceColumn = nil
	tc.DefaultValue = nil
	spec.TargetColumns["customer_code"] = tc

	err := ValidateDefinition(spec, nil)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "customer_code")
	assert.Contains(t, cfgErr.Error(), "neither a source column nor a default value")
}

func TestValidateDefinitionRejectsUnknowns(t *testing.T) {
	spec := customerMapping()
	tc := spec.TargetColumns["phone"]
	tc.Transformation = "rot13"
	spec.TargetColumns["phone"] = tc
	spec.TargetColumns["extra"] = models.TargetColumn{SourceColumn: strPtr("No_Such_Column")}
	spec.SourceColumns = append(spec.SourceColumns, models.SourceColumn{Name: "Customer_ID"})

	err := ValidateDefinition(spec, []string{"products"})
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	msg := cfgErr.Error()
	assert.Contains(t, msg, `unknown transformation "rot13"`)
	assert.Contains(t, msg, `unknown source column "No_Such_Column"`)
	assert.Contains(t, msg, `duplicate source column "Customer_ID"`)
	assert.Contains(t, msg, `unknown ERP endpoint "customers"`)
}

func TestValueEmptinessAndRendering(t *testing.T) {
	assert.True(t, Null().IsEmpty())
	assert.True(t, String("   ").IsEmpty())
	assert.False(t, Number(0).IsEmpty())
	assert.False(t, Bool(false).IsEmpty())

	assert.Equal(t, "42", Number(42).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "", Null().String())
	assert.Nil(t, Null().Raw())
}
