package models

// APIError represents a standardized error response format for the API.
type APIError struct {
	Code    string      `json:"code"`              // Application-specific error code (e.g., "MAPPING_NOT_FOUND")
	Message string      `json:"message"`           // Human-readable message describing the error
	Details interface{} `json:"details,omitempty"` // Optional field for additional error details
}

// Predefined application-specific error codes
const (
	// Generic Errors
	ErrorCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"

	// Input Validation & Data Errors
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeInvalidIDFormat = "INVALID_ID_FORMAT"
	ErrorCodeConfiguration   = "CONFIGURATION_ERROR" // invalid mapping definition
	ErrorCodeUnsupportedFile = "UNSUPPORTED_FILE_TYPE"
	ErrorCodeEmptyFile       = "EMPTY_FILE"

	// Auth Errors
	ErrorCodeUnauthorized = "UNAUTHORIZED"
	ErrorCodeForbidden    = "FORBIDDEN"

	// Resource Specific Errors
	ErrorCodeMappingNotFound    = "MAPPING_NOT_FOUND"
	ErrorCodeJobNotFound        = "JOB_NOT_FOUND"
	ErrorCodeConnectionNotFound = "CONNECTION_NOT_FOUND"

	// Business Logic / State Errors
	ErrorCodeDuplicateName      = "DUPLICATE_NAME"
	ErrorCodeJobNotCancellable  = "JOB_NOT_CANCELLABLE"
	ErrorCodeMappingInUse       = "MAPPING_IN_USE"
	ErrorCodeERPUnavailable     = "ERP_UNAVAILABLE" // circuit breaker open
	ErrorCodeERPConnectionError = "ERP_CONNECTION_ERROR"
)
