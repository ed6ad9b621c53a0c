package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidSourceDataTypes defines the allowed declared types for source columns.
var ValidSourceDataTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"date":    true,
	"boolean": true,
}

// jsonScan unmarshals a jsonb column into dest. Postgres hands back []byte,
// the sqlite driver used in tests hands back string.
func jsonScan(dest interface{}, src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T for JSON scan", src)
	}
}

// SourceColumn describes one column expected in the uploaded file.
type SourceColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Required bool   `json:"required"`
}

// SourceColumnList is stored as a jsonb column.
type SourceColumnList []SourceColumn

func (l SourceColumnList) Value() (driver.Value, error) { return json.Marshal(l) }
func (l *SourceColumnList) Scan(src interface{}) error  { return jsonScan(l, src) }

// TargetColumn describes how one ERP field is produced: from a source column,
// from a default, or both, with an optional named transformation in between.
type TargetColumn struct {
	SourceColumn   *string `json:"source_column,omitempty"`
	Transformation string  `json:"transformation,omitempty"`
	DefaultValue   *string `json:"default_value,omitempty"`
	Required       bool    `json:"required"`
}

// TargetColumnMap is keyed by ERP field name and stored as a jsonb column.
type TargetColumnMap map[string]TargetColumn

func (m TargetColumnMap) Value() (driver.Value, error) { return json.Marshal(m) }
func (m *TargetColumnMap) Scan(src interface{}) error  { return jsonScan(m, src) }

// JSONMap is a generic jsonb object column (ERP acknowledgements, endpoint maps).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) { return json.Marshal(m) }
func (m *JSONMap) Scan(src interface{}) error  { return jsonScan(m, src) }

// EndpointMap maps an ERP endpoint name to its URL path.
type EndpointMap map[string]string

func (m EndpointMap) Value() (driver.Value, error) { return json.Marshal(m) }
func (m *EndpointMap) Scan(src interface{}) error  { return jsonScan(m, src) }

// ColumnMapping is a user-authored specification of how spreadsheet columns
// become ERP fields. Running jobs keep their own snapshot, so edits and soft
// deletes never affect work already in flight.
type ColumnMapping struct {
	ID            uuid.UUID        `json:"id" gorm:"type:uuid;primary_key"`
	MappingName   string           `json:"mapping_name" binding:"required,min=1,max=255" gorm:"type:varchar(255);not null"`
	Description   string           `json:"description,omitempty" gorm:"type:text"`
	SourceColumns SourceColumnList `json:"source_columns" gorm:"type:jsonb;not null"`
	TargetColumns TargetColumnMap  `json:"target_columns" gorm:"type:jsonb;not null"`
	ERPEndpoint   string           `json:"erp_endpoint" gorm:"type:varchar(255);not null"`
	CreatedBy     string           `json:"created_by" gorm:"type:varchar(255);not null;index"`
	IsActive      bool             `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// MappingSnapshot is the frozen copy of a ColumnMapping a job was started
// with, stored as a jsonb column on the job row.
type MappingSnapshot struct {
	MappingName   string           `json:"mapping_name"`
	SourceColumns SourceColumnList `json:"source_columns"`
	TargetColumns TargetColumnMap  `json:"target_columns"`
	ERPEndpoint   string           `json:"erp_endpoint"`
}

func (s MappingSnapshot) Value() (driver.Value, error) { return json.Marshal(s) }
func (s *MappingSnapshot) Scan(src interface{}) error  { return jsonScan(s, src) }

// Snapshot freezes the parts of the mapping that row processing depends on.
func (m *ColumnMapping) Snapshot() MappingSnapshot {
	return MappingSnapshot{
		MappingName:   m.MappingName,
		SourceColumns: m.SourceColumns,
		TargetColumns: m.TargetColumns,
		ERPEndpoint:   m.ERPEndpoint,
	}
}

// JobStatus is the import job lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobValidating JobStatus = "validating"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// allowedTransitions guards the job state machine: a status never moves
// backward, and terminal states have no successors.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobValidating, JobFailed, JobCancelled},
	JobValidating: {JobProcessing, JobCompleted, JobFailed, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func (from JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Failure reasons recorded on jobs that end in JobFailed.
const (
	FailureReasonCircuitOpen     = "erp_unavailable"
	FailureReasonAllRowsFailed   = "all_rows_failed_validation"
	FailureReasonAllRowsRejected = "all_rows_rejected_by_erp"
	FailureReasonDecode          = "file_decode_error"
	FailureReasonInternal        = "internal_error"
)

// Error-log stages, so the dashboard can tell row-level validation failures
// apart from dispatch rejections and whole-job faults.
const (
	ErrorStageValidation = "validation"
	ErrorStageDispatch   = "dispatch"
	ErrorStageJob        = "job"
	// ErrorStageAdvisory carries coercion warnings for rows that still
	// passed validation; advisory entries never move the counters.
	ErrorStageAdvisory = "advisory"
)

// ErrorEntry is one record in a job's append-only error log.
type ErrorEntry struct {
	Row    int               `json:"row,omitempty"`
	Stage  string            `json:"stage"`
	Errors []string          `json:"errors"`
	Data   map[string]string `json:"data,omitempty"`
}

// ErrorLog is stored as a jsonb column.
type ErrorLog []ErrorEntry

func (l ErrorLog) Value() (driver.Value, error) { return json.Marshal(l) }
func (l *ErrorLog) Scan(src interface{}) error  { return jsonScan(l, src) }

// ImportJob tracks one uploaded file through validation and ERP dispatch.
// Retained indefinitely for audit.
type ImportJob struct {
	JobID            uuid.UUID       `json:"job_id" gorm:"type:uuid;primary_key"`
	MappingID        uuid.UUID       `json:"mapping_id" gorm:"type:uuid;not null;index"`
	MappingName      string          `json:"mapping_name" gorm:"type:varchar(255)"`
	MappingSnapshot  MappingSnapshot `json:"mapping_snapshot" gorm:"type:jsonb"`
	Filename         string          `json:"filename" gorm:"type:varchar(512);not null"`
	CreatedBy        string          `json:"created_by" gorm:"type:varchar(255);not null;index"`
	Status           JobStatus       `json:"status" gorm:"type:varchar(20);not null;index"`
	TotalRecords     int             `json:"total_records"`
	ProcessedRecords int             `json:"processed_records"`
	FailedRecords    int             `json:"failed_records"`
	FailureReason    string          `json:"failure_reason,omitempty" gorm:"type:varchar(64)"`
	ErrorLog         ErrorLog        `json:"error_log" gorm:"type:jsonb"`
	ERPResponse      JSONMap         `json:"erp_response" gorm:"type:jsonb"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// ERPConnection holds the destination system's base URL, credential and
// endpoint catalogue. At most one connection is active at a time.
type ERPConnection struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	Name      string      `json:"name" binding:"required,min=1,max=255" gorm:"type:varchar(255);not null;unique"`
	BaseURL   string      `json:"base_url" gorm:"type:varchar(512);not null"`
	APIKey    string      `json:"-" gorm:"type:varchar(512);not null"`
	Endpoints EndpointMap `json:"endpoints" gorm:"type:jsonb"`
	IsActive  bool        `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreateMappingRequest defines the payload for creating a column mapping.
type CreateMappingRequest struct {
	MappingName   string           `json:"mapping_name" binding:"required,min=1,max=255"`
	Description   string           `json:"description,omitempty" binding:"max=1000"`
	SourceColumns SourceColumnList `json:"source_columns" binding:"required"`
	TargetColumns TargetColumnMap  `json:"target_columns" binding:"required"`
	ERPEndpoint   string           `json:"erp_endpoint" binding:"required"`
}

// UpdateMappingRequest defines the payload for updating a column mapping.
// Pointers distinguish "leave unchanged" from explicit zero values.
type UpdateMappingRequest struct {
	MappingName   *string           `json:"mapping_name,omitempty" binding:"omitempty,min=1,max=255"`
	Description   *string           `json:"description,omitempty" binding:"omitempty,max=1000"`
	SourceColumns *SourceColumnList `json:"source_columns,omitempty"`
	TargetColumns *TargetColumnMap  `json:"target_columns,omitempty"`
	ERPEndpoint   *string           `json:"erp_endpoint,omitempty"`
}

// CreateERPConnectionRequest defines the payload for registering an ERP connection.
type CreateERPConnectionRequest struct {
	Name      string      `json:"name" binding:"required,min=1,max=255"`
	BaseURL   string      `json:"base_url" binding:"required,url"`
	APIKey    string      `json:"api_key" binding:"required"`
	Endpoints EndpointMap `json:"endpoints,omitempty"`
}
