package analysis

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Record is one classifier result. Records are append-only: a retake creates
// a new record, never overwrites an old one.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	// AppointmentID is optional: a standalone analysis (e.g. from the public
	// photo tool) has no appointment to link to.
	AppointmentID *uuid.UUID `gorm:"column:appointment_id;type:uuid;index"`

	AnalysisType  string         `gorm:"column:analysis_type;type:varchar(50);not null;index"`
	ImageRef      string         `gorm:"column:image_ref;type:varchar(512);not null"`
	ResultPayload datatypes.JSON `gorm:"column:result_payload;type:jsonb;not null"`
}

func (Record) TableName() string {
	return "clinical.analysis_records"
}

type ListRecordsQuery struct {
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	AnalysisType  *string
	Page          int
	PageSize      int
}
