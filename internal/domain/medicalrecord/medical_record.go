package medicalrecord

import (
	"time"

	"github.com/google/uuid"
)

// Record holds the AI-generated triage output alongside the doctor's final
// decision for one appointment. The AI fields are working notes; the doctor
// fields are authoritative.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex"`

	// AI Generated Content (Helper)
	AISummary           string `gorm:"column:ai_summary;type:text"`
	AIDiseasePrediction string `gorm:"column:ai_disease_prediction;type:text"`

	// Doctor's Input (Final Decision)
	DoctorDiagnosis string `gorm:"column:doctor_diagnosis;type:text"`
	Prescription    string `gorm:"column:prescription;type:text"`
}

func (Record) TableName() string {
	return "clinical.medical_records"
}

type DiagnoseCommand struct {
	AppointmentID   uuid.UUID
	DoctorDiagnosis string
	Prescription    string
	DoctorID        uuid.UUID
}
