package symptom

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type DurationCategory string

const (
	DurationUnderDay   DurationCategory = "under_24h"
	DurationFewDays    DurationCategory = "1_3_days"
	DurationUpToWeek   DurationCategory = "3_7_days"
	DurationOverWeek   DurationCategory = "over_a_week"
	DurationOverMonth  DurationCategory = "over_a_month"
	DurationRecurrent  DurationCategory = "recurrent"
)

func (d DurationCategory) IsValid() bool {
	switch d {
	case DurationUnderDay, DurationFewDays, DurationUpToWeek,
		DurationOverWeek, DurationOverMonth, DurationRecurrent:
		return true
	}
	return false
}

type SeverityLevel string

const (
	SeverityMild     SeverityLevel = "mild"
	SeverityModerate SeverityLevel = "moderate"
	SeveritySevere   SeverityLevel = "severe"
)

func (s SeverityLevel) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// KnownTags is the closed set of selectable symptom tags offered by the
// intake form.
var KnownTags = map[string]bool{
	"fever":       true,
	"cough":       true,
	"headache":    true,
	"sore_throat": true,
	"rash":        true,
	"itching":     true,
	"swelling":    true,
	"fatigue":     true,
	"nausea":      true,
	"dizziness":   true,
	"joint_pain":  true,
	"chest_pain":  true,
}

// Record is the structured symptom submission for one appointment. Exactly
// one record exists per appointment; resubmission replaces it wholesale so
// the triage prompt never carries duplicate context.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex"`

	Description      string           `gorm:"column:description;type:text;not null"`
	DurationCategory DurationCategory `gorm:"column:duration_category;type:varchar(30);not null"`
	SeverityLevel    SeverityLevel    `gorm:"column:severity_level;type:varchar(20);not null"`
	Tags             []string         `gorm:"column:tags;serializer:json"`
	ImageRef         string           `gorm:"column:image_ref;type:varchar(512)"`
	Notes            string           `gorm:"column:notes;type:text"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Record) TableName() string {
	return "clinical.symptom_records"
}

// PromptText renders the record the way it is handed to the triage engine.
func (r *Record) PromptText() string {
	var b strings.Builder
	b.WriteString("Main complaint: " + r.Description)
	if len(r.Tags) > 0 {
		b.WriteString("\nReported symptoms: " + strings.Join(r.Tags, ", "))
	}
	b.WriteString("\nDuration: " + string(r.DurationCategory))
	b.WriteString("\nSeverity: " + string(r.SeverityLevel))
	if r.Notes != "" {
		b.WriteString("\nAdditional notes: " + r.Notes)
	}
	return b.String()
}

type SubmitCommand struct {
	AppointmentID    uuid.UUID
	Description      string
	DurationCategory DurationCategory
	SeverityLevel    SeverityLevel
	Tags             []string
	Image            []byte
	Notes            string
	SubmittedBy      uuid.UUID
}

// Validate checks payload shape only; appointment eligibility is the
// orchestrator's concern.
func (c *SubmitCommand) Validate() []string {
	var errs []string

	if strings.TrimSpace(c.Description) == "" {
		errs = append(errs, "description is required")
	}
	if !c.DurationCategory.IsValid() {
		errs = append(errs, "duration_category is invalid")
	}
	if !c.SeverityLevel.IsValid() {
		errs = append(errs, "severity_level is invalid")
	}
	for _, tag := range c.Tags {
		if !KnownTags[tag] {
			errs = append(errs, "unknown symptom tag: "+tag)
		}
	}

	return errs
}
