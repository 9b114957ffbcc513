package conversation

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in an appointment's triage transcript. Turns are
// append-only and never mutated; Seq starts at 0 and is strictly increasing
// with no gaps per appointment.
type Turn struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex:ux_turns_appointment_seq,priority:1"`
	Seq           int       `gorm:"column:seq;not null;uniqueIndex:ux_turns_appointment_seq,priority:2"`

	Role    Role   `gorm:"column:role;type:varchar(20);not null"`
	Content string `gorm:"column:content;type:text;not null"`
}

func (Turn) TableName() string {
	return "clinical.conversation_turns"
}
