package conversation

import "errors"

var (
	// ErrConversationBusy means a prior user message for the same appointment
	// is still awaiting its assistant reply.
	ErrConversationBusy = errors.New("conversation is awaiting a reply to a previous message")

	ErrSequenceConflict = errors.New("conversation turn sequence conflict")
)
