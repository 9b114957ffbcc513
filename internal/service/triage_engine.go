package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/client/llm"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/domain/medicalrecord"
	"github.com/clinicflow/intake/internal/domain/symptom"
	"github.com/clinicflow/intake/pkg/metrics"
)

const triageSystemPrompt = `You are a clinical triage assistant for a dermatology and general practice clinic.
Given the patient's intake information and the conversation so far, respond to the patient's latest message.
Reply with a single JSON object of the form {"disease": "<most likely condition or 'inconclusive'>", "advice": "<your reply to the patient>"}.
Be cautious: recommend seeing the doctor for anything severe, worsening, or ambiguous. Never prescribe medication.`

// TriageEngine runs the per-appointment AI conversation. Each appointment has
// at most one model call in flight: a second message while a reply is pending
// is rejected rather than queued. The in-flight marker is a flag, not a held
// lock, so reads of the transcript are never blocked by a slow model.
type TriageEngine struct {
	turns    conversation.Repository
	symptoms symptom.Repository
	analyses analysis.Repository
	records  medicalrecord.Repository
	llm      llm.Client
	metrics  *metrics.Collector
	log      *zap.Logger

	commitMu *keyMutex

	busyMu sync.Mutex
	busy   map[uuid.UUID]bool
}

func NewTriageEngine(
	turns conversation.Repository,
	symptoms symptom.Repository,
	analyses analysis.Repository,
	records medicalrecord.Repository,
	client llm.Client,
	m *metrics.Collector,
	log *zap.Logger,
) *TriageEngine {
	return &TriageEngine{
		turns:    turns,
		symptoms: symptoms,
		analyses: analyses,
		records:  records,
		llm:      client,
		metrics:  m,
		log:      log,
		commitMu: newKeyMutex(),
		busy:     make(map[uuid.UUID]bool),
	}
}

// Converse appends the patient message, calls the model, and appends the
// assistant reply. If the model call fails the patient turn is kept and no
// assistant turn is written; the patient message is not lost and a retry
// continues from the recorded transcript.
func (e *TriageEngine) Converse(ctx context.Context, appointmentID uuid.UUID, message string) (*conversation.Turn, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Fields: []string{"message is required"}}
	}

	if !e.tryAcquire(appointmentID) {
		e.metrics.ConversationRejected.Inc()
		return nil, conversation.ErrConversationBusy
	}
	defer e.release(appointmentID)

	userTurn, err := e.commitTurn(ctx, appointmentID, conversation.RoleUser, message)
	if err != nil {
		return nil, fmt.Errorf("recording patient message: %w", err)
	}
	e.metrics.ConversationTurns.WithLabelValues(string(conversation.RoleUser)).Inc()

	prompt, err := e.buildPrompt(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("assembling prompt: %w", err)
	}

	raw, err := e.generateWithSpan(ctx, appointmentID, userTurn.Seq, prompt)
	if err != nil {
		e.metrics.TriageCallFailures.Inc()
		e.log.Warn("triage model call failed",
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrTriageService, err)
	}

	reply := llm.ParseTriageReply(raw)

	assistantTurn, err := e.commitTurn(ctx, appointmentID, conversation.RoleAssistant, reply.Advice)
	if err != nil {
		return nil, fmt.Errorf("recording assistant reply: %w", err)
	}
	e.metrics.ConversationTurns.WithLabelValues(string(conversation.RoleAssistant)).Inc()

	// The running prediction is best-effort; a failed write never fails the
	// conversation turn itself.
	if err := e.records.UpsertAIPrediction(ctx, appointmentID, reply.Disease, reply.Advice); err != nil {
		e.metrics.PredictionWriteFailures.Inc()
		e.log.Error("failed to update AI prediction",
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}

	return assistantTurn, nil
}

// Transcript returns the full conversation in order. Reads take no part in
// the busy gate.
func (e *TriageEngine) Transcript(ctx context.Context, appointmentID uuid.UUID) ([]*conversation.Turn, error) {
	return e.turns.ListByAppointment(ctx, appointmentID)
}

func (e *TriageEngine) tryAcquire(key uuid.UUID) bool {
	e.busyMu.Lock()
	defer e.busyMu.Unlock()
	if e.busy[key] {
		return false
	}
	e.busy[key] = true
	return true
}

func (e *TriageEngine) release(key uuid.UUID) {
	e.busyMu.Lock()
	delete(e.busy, key)
	e.busyMu.Unlock()
}

// commitTurn assigns the next sequence number and appends under the
// per-appointment commit lock, keeping Seq gapless even if other writers
// appear.
func (e *TriageEngine) commitTurn(ctx context.Context, appointmentID uuid.UUID, role conversation.Role, content string) (*conversation.Turn, error) {
	e.commitMu.Lock(appointmentID)
	defer e.commitMu.Unlock(appointmentID)

	seq, err := e.turns.NextSeq(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	t := &conversation.Turn{
		AppointmentID: appointmentID,
		Seq:           seq,
		Role:          role,
		Content:       content,
	}
	if err := e.turns.Append(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *TriageEngine) buildPrompt(ctx context.Context, appointmentID uuid.UUID) (string, error) {
	var b strings.Builder
	b.WriteString(triageSystemPrompt)
	b.WriteString("\n\n")

	rec, err := e.symptoms.GetByAppointmentID(ctx, appointmentID)
	switch {
	case err == nil:
		b.WriteString("Patient intake:\n")
		b.WriteString(rec.PromptText())
		b.WriteString("\n\n")
	case errors.Is(err, symptom.ErrRecordNotFound):
		// Conversations may start before symptoms are submitted.
	default:
		return "", err
	}

	latest, err := e.analyses.LatestForAppointment(ctx, appointmentID)
	switch {
	case err == nil:
		b.WriteString("Skin image analysis result:\n")
		b.Write(latest.ResultPayload)
		b.WriteString("\n\n")
	case errors.Is(err, analysis.ErrRecordNotFound):
	default:
		return "", err
	}

	turns, err := e.turns.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return "", err
	}

	b.WriteString("Conversation so far:\n")
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleUser:
			b.WriteString("Patient: ")
		case conversation.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func (e *TriageEngine) generateWithSpan(ctx context.Context, appointmentID uuid.UUID, seq int, prompt string) (string, error) {
	ctx, span := otel.Tracer("triage").Start(ctx, "llm.GenerateReply")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", appointmentID.String()),
		attribute.Int("conversation.seq", seq),
	)

	start := time.Now()
	raw, err := e.llm.GenerateReply(ctx, prompt)
	e.metrics.TriageCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return "", err
	}
	return raw, nil
}
