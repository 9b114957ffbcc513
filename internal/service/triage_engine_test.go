package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/domain/symptom"
)

func newTestEngine(llmFn func(ctx context.Context, prompt string) (string, error)) (*TriageEngine, *fakeConversationRepo, *fakeSymptomRepo, *fakeMedicalRecordRepo) {
	convRepo := newFakeConversationRepo()
	symRepo := newFakeSymptomRepo()
	analysisRepo := newFakeAnalysisRepo()
	medRepo := newFakeMedicalRecordRepo()

	engine := NewTriageEngine(convRepo, symRepo, analysisRepo, medRepo, &fakeLLM{generate: llmFn}, testCollector(), testLogger())
	return engine, convRepo, symRepo, medRepo
}

func TestConverseAppendsUserAndAssistantTurns(t *testing.T) {
	engine, convRepo, _, _ := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		return `{"disease":"contact dermatitis","advice":"Avoid the irritant and keep the area dry."}`, nil
	})
	apptID := uuid.New()

	const rounds = 3
	for i := 0; i < rounds; i++ {
		reply, err := engine.Converse(context.Background(), apptID, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("Converse round %d: %v", i, err)
		}
		if reply.Role != conversation.RoleAssistant {
			t.Fatalf("expected assistant reply, got role %q", reply.Role)
		}
	}

	turns, err := convRepo.ListByAppointment(context.Background(), apptID)
	if err != nil {
		t.Fatalf("ListByAppointment: %v", err)
	}
	if len(turns) != 2*rounds {
		t.Fatalf("expected %d turns, got %d", 2*rounds, len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i {
			t.Errorf("turn %d has seq %d, want %d", i, turn.Seq, i)
		}
		wantRole := conversation.RoleUser
		if i%2 == 1 {
			wantRole = conversation.RoleAssistant
		}
		if turn.Role != wantRole {
			t.Errorf("turn %d has role %q, want %q", i, turn.Role, wantRole)
		}
	}
}

func TestConverseModelFailureKeepsUserTurn(t *testing.T) {
	engine, convRepo, _, _ := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("upstream timeout")
	})
	apptID := uuid.New()

	_, err := engine.Converse(context.Background(), apptID, "my rash is spreading")
	if !errors.Is(err, ErrTriageService) {
		t.Fatalf("expected ErrTriageService, got %v", err)
	}

	turns, _ := convRepo.ListByAppointment(context.Background(), apptID)
	if len(turns) != 1 {
		t.Fatalf("expected only the user turn to survive, got %d turns", len(turns))
	}
	if turns[0].Role != conversation.RoleUser {
		t.Fatalf("surviving turn has role %q, want user", turns[0].Role)
	}

	// A retry after recovery continues from the recorded transcript.
	engine.llm = &fakeLLM{generate: func(ctx context.Context, prompt string) (string, error) {
		return `{"disease":"inconclusive","advice":"Please describe where the rash started."}`, nil
	}}
	if _, err := engine.Converse(context.Background(), apptID, "it started on my arm"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	turns, _ = convRepo.ListByAppointment(context.Background(), apptID)
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns after retry, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i {
			t.Errorf("turn %d has seq %d after retry, want gapless", i, turn.Seq)
		}
	}
}

func TestConverseRejectsConcurrentMessage(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	// Later Converse calls reuse this fake, so only the first may close entered.
	var enteredOnce sync.Once
	engine, _, _, _ := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		enteredOnce.Do(func() { close(entered) })
		<-release
		return `{"disease":"inconclusive","advice":"ok"}`, nil
	})
	apptID := uuid.New()

	done := make(chan error, 1)
	go func() {
		_, err := engine.Converse(context.Background(), apptID, "first")
		done <- err
	}()

	<-entered

	// Second message while the model call is in flight is rejected, not queued.
	if _, err := engine.Converse(context.Background(), apptID, "second"); !errors.Is(err, conversation.ErrConversationBusy) {
		t.Fatalf("expected ErrConversationBusy, got %v", err)
	}

	// Reads are not blocked by the in-flight call.
	readDone := make(chan struct{})
	go func() {
		_, _ = engine.Transcript(context.Background(), apptID)
		close(readDone)
	}()
	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("Transcript blocked while a model call was in flight")
	}

	// A different appointment is unaffected by this one's busy state.
	otherEngine := engine
	otherID := uuid.New()
	otherDone := make(chan error, 1)
	go func() {
		_, err := otherEngine.Converse(context.Background(), otherID, "hello")
		otherDone <- err
	}()

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Converse: %v", err)
	}
	if err := <-otherDone; err != nil {
		t.Fatalf("Converse on other appointment: %v", err)
	}

	// The busy flag is released; the next message succeeds.
	if _, err := engine.Converse(context.Background(), apptID, "third"); err != nil {
		t.Fatalf("Converse after release: %v", err)
	}
}

func TestConverseUpdatesPrediction(t *testing.T) {
	engine, _, _, medRepo := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		return "```json\n{\"disease\":\"psoriasis\",\"advice\":\"Book a dermatology visit.\"}\n```", nil
	})
	apptID := uuid.New()

	reply, err := engine.Converse(context.Background(), apptID, "scaly patches on elbows")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply.Content != "Book a dermatology visit." {
		t.Errorf("assistant content = %q", reply.Content)
	}

	rec, err := medRepo.GetByAppointmentID(context.Background(), apptID)
	if err != nil {
		t.Fatalf("GetByAppointmentID: %v", err)
	}
	if rec.AIDiseasePrediction != "psoriasis" {
		t.Errorf("AIDiseasePrediction = %q, want psoriasis", rec.AIDiseasePrediction)
	}
}

func TestConversePredictionWriteFailureIsNonFatalAndCounted(t *testing.T) {
	engine, convRepo, _, medRepo := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		return `{"disease":"psoriasis","advice":"Book a dermatology visit."}`, nil
	})
	medRepo.upsertErr = errors.New("records database unavailable")
	apptID := uuid.New()

	before := testutil.ToFloat64(testCollector().PredictionWriteFailures)

	reply, err := engine.Converse(context.Background(), apptID, "scaly patches on elbows")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply.Content != "Book a dermatology visit." {
		t.Errorf("assistant content = %q", reply.Content)
	}
	if turns, _ := convRepo.ListByAppointment(context.Background(), apptID); len(turns) != 2 {
		t.Fatalf("expected both turns despite the failed prediction write, got %d", len(turns))
	}

	// The lost write must be visible on the counter.
	if after := testutil.ToFloat64(testCollector().PredictionWriteFailures); after != before+1 {
		t.Errorf("PredictionWriteFailures = %v, want %v", after, before+1)
	}
}

func TestConversePromptIncludesIntakeContext(t *testing.T) {
	var captured string
	engine, _, symRepo, _ := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		captured = prompt
		return `{"disease":"inconclusive","advice":"noted"}`, nil
	})
	apptID := uuid.New()

	rec := &symptom.Record{
		AppointmentID:    apptID,
		Description:      "itchy red patches",
		DurationCategory: symptom.DurationOverWeek,
		SeverityLevel:    symptom.SeverityModerate,
		Tags:             []string{"rash", "itching"},
	}
	if err := symRepo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if _, err := engine.Converse(context.Background(), apptID, "what could this be?"); err != nil {
		t.Fatalf("Converse: %v", err)
	}

	for _, want := range []string{"itchy red patches", "rash, itching", "over_a_week", "Patient: what could this be?"} {
		if !strings.Contains(captured, want) {
			t.Errorf("prompt missing %q\nprompt:\n%s", want, captured)
		}
	}
}

func TestConverseEmptyMessageRejected(t *testing.T) {
	engine, convRepo, _, _ := newTestEngine(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("model must not be called for an empty message")
		return "", nil
	})
	apptID := uuid.New()

	var vErr *ValidationError
	if _, err := engine.Converse(context.Background(), apptID, "   "); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if turns, _ := convRepo.ListByAppointment(context.Background(), apptID); len(turns) != 0 {
		t.Fatalf("expected no turns, got %d", len(turns))
	}
}
