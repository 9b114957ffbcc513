package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/domain/medicalrecord"
	"github.com/clinicflow/intake/internal/domain/symptom"
	"github.com/clinicflow/intake/pkg/metrics"
)

// Prometheus collectors register globally, so the whole test binary shares
// one collector.
var (
	collectorOnce sync.Once
	collector     *metrics.Collector
)

func testCollector() *metrics.Collector {
	collectorOnce.Do(func() {
		collector = metrics.NewCollector("test")
	})
	return collector
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// ---- appointment repository ----

type fakeAppointmentRepo struct {
	mu            sync.Mutex
	appointments  map[uuid.UUID]*appointment.Appointment
	statusUpdates int
	onUpdate      func() // runs before the write, outside the lock
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{appointments: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *fakeAppointmentRepo) Create(ctx context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	r.appointments[a.ID] = a
	return nil
}

func (r *fakeAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAppointmentRepo) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range r.appointments {
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return &appointment.PagedAppointments{
		Appointments: out,
		TotalCount:   int64(len(out)),
		Page:         q.Page,
		PageSize:     q.PageSize,
	}, nil
}

func (r *fakeAppointmentRepo) UpdateStatus(ctx context.Context, a *appointment.Appointment, expected appointment.Status) error {
	if r.onUpdate != nil {
		r.onUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.appointments[a.ID]
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	if stored.Status != expected {
		return appointment.ErrStatusChanged
	}
	cp := *a
	cp.CreatedAt = stored.CreatedAt
	r.appointments[a.ID] = &cp
	r.statusUpdates++
	return nil
}

func (r *fakeAppointmentRepo) HasConflict(ctx context.Context, doctorID uuid.UUID, scheduledAt time.Time, excludeID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Status.IsTerminal() {
			continue
		}
		if a.DoctorID == doctorID && a.ScheduledAt.Equal(scheduledAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAppointmentRepo) status(id uuid.UUID) appointment.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appointments[id].Status
}

// ---- user repository ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

func (r *fakeUserRepo) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if success {
		u.FailedLoginCount = 0
		u.LockedUntil = nil
		now := time.Now()
		u.LastLoginAt = &now
		return nil
	}
	u.FailedLoginCount++
	if u.FailedLoginCount >= 5 {
		until := time.Now().Add(15 * time.Minute)
		u.LockedUntil = &until
	}
	return nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUserRepo) ListDoctors(ctx context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, u := range r.users {
		if u.Role == domain.RoleDoctor && u.IsActive {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ListDepartments(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, u := range r.users {
		if u.Role == domain.RoleDoctor && u.IsActive && u.Department != "" && !seen[u.Department] {
			seen[u.Department] = true
			out = append(out, u.Department)
		}
	}
	return out, nil
}

// ---- symptom repository ----

type fakeSymptomRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*symptom.Record
	upserts int
}

func newFakeSymptomRepo() *fakeSymptomRepo {
	return &fakeSymptomRepo{records: make(map[uuid.UUID]*symptom.Record)}
}

func (r *fakeSymptomRepo) Upsert(ctx context.Context, rec *symptom.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r.records[rec.AppointmentID] = rec
	r.upserts++
	return nil
}

func (r *fakeSymptomRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

func (r *fakeSymptomRepo) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*symptom.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[appointmentID]
	if !ok {
		return nil, symptom.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// ---- analysis repository ----

type fakeAnalysisRepo struct {
	mu      sync.Mutex
	records []*analysis.Record
}

func newFakeAnalysisRepo() *fakeAnalysisRepo {
	return &fakeAnalysisRepo{}
}

func (r *fakeAnalysisRepo) Create(ctx context.Context, rec *analysis.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeAnalysisRepo) GetByID(ctx context.Context, id uuid.UUID) (*analysis.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, analysis.ErrRecordNotFound
}

func (r *fakeAnalysisRepo) List(ctx context.Context, q *analysis.ListRecordsQuery) ([]*analysis.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*analysis.Record
	for _, rec := range r.records {
		if q.PatientID != nil && rec.PatientID != *q.PatientID {
			continue
		}
		if q.AppointmentID != nil && (rec.AppointmentID == nil || *rec.AppointmentID != *q.AppointmentID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeAnalysisRepo) LatestForAppointment(ctx context.Context, appointmentID uuid.UUID) (*analysis.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].AppointmentID != nil && *r.records[i].AppointmentID == appointmentID {
			return r.records[i], nil
		}
	}
	return nil, analysis.ErrRecordNotFound
}

func (r *fakeAnalysisRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ---- conversation repository ----

type fakeConversationRepo struct {
	mu    sync.Mutex
	turns map[uuid.UUID][]*conversation.Turn
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{turns: make(map[uuid.UUID][]*conversation.Turn)}
}

func (r *fakeConversationRepo) Append(ctx context.Context, t *conversation.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.turns[t.AppointmentID] {
		if existing.Seq == t.Seq {
			return conversation.ErrSequenceConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	r.turns[t.AppointmentID] = append(r.turns[t.AppointmentID], t)
	return nil
}

func (r *fakeConversationRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*conversation.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*conversation.Turn, len(r.turns[appointmentID]))
	copy(out, r.turns[appointmentID])
	return out, nil
}

func (r *fakeConversationRepo) NextSeq(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns[appointmentID]), nil
}

// ---- medical record repository ----

type fakeMedicalRecordRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*medicalrecord.Record
	upsertErr error
}

func newFakeMedicalRecordRepo() *fakeMedicalRecordRepo {
	return &fakeMedicalRecordRepo{records: make(map[uuid.UUID]*medicalrecord.Record)}
}

func (r *fakeMedicalRecordRepo) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*medicalrecord.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[appointmentID]
	if !ok {
		return nil, medicalrecord.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeMedicalRecordRepo) UpsertAIPrediction(ctx context.Context, appointmentID uuid.UUID, prediction, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	rec, ok := r.records[appointmentID]
	if !ok {
		rec = &medicalrecord.Record{ID: uuid.New(), AppointmentID: appointmentID}
		r.records[appointmentID] = rec
	}
	rec.AIDiseasePrediction = prediction
	rec.AISummary = summary
	return nil
}

func (r *fakeMedicalRecordRepo) SetDiagnosis(ctx context.Context, cmd *medicalrecord.DiagnoseCommand) (*medicalrecord.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[cmd.AppointmentID]
	if !ok {
		rec = &medicalrecord.Record{ID: uuid.New(), AppointmentID: cmd.AppointmentID}
		r.records[cmd.AppointmentID] = rec
	}
	rec.DoctorDiagnosis = cmd.DoctorDiagnosis
	rec.Prescription = cmd.Prescription
	cp := *rec
	return &cp, nil
}

// ---- external dependencies ----

type fakeObjectStore struct {
	mu    sync.Mutex
	puts  int
	err   error
	onPut func() // runs before the write, outside the lock
}

func (s *fakeObjectStore) PutImage(ctx context.Context, data []byte, contentType string) (string, error) {
	if s.onPut != nil {
		s.onPut()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.puts++
	return fmt.Sprintf("test/object-%d", s.puts), nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	calls   int
	payload json.RawMessage
	err     error
}

func (c *fakeClassifier) Classify(ctx context.Context, image []byte, contentType string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.payload == nil {
		return json.RawMessage(`{"condition":"eczema","confidence":0.91}`), nil
	}
	return c.payload, nil
}

func (c *fakeClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeLLM struct {
	generate func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeLLM) GenerateReply(ctx context.Context, prompt string) (string, error) {
	return f.generate(ctx, prompt)
}

func newAuditService() *AuditService {
	return NewAuditService(nopAuditRepo{}, testCollector(), testLogger())
}

type nopAuditRepo struct{}

func (nopAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error { return nil }

// jpegBytes returns a minimal payload carrying the JPEG magic prefix.
func jpegBytes() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
}
