package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/clinicflow/intake/internal/client/classifier"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/storage"
	"github.com/clinicflow/intake/pkg/metrics"
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// AnalyzeImageCommand carries one uploaded photo through validation, storage
// and classification.
type AnalyzeImageCommand struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	AnalysisType  string
	Image         []byte
}

// AnalysisBridge validates uploaded images, stores them, forwards them to the
// external classifier and persists the result. A record exists only for
// analyses that fully succeeded.
type AnalysisBridge struct {
	repo       analysis.Repository
	store      storage.ObjectStore
	classifier classifier.Client
	metrics    *metrics.Collector
	maxBytes   int64
	log        *zap.Logger
}

func NewAnalysisBridge(
	repo analysis.Repository,
	store storage.ObjectStore,
	cls classifier.Client,
	m *metrics.Collector,
	maxBytes int64,
	log *zap.Logger,
) *AnalysisBridge {
	return &AnalysisBridge{
		repo:       repo,
		store:      store,
		classifier: cls,
		metrics:    m,
		maxBytes:   maxBytes,
		log:        log,
	}
}

// Analyze runs the full pipeline. Format checks happen before any byte leaves
// the process, so an unsupported upload costs neither storage nor a
// classifier call.
func (b *AnalysisBridge) Analyze(ctx context.Context, cmd *AnalyzeImageCommand) (*analysis.Record, error) {
	if len(cmd.Image) == 0 {
		return nil, analysis.ErrEmptyImage
	}
	if int64(len(cmd.Image)) > b.maxBytes {
		return nil, analysis.ErrImageTooLarge
	}

	contentType, err := sniffImageFormat(cmd.Image)
	if err != nil {
		b.metrics.AnalysesTotal.WithLabelValues("unsupported").Inc()
		return nil, err
	}

	if cmd.AnalysisType == "" {
		cmd.AnalysisType = "skin"
	}

	imageRef, err := b.store.PutImage(ctx, cmd.Image, contentType)
	if err != nil {
		b.metrics.AnalysesTotal.WithLabelValues("service_error").Inc()
		b.log.Error("failed to store analysis image", zap.Error(err))
		return nil, fmt.Errorf("%w: storing image", ErrAnalysisService)
	}

	payload, err := b.classifier.Classify(ctx, cmd.Image, contentType)
	if err != nil {
		b.metrics.AnalysesTotal.WithLabelValues("service_error").Inc()
		b.log.Error("classifier call failed",
			zap.String("image_ref", imageRef),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisService, err)
	}

	rec := &analysis.Record{
		PatientID:     cmd.PatientID,
		AppointmentID: cmd.AppointmentID,
		AnalysisType:  cmd.AnalysisType,
		ImageRef:      imageRef,
		ResultPayload: datatypes.JSON(payload),
	}

	if err := b.repo.Create(ctx, rec); err != nil {
		b.metrics.AnalysesTotal.WithLabelValues("service_error").Inc()
		return nil, fmt.Errorf("persisting analysis record: %w", err)
	}

	b.metrics.AnalysesTotal.WithLabelValues("ok").Inc()
	return rec, nil
}

func (b *AnalysisBridge) Get(ctx context.Context, id uuid.UUID) (*analysis.Record, error) {
	return b.repo.GetByID(ctx, id)
}

func (b *AnalysisBridge) List(ctx context.Context, q *analysis.ListRecordsQuery) ([]*analysis.Record, error) {
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return b.repo.List(ctx, q)
}

// sniffImageFormat identifies the upload by magic bytes. Client-supplied
// content types are ignored; only JPEG and PNG are accepted.
func sniffImageFormat(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg", nil
	case bytes.HasPrefix(data, pngMagic):
		return "image/png", nil
	default:
		return "", analysis.ErrUnsupportedFormat
	}
}
