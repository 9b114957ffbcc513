package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/cache"
	"github.com/clinicflow/intake/internal/client/classifier"
	"github.com/clinicflow/intake/internal/client/llm"
	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/domain/medicalrecord"
	"github.com/clinicflow/intake/internal/domain/symptom"
	v1 "github.com/clinicflow/intake/internal/handler/v1"
	"github.com/clinicflow/intake/internal/service"
	"github.com/clinicflow/intake/internal/storage"
	"github.com/clinicflow/intake/pkg/auth"
	"github.com/clinicflow/intake/pkg/database"
	"github.com/clinicflow/intake/pkg/logger"
	"github.com/clinicflow/intake/pkg/metrics"
	"github.com/clinicflow/intake/pkg/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("loading config: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("building logger: " + err.Error())
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	redisCache, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		// The cache is an optimization; the service runs without it.
		log.Warn("redis unavailable, reference caching disabled", zap.Error(err))
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	objectStore, err := storage.New(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	m := metrics.NewCollector(cfg.App.Name)
	jwtManager := auth.NewJWTManager(cfg.JWT)

	userRepo := domain.NewUserRepo(db)
	auditRepo := domain.NewAuditRepo(db)
	apptRepo := appointment.NewGormRepository(db)
	symptomRepo := symptom.NewGormRepository(db)
	analysisRepo := analysis.NewGormRepository(db)
	convRepo := conversation.NewGormRepository(db)
	medRepo := medicalrecord.NewGormRepository(db)

	auditSvc := service.NewAuditService(auditRepo, m, log)
	defer auditSvc.Shutdown()

	authSvc := service.NewAuthService(userRepo, jwtManager, auditSvc, log)
	apptSvc := service.NewAppointmentService(apptRepo, userRepo, auditSvc, m, cfg.Intake, log)
	refSvc := service.NewReferenceService(userRepo, redisCache, cfg.Redis.ReferenceTTL, log)
	medSvc := service.NewMedicalRecordService(medRepo, apptRepo, auditSvc, log)

	bridge := service.NewAnalysisBridge(
		analysisRepo, objectStore, classifier.New(cfg.Classifier), m, cfg.Classifier.MaxImageBytes, log,
	)
	engine := service.NewTriageEngine(
		convRepo, symptomRepo, analysisRepo, medRepo, llm.New(cfg.LLM), m, log,
	)
	intakeSvc := service.NewIntakeService(apptRepo, symptomRepo, bridge, engine, objectStore, auditSvc, m, log)

	router := &v1.Router{
		Config:         cfg,
		Log:            log,
		Metrics:        m,
		JWT:            jwtManager,
		Auth:           v1.NewAuthHandler(authSvc, refSvc),
		Appointments:   v1.NewAppointmentHandler(apptSvc),
		Intake:         v1.NewIntakeHandler(intakeSvc, cfg.Classifier.MaxImageBytes),
		Analyses:       v1.NewAnalysisHandler(bridge),
		MedicalRecords: v1.NewMedicalRecordHandler(medSvc),
		Reference:      v1.NewReferenceHandler(refSvc),
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Build(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
