package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/internal/domain/analysis"
	"github.com/clinicflow/intake/internal/domain/appointment"
	"github.com/clinicflow/intake/internal/domain/conversation"
	"github.com/clinicflow/intake/internal/domain/medicalrecord"
	"github.com/clinicflow/intake/internal/domain/symptom"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:          true,
		TranslateError:       true,
		DisableAutomaticPing: false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"identity", "clinical", "audit"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&appointment.Appointment{},
		&symptom.Record{},
		&analysis.Record{},
		&conversation.Turn{},
		&medicalrecord.Record{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		{
			name:  "idx_appointments_doctor_schedule",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_doctor_schedule ON clinical.appointments (doctor_id, scheduled_at) WHERE deleted_at IS NULL AND status NOT IN ('cancelled', 'completed')`,
		},
		{
			name:  "idx_turns_appointment_seq",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS ux_turns_appointment_seq ON clinical.conversation_turns (appointment_id, seq)`,
		},
		{
			name:  "idx_analysis_appointment_latest",
			query: `CREATE INDEX IF NOT EXISTS idx_analysis_appointment_latest ON clinical.analysis_records (appointment_id, created_at DESC) WHERE appointment_id IS NOT NULL`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
