package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/pkg/auth"
	"github.com/clinicflow/intake/pkg/metrics"
)

// Router bundles everything the HTTP layer needs.
type Router struct {
	Config         *config.Config
	Log            *zap.Logger
	Metrics        *metrics.Collector
	JWT            *auth.JWTManager
	Auth           *AuthHandler
	Appointments   *AppointmentHandler
	Intake         *IntakeHandler
	Analyses       *AnalysisHandler
	MedicalRecords *MedicalRecordHandler
	Reference      *ReferenceHandler
}

func (r *Router) Build() *gin.Engine {
	if r.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		RequestID(),
		RequestLogger(r.Log),
		Metrics(r.Metrics),
		CORS(r.Config.CORS),
		RateLimit(r.Config.RateLimit),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": r.Config.App.Version})
	})
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := engine.Group("/api/v1")

	authGroup := api.Group("/auth", AuthRateLimit(r.Config.RateLimit))
	{
		authGroup.POST("/register", r.Auth.Register)
		authGroup.POST("/login", r.Auth.Login)
		authGroup.POST("/refresh", r.Auth.Refresh)
		authGroup.POST("/password", Auth(r.JWT), r.Auth.ChangePassword)
	}

	// Booking screens need these before login.
	reference := api.Group("/reference")
	{
		reference.GET("/doctors", r.Reference.ListDoctors)
		reference.GET("/departments", r.Reference.ListDepartments)
	}

	protected := api.Group("", Auth(r.JWT))
	{
		appointments := protected.Group("/appointments")
		{
			appointments.POST("", r.Appointments.Create)
			appointments.GET("", r.Appointments.List)
			appointments.GET("/:id", r.Appointments.Get)
			appointments.POST("/:id/cancel", r.Appointments.Cancel)
			appointments.POST("/:id/complete", RequireRole(domain.RoleDoctor, domain.RoleAdmin), r.Appointments.Complete)

			appointments.PUT("/:id/symptoms", r.Intake.SubmitSymptoms)
			appointments.GET("/:id/symptoms", r.Intake.GetSymptoms)
			appointments.POST("/:id/messages", r.Intake.PostMessage)
			appointments.GET("/:id/conversation", r.Intake.GetConversation)

			appointments.GET("/:id/record", r.MedicalRecords.Get)
			appointments.PUT("/:id/diagnosis", RequireRole(domain.RoleDoctor, domain.RoleAdmin), r.MedicalRecords.Diagnose)
		}

		analyses := protected.Group("/analyses")
		{
			analyses.POST("", r.Intake.AnalyzeImage)
			analyses.GET("", r.Analyses.List)
			analyses.GET("/:id", r.Analyses.Get)
		}
	}

	return engine
}
