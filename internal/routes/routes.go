package routes

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"signbridge-server/internal/audit"
	"signbridge-server/internal/config"
	"signbridge-server/internal/handlers"
	"signbridge-server/internal/logger"
	"signbridge-server/internal/metrics"
	"signbridge-server/internal/middleware"
	"signbridge-server/internal/models"
	"signbridge-server/internal/notify"
	"signbridge-server/internal/scheduling"
	"signbridge-server/internal/video"
)

// Services are the long-lived components behind the handlers. The CLI
// builds them too, to run reminders outside a request.
type Services struct {
	Recorder     *audit.Recorder
	Manager      *scheduling.Manager
	Availability *scheduling.AvailabilityCalculator
	Notifier     *notify.Notifier
	Video        *video.Provisioner
	DefaultZone  *time.Location
}

// NewServices wires the services from configuration.
func NewServices(db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Services, error) {
	zone, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("load default time zone: %w", err)
	}

	recorder := audit.NewRecorder(audit.NewGormSink(db), log)
	store := scheduling.NewGormStore(db)

	sender, err := notify.NewSender(cfg.Mailer, cfg.IsDevelopment(), log)
	if err != nil {
		return nil, err
	}

	var rooms video.RoomProvider
	if cfg.Video.DailyAPIKey != "" {
		rooms = video.NewDailyClient(cfg.Video.DailyBaseURL, cfg.Video.DailyAPIKey, nil)
	} else {
		log.WithComponent("video").Warn("DAILY_API_KEY not set, video rooms are disabled")
	}

	return &Services{
		Recorder:     recorder,
		Manager:      scheduling.NewManager(store, recorder, log),
		Availability: scheduling.NewAvailabilityCalculator(store),
		Notifier:     notify.NewNotifier(db, sender, recorder, cfg.AppURL, zone, log),
		Video:        video.NewProvisioner(db, rooms, recorder, cfg.Video.RoomPrefix, cfg.Video.TokenTTL, log),
		DefaultZone:  zone,
	}, nil
}

// SetupRoutes configures the application routes and returns the services
// behind them so the caller can drain background work on shutdown.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Services, error) {
	svc, err := NewServices(db, cfg, log)
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(db, cfg, svc.Recorder, svc.Notifier, log)
	statsHandler := handlers.NewStatsHandler(db, svc.DefaultZone)
	userHandler := handlers.NewUserHandler(db)
	appointmentHandler := handlers.NewAppointmentHandler(svc.Manager, svc.Availability, svc.Notifier, svc.DefaultZone)
	videoHandler := handlers.NewVideoHandler(svc.Video)
	medicalRecordHandler := handlers.NewMedicalRecordHandler(db, svc.Recorder, log)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
			authRoutes.POST("/password/forgot", authHandler.ForgotPassword)
			authRoutes.POST("/password/reset", authHandler.ResetPassword)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
			authRoutesPrivate.PUT("/password", authHandler.ChangePassword)
		}

		private.GET("/providers", userHandler.GetProviders)
		private.GET("/providers/:id/availability", appointmentHandler.GetAvailability)
		private.GET("/interpreters", userHandler.GetInterpreters)
		private.GET("/patients", middleware.RoleAuthMiddleware(models.RoleProvider, models.RoleAdmin), userHandler.GetPatients)

		adminRoutes := private.Group("/users")
		adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			adminRoutes.POST("", userHandler.CreateUser)
			adminRoutes.GET("", userHandler.GetUsers)
			adminRoutes.GET("/:id", userHandler.GetUserByID)
			adminRoutes.PUT("/:id", userHandler.UpdateUser)
			adminRoutes.DELETE("/:id", userHandler.DeleteUser)
		}

		private.GET("/admin/stats", middleware.RoleAuthMiddleware(models.RoleAdmin), statsHandler.GetStats)

		// Role and party checks live in the scheduling manager.
		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.PATCH("/:id", appointmentHandler.UpdateAppointment)
			appointmentRoutes.POST("/:id/cancel", appointmentHandler.CancelAppointment)
			appointmentRoutes.POST("/:id/reschedule", appointmentHandler.RescheduleAppointment)
			appointmentRoutes.POST("/:id/start", appointmentHandler.StartAppointment)
			appointmentRoutes.POST("/:id/complete", appointmentHandler.CompleteAppointment)
			appointmentRoutes.POST("/:id/no-show", appointmentHandler.MarkNoShow)
			appointmentRoutes.PUT("/:id/interpreter", appointmentHandler.AssignInterpreter)
			appointmentRoutes.POST("/:id/video-room", videoHandler.JoinVideoRoom)
		}

		medicalRecordRoutes := private.Group("/medical-records")
		{
			medicalRecordRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleProvider, models.RolePatient), medicalRecordHandler.CreateMedicalRecord)
			medicalRecordRoutes.GET("/patient/:patientId", medicalRecordHandler.GetMedicalRecordsForPatient)
			medicalRecordRoutes.GET("/attachments/:attachmentId", medicalRecordHandler.GetMedicalRecordAttachment)
			medicalRecordRoutes.GET("/:id", medicalRecordHandler.GetMedicalRecordByID)
			medicalRecordRoutes.PUT("/:id", medicalRecordHandler.UpdateMedicalRecord)
			medicalRecordRoutes.DELETE("/:id", medicalRecordHandler.DeleteMedicalRecord)
			medicalRecordRoutes.POST("/:id/attachments", medicalRecordHandler.UploadMedicalRecordAttachment)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		status, code := "UP", 200
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "DOWN", 503
		}
		c.JSON(code, gin.H{"status": status})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return svc, nil
}
