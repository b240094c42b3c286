package routes

import (
	"net/http"

	"clinic-portal-server/internal/config"
	"clinic-portal-server/internal/handlers"
	"clinic-portal-server/internal/metrics"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/revocation"
	"clinic-portal-server/internal/services"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies is everything the routes need. Denylist, RateLimiter and
// Redis may be nil.
type Dependencies struct {
	Config       *config.Config
	Stores       *store.Stores
	Tokens       *utils.TokenService
	Appointments *services.AppointmentService
	Denylist     revocation.Denylist
	Metrics      *metrics.Metrics
	RateLimiter  *middleware.RateLimiter
	Redis        store.Pinger
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	s := deps.Stores
	auth := middleware.NewAuth(deps.Tokens, s.Users, deps.Denylist, deps.Metrics)

	authHandler := handlers.NewAuthHandler(s.Users, s.RefreshTokens, deps.Tokens, deps.Denylist, deps.Config)
	userHandler := handlers.NewUserHandler(s.Users, s.RefreshTokens)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Appointments)
	medicalRecordHandler := handlers.NewMedicalRecordHandler(s.MedicalRecords, s.Users)
	prescriptionHandler := handlers.NewPrescriptionHandler(s.Prescriptions, s.Users, s.Appointments)
	messageHandler := handlers.NewMessageHandler(s.Messages, s.Users)
	healthHandler := handlers.NewHealthHandler(map[string]store.Pinger{
		"database": s.Health,
		"redis":    deps.Redis,
	})

	throttle := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		throttle = deps.RateLimiter.RateLimit()
	}

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", throttle, authHandler.Register)
			authRoutes.POST("/login", throttle, authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}

		// Doctors are listed to anonymous visitors; admins see more.
		public.GET("/users/doctors", auth.OptionalAuthenticate(), userHandler.GetDoctors)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(auth.Authenticate())
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("/patients", middleware.MedicalStaffOnly(), userHandler.GetPatients)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.AdminOnly())
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.PATCH("/:id/verify", userHandler.VerifyUser)
				adminRoutes.PATCH("/:id/active", userHandler.SetActive)
			}
		}

		// Participant checks for reads and cancellation live in the booking guard.
		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", middleware.PatientOnly(), middleware.VerifiedOnly(), appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.PATCH("/:id/status", middleware.DoctorOnly(), appointmentHandler.UpdateAppointmentStatus)
			appointmentRoutes.PATCH("/:id/cancel", appointmentHandler.CancelAppointment)
		}

		recordAuthors := middleware.AuthorizeRoles(middleware.RecordAuthors)
		medicalRecordRoutes := private.Group("/medical-records")
		{
			medicalRecordRoutes.POST("", recordAuthors, middleware.VerifiedOnly(), medicalRecordHandler.CreateMedicalRecord)
			medicalRecordRoutes.GET("/patient/:patientId",
				middleware.AuthorizeRoles(middleware.MedicalStaff.With(models.RolePatient)),
				middleware.ResourceOwnershipGate("patientId"),
				medicalRecordHandler.GetMedicalRecordsForPatient)
			medicalRecordRoutes.GET("/attachments/:attachmentId", medicalRecordHandler.GetMedicalRecordAttachment)
			medicalRecordRoutes.GET("/:id", medicalRecordHandler.GetMedicalRecordByID)
			medicalRecordRoutes.PUT("/:id", medicalRecordHandler.UpdateMedicalRecord)
			medicalRecordRoutes.DELETE("/:id", medicalRecordHandler.DeleteMedicalRecord)
			medicalRecordRoutes.POST("/:id/attachments", recordAuthors, middleware.VerifiedOnly(), medicalRecordHandler.UploadMedicalRecordAttachment)
		}

		prescriptionRoutes := private.Group("/prescriptions")
		{
			prescriptionRoutes.POST("", middleware.DoctorOnly(), middleware.VerifiedOnly(), prescriptionHandler.CreatePrescription)
			prescriptionRoutes.GET("/patient/:patientId",
				middleware.AuthorizeRoles(middleware.HealthcareProviders.With(models.RolePatient)),
				middleware.ResourceOwnershipGate("patientId"),
				prescriptionHandler.GetPrescriptionsForPatient)
			prescriptionRoutes.PATCH("/:id/dispense", middleware.AuthorizeRoles(middleware.PharmacyRoles), prescriptionHandler.DispensePrescription)
			prescriptionRoutes.PATCH("/:id/cancel", middleware.AuthorizeRoles(middleware.DoctorRoles.With(models.RoleAdmin)), prescriptionHandler.CancelPrescription)
		}

		messageRoutes := private.Group("/messages")
		{
			messageRoutes.POST("/send", messageHandler.SendMessage)
			messageRoutes.GET("", messageHandler.GetMessagesForUser)
			messageRoutes.GET("/new", messageHandler.GetNewMessages)
			messageRoutes.GET("/conversations", messageHandler.GetConversations)
			messageRoutes.PATCH("/:messageId/read", messageHandler.MarkMessageAsRead)
		}
	}

	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		utils.Fail(c, http.StatusNotFound, "Route not found")
	})
}
