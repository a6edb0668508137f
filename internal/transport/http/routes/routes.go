package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/infra/config"
	"github.com/nycmed/hospital-records/internal/infra/security"
	"github.com/nycmed/hospital-records/internal/transport/http/handlers"
	"github.com/nycmed/hospital-records/internal/transport/http/middleware"
	"github.com/nycmed/hospital-records/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Passwords *usecase.PasswordService
	Resets    *usecase.PasswordResetService
	Visits    *usecase.VisitService
	Audit     *usecase.AuditTrail
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Services    ServiceSet
	Users       port.UserRepository
	TokenIssuer *security.TokenIssuer
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	if origins := deps.Config.App.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(middleware.CORS(origins))
	}

	authMiddleware := middleware.RequireAuth(deps.TokenIssuer)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth)
		authHandler.RegisterRoutes(api.Group("/auth"))

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, deps.Services.Resets)
		passwordGroup := api.Group("/password")
		passwordGroup.POST("/change", authMiddleware, passwordHandler.ChangePassword)
		passwordGroup.POST("/forgot", passwordHandler.ForgotPassword)
		passwordGroup.POST("/reset", passwordHandler.ResetPassword)

		visitHandler := handlers.NewVisitHandler(deps.Services.Visits)
		visitGroup := api.Group("/visits")
		visitGroup.Use(authMiddleware)
		visitGroup.POST("", middleware.RequireCapability(domain.CapVisitWrite), visitHandler.CreateVisit)
		visitGroup.GET("/:id", visitHandler.GetVisit)
		visitGroup.PUT("/:id/diagnosis", middleware.RequireCapability(domain.CapVisitWrite), visitHandler.UpdateDiagnosis)

		// Patient history reads self-authorize inside the handler so
		// visit:read-own holders can reach their own records.
		api.GET("/patients/:id/visits", authMiddleware, visitHandler.ListPatientVisits)

		adminHandler := handlers.NewAdminHandler(deps.Users, deps.Services.Passwords, deps.Services.Audit)
		adminGroup := api.Group("/admin")
		adminGroup.Use(authMiddleware)
		adminGroup.GET("/audit", middleware.RequireCapability(domain.CapAuditRead), adminHandler.ListAudit)
		adminGroup.POST("/audit/purge", middleware.RequireCapability(domain.CapAuditRead), adminHandler.PurgeAudit)
		adminGroup.POST("/users/:id/unlock", middleware.RequireCapability(domain.CapUserManage), adminHandler.UnlockUser)
		adminGroup.POST("/users/:id/force-password-change", middleware.RequireCapability(domain.CapUserManage), adminHandler.ForcePasswordChange)
	}

	return r
}
