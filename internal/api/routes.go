package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/api/handlers"
	"github.com/veilora/veil-oracle-go/internal/database"
	"github.com/veilora/veil-oracle-go/internal/middleware"
	"github.com/veilora/veil-oracle-go/internal/services"
)

// Dependencies bundles everything the route tree needs. DB and Redis are
// optional; handlers treat nil as "backend disabled".
type Dependencies struct {
	Oracle  *services.OracleService
	Privacy *services.PrivacyService
	DB      *database.PostgresDB
	Redis   *database.RedisClient
	Auth    *middleware.AuthMiddleware
	Logger  *logrus.Logger
}

// SetupRoutes wires the HTTP surface. Operational endpoints (metrics, audit
// trail) sit behind JWT auth; the audit trail additionally demands the
// operator role.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	oracleHandler := handlers.NewOracleHandler(deps.Oracle, deps.Logger)
	privacyHandler := handlers.NewPrivacyHandler(deps.Privacy, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Oracle, deps.DB, deps.Redis)

	router.GET("/health", healthHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/feeds", oracleHandler.ListFeeds)
		// Feed ids contain a slash, hence the wildcard.
		v1.GET("/price/*feed", oracleHandler.GetPrice)

		private := v1.Group("/private")
		{
			private.POST("/price", privacyHandler.GetPrivatePrice)
			private.POST("/verify", privacyHandler.VerifyProof)
		}

		v1.GET("/privacy/key", privacyHandler.GetPublicKey)
		v1.GET("/privacy/metrics", deps.Auth.RequireAuth(), privacyHandler.GetMetrics)
		v1.GET("/privacy/audit", deps.Auth.RequireRole("operator"), privacyHandler.GetAuditLog)
	}
}
