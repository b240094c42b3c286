package routes

import (
	"fmt"

	"clinic-portal-server/internal/config"
	"clinic-portal-server/internal/metrics"
	"clinic-portal-server/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the engine with the global middleware chain. Recovery is
// innermost so a panicking request is still logged and counted as a 500.
func NewRouter(cfg *config.Config, m *metrics.Metrics) (*gin.Engine, error) {
	router := gin.New()
	// nil trusts no proxy: ClientIP is the socket peer.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	router.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Metrics(m),
	)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderXRequestID}
	corsConfig.ExposeHeaders = []string{middleware.HeaderXRequestID}
	router.Use(cors.New(corsConfig), middleware.Recovery())

	return router, nil
}
