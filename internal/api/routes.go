// Package api provides the HTTP API for the slawatch server.
package api

import (
	"github.com/MacJediWizard/slawatch/internal/api/handlers"
	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router. gatherer backs /metrics.
func NewRouter(engine *sla.Engine, database handlers.DatabaseHealthChecker, gatherer prometheus.Gatherer, logger zerolog.Logger) *Router {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	handlers.NewHealthHandler(database, logger).RegisterPublicRoutes(r.Engine)
	r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := r.Engine.Group("/api/v1")
	handlers.NewSLAHandler(engine, logger).RegisterRoutes(v1)

	r.logger.Debug().Int("routes", len(r.Engine.Routes())).Msg("routes registered")
	return r
}
