package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boincwatch/app/handler"
	"boincwatch/app/middleware"
)

// Router Router
type Router struct {
	statusHandler *handler.StatusHandler
}

// NewRouter creates a new Router
func NewRouter(statusHandler *handler.StatusHandler) *Router {
	return &Router{statusHandler: statusHandler}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/healthz", r.statusHandler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.GET("/jobs", r.statusHandler.Jobs)
		api.POST("/jobs/:name/run", r.statusHandler.TriggerJob)
	}
}
