package api

import (
	"github.com/gin-gonic/gin"
)

// Router is the admin HTTP surface: status, manual scan trigger,
// outbox replay, health. Not the card-based configuration UI — that
// is out of scope — just the operational surface a long-running
// worker needs to be observable and kickable.
type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	statusHandler *StatusHandler,
	scanHandler *ScanHandler,
	replayHandler *ReplayHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()

	r.GET("/health", HealthCheck)

	admin := r.Group("/")
	admin.Use(AuthMiddleware(jwtSecret))
	{
		admin.GET("/status", statusHandler.Status)
		admin.POST("/scans", scanHandler.StartScan)
		admin.POST("/events/replay", replayHandler.ReplayFailed)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
