package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
)

// Routes bundles the dependencies of every route group
type Routes struct {
	Dispatcher Dispatcher
	Store      store.StatusStore
	Files      storage.Storage
	// TokenAuth guards the callback routes. Nil leaves them open.
	TokenAuth gin.HandlerFunc
	// IPAddress is stored on enqueued entries
	IPAddress string
	// RunLimiter, when set, guards the run routes. Enqueue is not limited.
	RunLimiter gin.HandlerFunc
}

// Register mounts /health, /queue and /endpoint-process on router
func (r Routes) Register(router gin.IRouter) {
	router.GET("/health", HealthCheck(r.Store))

	var runGuards []gin.HandlerFunc
	if r.RunLimiter != nil {
		runGuards = append(runGuards, r.RunLimiter)
	}
	NewQueueHandler(r.Dispatcher, r.Store, r.Files, r.IPAddress).Register(router.Group("/queue"), runGuards...)

	tokenAuth := r.TokenAuth
	if tokenAuth == nil {
		tokenAuth = func(c *gin.Context) { c.Next() }
	}
	NewEndpointProcessHandler(r.Store, r.Files).Register(router.Group("/endpoint-process"), tokenAuth)
}
