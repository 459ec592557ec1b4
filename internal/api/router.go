// Package api serves the read-only ops endpoints: health checks and a view
// of the sync units, their attempts and the incremental watermarks.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api/handler"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api/middleware"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
)

// Options configures SetupRouter.
type Options struct {
	Mode      string
	Namespace string
	Location  *time.Location
	CORS      middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(store *repository.Store, opts Options) *gin.Engine {
	switch opts.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(opts.CORS))

	healthHandler := handler.NewHealthHandler(store.DB(), loc)
	unitHandler := handler.NewUnitHandler(store, opts.Namespace)

	r.GET("/health", healthHandler.Health)
	r.GET("/health/db", healthHandler.Database)
	r.GET("/health/time", healthHandler.Time)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/units", unitHandler.ListUnits)
		v1.GET("/units/:id", unitHandler.GetUnit)
		v1.GET("/watermarks", unitHandler.ListWatermarks)
	}

	return r
}
