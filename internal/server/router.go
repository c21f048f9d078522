package server

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/securecloud/api/internal/admin"
	"github.com/securecloud/api/internal/blob"
	"github.com/securecloud/api/internal/config"
	"github.com/securecloud/api/internal/file"
	"github.com/securecloud/api/internal/identity"
	"github.com/securecloud/api/internal/metrics"
	"github.com/securecloud/api/internal/user"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	Logger      *zap.Logger
	DB          *pgxpool.Pool
	Blobs       *blob.Store
	Identity    *identity.Client
	FileService *file.Service
	UserService *user.Service
	Admin       *admin.Handler
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(deps.Logger))

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/api")
	api.Use(identity.Authenticate(deps.Identity))

	file.RegisterRoutes(api, deps.FileService, deps.Config.Storage.MaxUploadBytes)
	user.RegisterRoutes(api, deps.UserService)

	adminGroup := api.Group("/admin")
	adminGroup.Use(identity.RequireRole("admin"))
	admin.RegisterRoutes(adminGroup, deps.Admin)

	return router
}
