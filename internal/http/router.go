package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/auth"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/config"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/http/handler"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/metrics"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/portable"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
)

// AssetsPath is where the transfer page loads its scripts from.
const AssetsPath = "/plugins/ctfd-portable-challenges-plugin/assets"

type Deps struct {
	Importer *portable.Importer
	Exporter *portable.Exporter
	Storage  storage.Storage
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(recovery(deps.Logger), requestLogger(deps.Logger))

	healthHandler := handler.NewHealthHandler()
	fileHandler := handler.NewFileHandler(deps.Storage, deps.Logger)
	transferHandler := handler.NewTransferHandler(deps.Importer, deps.Exporter,
		cfg.HTTP.MaxArchiveSize, cfg.HTTP.TempDir, deps.Metrics, deps.Logger)
	errorMode, _ := transfer.ParseContentMode(cfg.HTTP.ErrorMode)
	pageHandler := handler.NewPageHandler(AssetsPath, errorMode, deps.Logger)

	router.GET("/healthz", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	router.Static(AssetsPath, cfg.HTTP.AssetsDir)

	// attachments are public, like challenge files on the scoreboard
	router.GET("/files/*fileId", fileHandler.GetFile)

	adminRoutes := router.Group("/admin")
	if cfg.Auth.JWKSUrl != "" {
		adminRoutes.Use(auth.AdminsOnly(auth.Config{
			JWKSUrl:      cfg.Auth.JWKSUrl,
			Issuer:       cfg.Auth.Issuer,
			Audience:     cfg.Auth.Audience,
			JWKSCacheTTL: cfg.Auth.JWKSCacheTTL,
			AdminRole:    cfg.Auth.AdminRole,
			CookieName:   cfg.Auth.CookieName,
		}, deps.Logger)...)
	} else {
		deps.Logger.Warn().Msg("AUTH_JWKS_URL is not set, admin routes are unauthenticated")
	}
	{
		adminRoutes.GET("/yaml", transferHandler.Export)
		adminRoutes.POST("/yaml", transferHandler.Import)
		adminRoutes.GET("/transfer", pageHandler.Transfer)
	}

	return router
}
