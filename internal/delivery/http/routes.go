package http

import (
	nethttp "net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pricechecker/admin/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Cookie-backed session; the authenticated flag and session ID live here
	store := cookie.NewStore([]byte(cfg.Session.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: nethttp.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(sessionName, store))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// Admin UI
	router.GET("/", ServeUI)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", handler.Login)
			auth.POST("/logout", handler.Logout)
			auth.GET("/session", handler.SessionStatus)
		}

		// Everything past the credential gate
		protected := v1.Group("")
		protected.Use(RequireAuth())
		{
			protected.GET("/catalog", handler.GetCatalog)
			protected.PUT("/catalog/rows", handler.UpdateRows)
			protected.POST("/catalog/save", handler.SaveCatalog)
			protected.POST("/upload", handler.Upload)
			protected.POST("/upload/commit", handler.UploadCommit)
		}
	}

	return router
}
