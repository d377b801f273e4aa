package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/ai"
	"github.com/unforkableco/fabrikator/internal/app"
	iauth "github.com/unforkableco/fabrikator/internal/auth"
	"github.com/unforkableco/fabrikator/internal/handlers"
	"github.com/unforkableco/fabrikator/internal/middleware"
	"github.com/unforkableco/fabrikator/internal/realtime"
	"github.com/unforkableco/fabrikator/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
// The generator may be nil when AI suggestions are disabled.
func NewRouter(db *gorm.DB, cfg *app.Config, tokens *iauth.TokenService, hub *realtime.Hub, generator ai.Generator) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))

	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Services
	versions, err := services.NewVersionService(db)
	if err != nil {
		return nil, err
	}
	projects, err := services.NewProjectService(db)
	if err != nil {
		return nil, err
	}
	suggestions, err := services.NewSuggestionService(db, versions, generator)
	if err != nil {
		return nil, err
	}
	authService, err := iauth.NewService(db, tokens)
	if err != nil {
		return nil, err
	}

	components, err := services.NewComponentService(versions)
	if err != nil {
		return nil, err
	}
	requirements, err := services.NewRequirementService(versions)
	if err != nil {
		return nil, err
	}
	wiring, err := services.NewWiringService(versions)
	if err != nil {
		return nil, err
	}
	parts, err := services.NewProduct3DService(versions)
	if err != nil {
		return nil, err
	}
	documents, err := services.NewDocumentService(versions)
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(authService)
	realtimeHandler := handlers.NewRealtimeHandler(hub, tokens)

	// Public routes
	r.POST("/api/auth/login", authHandler.Login)
	r.GET("/api/ws", realtimeHandler.Stream)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(tokens))

	api.GET("/auth/me", authHandler.Me)

	projectHandler := handlers.NewProjectHandler(projects)
	projectRoutes := api.Group("/projects")
	{
		projectRoutes.GET("", projectHandler.List)
		projectRoutes.POST("", projectHandler.Create)
		projectRoutes.GET("/:id", projectHandler.Get)
		projectRoutes.PATCH("/:id", projectHandler.Update)
		projectRoutes.DELETE("/:id", projectHandler.Delete)
		projectRoutes.GET("/:id/history", projectHandler.History)
	}

	suggestionHandler := handlers.NewSuggestionHandler(suggestions, hub)
	projectRoutes.GET("/:id/suggestions", suggestionHandler.List)
	projectRoutes.POST("/:id/suggestions", suggestionHandler.Propose)
	api.GET("/suggestions/:suggestionId", suggestionHandler.Get)
	api.POST("/suggestions/:suggestionId/accept", suggestionHandler.Accept)
	api.POST("/suggestions/:suggestionId/reject", suggestionHandler.Reject)

	// Versioned artifact routes, one block per kind.
	entities := []struct {
		path    string
		handler *handlers.EntityHandler
	}{
		{"components", handlers.NewEntityHandler(components, hub)},
		{"requirements", handlers.NewEntityHandler(requirements, hub)},
		{"wiring", handlers.NewEntityHandler(wiring, hub)},
		{"parts", handlers.NewEntityHandler(parts, hub)},
		{"documents", handlers.NewEntityHandler(documents, hub)},
	}
	for _, e := range entities {
		projectRoutes.GET("/:id/"+e.path, e.handler.ListByProject)
		projectRoutes.POST("/:id/"+e.path, e.handler.Create)

		kind := api.Group("/" + e.path)
		{
			kind.GET("/:rootId", e.handler.Get)
			kind.GET("/:rootId/versions", e.handler.History)
			kind.POST("/:rootId/versions", e.handler.AddVersion)
			kind.GET("/:rootId/versions/next", e.handler.NextVersionNumber)
			kind.POST("/:rootId/versions/:versionId/validate", e.handler.Validate)
		}
	}

	return r, nil
}
