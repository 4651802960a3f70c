package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/app"
	iauth "github.com/charlesng35/teamchat/internal/auth"
	"github.com/charlesng35/teamchat/internal/handlers"
	"github.com/charlesng35/teamchat/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers every route.
// rateStore may be nil, in which case rate limits are counted per process.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svc *Services, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	r.Use(middleware.BodyLimit(middleware.DefaultMaxBodyBytes))
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Store:       rateStore,
		MaxRequests: cfg.Server.RateLimit.Requests,
		Window:      cfg.Server.RateLimit.Window,
	}))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	authHandler := handlers.NewAuthHandler(svc.Users, jwt)
	inviteHandler := handlers.NewInviteHandler(svc.Invites, svc.Workspaces, jwt)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/invites/:token", inviteHandler.Lookup)
		auth.POST("/invites/accept", middleware.OptionalAuth(jwt), inviteHandler.Accept)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	api.GET("/auth/me", authHandler.Me)

	registerWorkspaceRoutes(api, workspaceRouteDeps{
		Workspaces: handlers.NewWorkspaceHandler(svc.Workspaces),
		Invites:    inviteHandler,
		Channels:   handlers.NewChannelHandler(svc.Workspaces, svc.Messages),
	})
	registerConversationRoutes(api, handlers.NewConversationHandler(svc.Conversations, svc.Messages, svc.Users))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
