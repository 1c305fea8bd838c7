package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tamamhuda/envlink-api-sub000/internal/config"
	"github.com/tamamhuda/envlink-api-sub000/internal/handler"
	"github.com/tamamhuda/envlink-api-sub000/internal/middleware"
	"github.com/tamamhuda/envlink-api-sub000/internal/repository"
	"github.com/tamamhuda/envlink-api-sub000/internal/service"
	"github.com/tamamhuda/envlink-api-sub000/internal/storage"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

type Server struct {
	router       *gin.Engine
	config       *config.Config
	redis        *storage.RedisClient
	postgres     *storage.Postgres
	authService  *service.AuthService
	authHandler  *handler.AuthHandler
	linkHandler  *handler.LinkHandler
	usageHandler *handler.UsageHandler
	throttleMW   *middleware.Throttle
	httpServer   *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Repositories
	userRepo := repository.NewUserRepository(postgres)
	subRepo := repository.NewSubscriptionRepository(postgres)
	linkRepo := repository.NewLinkRepository(postgres)
	usageRepo := repository.NewUsageRepository(postgres)

	// Services
	authService := service.NewAuthService(userRepo, redis, cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	subService := service.NewSubscriptionService(subRepo)
	linkService := service.NewLinkService(linkRepo, redis)
	usageService := service.NewUsageService(usageRepo)

	// Throttle engine
	catalog, err := throttle.NewCatalog(cfg.Throttle.Scopes)
	if err != nil {
		return nil, err
	}
	planSet, err := throttle.NewPlanSet(cfg.Throttle.Plans)
	if err != nil {
		return nil, err
	}

	store := throttle.NewRedisCounterStore(redis)
	registry := throttle.NewRegistry(store)
	resolver := throttle.NewPlanResolver(planSet, subService)
	throttleMW := middleware.NewThrottle(registry, catalog, resolver, usageService)

	s := &Server{
		router:       router,
		config:       cfg,
		redis:        redis,
		postgres:     postgres,
		authService:  authService,
		authHandler:  handler.NewAuthHandler(authService),
		linkHandler:  handler.NewLinkHandler(linkService, cfg.Server.BaseURL),
		usageHandler: handler.NewUsageHandler(usageService),
		throttleMW:   throttleMW,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
}

func (s *Server) setupRoutes() {
	t := s.throttleMW

	s.router.GET("/health", s.healthCheck)

	// Public redirect; throttling skipped, redirects are the product
	s.router.GET("/:code",
		t.Handle(throttle.NewRoute("redirect").Skip().Build()),
		s.linkHandler.Redirect)

	api := s.router.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register",
			t.Handle(throttle.NewRoute("register").Build()),
			s.authHandler.Register)
		auth.POST("/login",
			t.Handle(throttle.NewRoute("login").Build()),
			s.authHandler.Login)
		auth.GET("/verify",
			t.Handle(throttle.NewRoute("verify").Build()),
			s.authHandler.Verify)
		auth.POST("/resend-verification",
			middleware.RequireAuth(s.authService),
			t.Handle(throttle.NewRoute("resend-email").Build()),
			s.authHandler.ResendVerification)
		auth.GET("/me",
			middleware.RequireAuth(s.authService),
			t.Handle(throttle.NewRoute(throttle.DefaultScopeName).Build()),
			s.authHandler.Me)
	}

	links := api.Group("/links")
	{
		// Anonymous callers fall back to the fixed "shorten" scope policy
		links.POST("",
			middleware.OptionalAuth(s.authService),
			t.Handle(throttle.NewRoute("shorten").PlanLimited().Build()),
			s.linkHandler.Shorten)
		links.GET("",
			middleware.RequireAuth(s.authService),
			t.Handle(throttle.NewRoute(throttle.DefaultScopeName).Build()),
			s.linkHandler.List)
		links.DELETE("/:id",
			middleware.RequireAuth(s.authService),
			t.Handle(throttle.NewRoute(throttle.DefaultScopeName).Build()),
			s.linkHandler.Delete)
	}

	usage := api.Group("/usage")
	usage.Use(middleware.RequireAuth(s.authService))
	{
		usage.GET("",
			t.Handle(throttle.NewRoute(throttle.DefaultScopeName).Build()),
			s.usageHandler.GetUsage)
		usage.GET("/:scope/history",
			t.Handle(throttle.NewRoute(throttle.DefaultScopeName).Build()),
			s.usageHandler.GetHistory)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		log.Printf("Redis health check failed: %v", err)
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "envlink-api",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting envlink API on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
