package main

import (
	_ "giftflow/api/swagger" // swagger docs

	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftflow/internal/app"
	"giftflow/internal/config"
	"giftflow/internal/handler"
	"giftflow/internal/logger"
	"giftflow/internal/middleware"
	"giftflow/internal/model"
	"giftflow/internal/tracing"
	"giftflow/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Giftflow API
// @version         1.0
// @description     Auto-gift rules, executions, approval links and Trunkline operations.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", true).Fatalf("Configuration failed: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.ServiceName, cfg.JaegerEndpoint, log)
	if err != nil {
		log.Fatalf("Tracing setup failed: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)

	a, err := app.Build(ctx, cfg, log, wsHub)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer func() { _ = a.Close() }()
	log.Info("Connected to PostgreSQL successfully.")

	if cfg.RunJobsInAPI {
		go a.Runner.Start(ctx)
	}

	auth := middleware.NewAuth([]byte(cfg.JWTSecret), a.Users, log)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.JWTSecret))
	})

	public := router.Group("")
	customer := router.Group("", auth.RequireAuth())
	admin := router.Group("", auth.RequireAuth(), middleware.RequireRole(model.RoleAdmin))

	handler.NewApprovalHandler(a.Approvals).RegisterRoutes(public)

	handler.NewEventHandler(a.Events).RegisterRoutes(customer)
	handler.NewWishlistHandler(a.Wishlist).RegisterRoutes(customer)
	handler.NewRuleHandler(a.Rules).RegisterRoutes(customer)
	handler.NewExecutionHandler(a.Executions, a.Approvals).RegisterRoutes(customer)
	handler.NewOnboardingHandler(a.Onboarding).RegisterRoutes(customer)

	handler.NewAdminHandler(a.Executions, a.Alerts, a.Payment, a.Submission, a.Reconciler, a.Runner).RegisterRoutes(admin)
	handler.NewAuditHandler(a.Audit).RegisterRoutes(admin)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

func requestLogger(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := a.Logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last().Err).Error("request failed")
			return
		}
		entry.Debug("request")
	}
}
