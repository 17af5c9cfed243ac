package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendance/internal/account"
	"attendance/internal/auth"
	"attendance/internal/code"
	"attendance/internal/config"
	"attendance/internal/handler"
	"attendance/internal/httpmiddleware"
	"attendance/internal/leaderboard"
	"attendance/internal/ledger"
	"attendance/internal/queue"
	"attendance/internal/schedule"
	"attendance/internal/store"
	"attendance/internal/verify"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	generator := code.NewGenerator(cfg.CodeDigits)
	var codes code.Store
	if cfg.CodeStoreBackend == "memory" {
		codes = code.NewMemoryStore(generator, cfg.CodeTTL)
	} else {
		codes = code.NewRedisStore(redisClient.Client, generator, cfg.CodeTTL)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, store.Key("ledger-writes"))
	}

	users := account.NewRepository(db.Client)
	sched := schedule.NewRepository(db.Client)
	records := ledger.NewRepository(db.Client)

	accounts := account.NewService(users, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	verifier := verify.NewService(generator, codes, sched, sched, records, q)
	boards := leaderboard.NewService(sched, records, redisClient.Client, cfg.LeaderboardCacheTTL, cfg.ShowTop)
	denylist := auth.NewDenylist(redisClient.Client)

	rotator := code.NewRotator(codes, sched, cfg.CodeTTL)
	if err := rotator.Start(); err != nil {
		return err
	}
	defer rotator.Stop()

	h := handler.New(accounts, users, sched, codes, verifier, boards, records, denylist)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/account/register", h.Register)
	r.POST("/account/login", h.Login)

	authed := r.Group("/", auth.Middleware(cfg.JWTSigningKey, cfg.JWTIssuer, denylist))
	authed.POST("/account/logout", h.Logout)
	authed.POST("/verify", h.Verify)
	authed.GET("/attendance", h.Attendance)
	authed.GET("/user/:id", h.User)
	authed.GET("/leaderboard/:courseCode", h.Leaderboard)
	authed.GET("/courses", h.Courses)

	staff := authed.Group("/", auth.StaffOnly())
	staff.GET("/code", h.ActiveCodes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
