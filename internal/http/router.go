package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rjwalters/userhub/internal/auth"
	"github.com/rjwalters/userhub/internal/config"
	"github.com/rjwalters/userhub/internal/http/handlers"
	"github.com/rjwalters/userhub/internal/http/middlewares"
	"github.com/rjwalters/userhub/internal/observability"
	"github.com/rjwalters/userhub/internal/repo/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter wires repositories, handlers and the middleware chain.
// prom and rdb may be nil (tests run without metrics or Redis).
func NewRouter(log *slog.Logger, db *mongo.Database, cfg config.Config, prom *observability.Prom, rdb *redis.Client) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("userhub"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// health

	ping := func() error {
		if db == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return db.Client().Ping(ctx, readpref.Primary())
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// wire up repositories and handlers

	usersRepo := mongodb.NewUsersRepo(db, prom)
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.JWTExpiresIn)

	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, prom)
	usersHandler := handlers.NewUsersHandler(usersRepo)
	authMw := middlewares.NewAuthMiddleware(jwtManager, usersRepo)

	api := r.Group("/api/v1")

	// one limiter for the whole versioned surface; Redis-backed when a
	// client is configured, per-process otherwise
	if rdb != nil {
		limiter := middlewares.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow)
		api.Use(limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	} else {
		limiter := middlewares.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
		api.Use(limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	}

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", authHandler.Register)
	authRoutes.POST("/login", authHandler.Login)

	users := api.Group("/users")
	users.Use(authMw.RequireAuth())
	users.GET("", authMw.RequireRole("admin"), usersHandler.ListUsers)
	users.POST("", usersHandler.CreateUser)
	users.GET("/:id", usersHandler.GetUser)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondNotFound(ctx, fmt.Sprintf("Can't find %s on this server", ctx.Request.URL.Path))
	})

	return r
}
