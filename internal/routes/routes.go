package route

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snipapp/snip-server/config"
	"github.com/snipapp/snip-server/internal/handler"
	"github.com/snipapp/snip-server/internal/middleware"
	"github.com/snipapp/snip-server/internal/repository"
	"github.com/snipapp/snip-server/internal/service"
)

func SetupRouter(cfg *config.Config, redisClient *redis.Client, pgClient *pgxpool.Pool) *gin.Engine {
	linkRepo := repository.NewPostgresLinkRepository(pgClient, redisClient)
	userRepo := repository.NewUserRepository(pgClient)

	authHandler := handler.NewAuthHandler(service.NewAuthService(userRepo))
	linkHandler := handler.NewLinkHandler(service.NewLinkService(linkRepo, cfg.BaseURL))
	redirectHandler := handler.NewRedirectHandler(service.NewResolveService(linkRepo), cfg.ClientURL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiLimiter := middleware.NewRateLimiter(200, 15*time.Minute)
	authLimiter := middleware.NewRateLimiter(15, 15*time.Minute)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", apiLimiter.Middleware())
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
		})

		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthMiddleware(), authHandler.Me)
			auth.PATCH("/preferences", middleware.AuthMiddleware(), authHandler.UpdatePreferences)
		}

		links := api.Group("/links", middleware.AuthMiddleware())
		{
			links.GET("", linkHandler.List)
			links.POST("", linkHandler.Create)
			links.POST("/bulk", linkHandler.BulkCreate)
			links.GET("/:id", linkHandler.Get)
			links.PATCH("/:id", linkHandler.Update)
			links.DELETE("/:id", linkHandler.Delete)
		}
	}

	// Public resolution surface. The /:code catch-all is registered last;
	// gin routes /api, /metrics, and /r prefixes before it.
	r.GET("/r/info/:code", redirectHandler.Info)
	r.POST("/r/verify", redirectHandler.Verify)
	r.POST("/r/preview", redirectHandler.Preview)
	r.GET("/:code", redirectHandler.Redirect)

	return r
}
