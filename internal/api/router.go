package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoshinakamoto/VOLTAGEGPU/config"
	adminAccount "github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/admin/account"
	adminPolicy "github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/admin/policy"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/auth"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/billing"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/gpus"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/instances"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/pricing"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/middleware"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
)

// Deps carries the stateful services handlers need. Package-level service
// functions are reached directly.
type Deps struct {
	Catalog   *services.CatalogService
	Pricing   *services.PricingService
	Instances *services.InstanceService
	Poller    *services.StatusPoller
}

func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "catalog_degraded": deps.Catalog.Degraded()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	v1 := router.Group("/api/v1")
	{
		auth.RegisterRoutes(v1)

		authorized := v1.Group("/")
		authorized.Use(middleware.AuthMiddleware(), limiter.Middleware())
		{
			auth.RegisterProtectedRoutes(authorized)
			gpus.RegisterRoutes(authorized, gpus.NewHandler(deps.Catalog))
			pricing.RegisterRoutes(authorized, pricing.NewHandler(deps.Pricing))
			instances.RegisterRoutes(authorized, instances.NewHandler(deps.Instances, deps.Poller))
			billing.RegisterRoutes(authorized)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(), middleware.AdminAuthMiddleware())
		{
			adminPolicy.RegisterRoutes(admin)
			adminAccount.RegisterRoutes(admin)
		}
	}

	return router
}
