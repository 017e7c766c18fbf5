package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/qr-checkin/internal/config"
	"github.com/iliyamo/qr-checkin/internal/handler"
	"github.com/iliyamo/qr-checkin/internal/middleware"
)

// Deps collects what the routes need.  Redis may be nil, which disables the
// scan rate limiter and the image cache.
type Deps struct {
	QR        *handler.QRHandler
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Metrics   http.Handler // nil leaves /metrics unregistered
}

// RegisterRoutes mounts the health probe, metrics and the /v1/qr API.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	qr := e.Group("/v1/qr")
	qr.POST("/validate", d.QR.Validate, middleware.NewTokenBucket(d.RateLimit, d.Redis))
	qr.POST("/proximity", d.QR.Proximity)
	qr.GET("/:id/image", d.QR.Image, middleware.NewRedisCache(d.Cache, d.Redis, d.QR.ImageVariant))
	qr.GET("/:id/rotation", d.QR.Rotation)

	org := qr.Group("", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(middleware.RoleOrganizer))
	org.POST("", d.QR.Issue)
	org.POST("/dynamic", d.QR.IssueDynamic)
	org.POST("/cleanup", d.QR.Cleanup)
	org.GET("/:id", d.QR.Get)
	org.DELETE("/:id", d.QR.Deactivate)
}
