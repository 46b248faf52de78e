package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/photobooth-auth/internal/api/http/handlers"
	"github.com/spec-kit/photobooth-auth/internal/auth"
	"github.com/spec-kit/photobooth-auth/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health     *handlers.HealthHandler
	Auth       *handlers.AuthHandler
	CookieAuth *auth.CookieAuth
	CSRF       *CSRFMiddleware
	Limiter    *RedisLimiter
}

// RegisterRoutes wires HTTP routes. Required roles and CSRF protection are
// declared here per route; the middlewares read nothing else.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// every auth route resolves a session identity and receives a csrf cookie
	authGroup := app.Group("/auth", cfg.CSRF.Issue)

	authGroup.Post("/register",
		cfg.Limiter.Limit("register", 5, 5*time.Minute),
		cfg.CSRF.Protect,
		cfg.Auth.Register)
	authGroup.Post("/login",
		cfg.Limiter.Limit("login", 5, 5*time.Minute),
		cfg.CSRF.Protect,
		cfg.Auth.Login)
	authGroup.Post("/refresh",
		cfg.Limiter.Limit("refresh", 10, time.Minute),
		cfg.CSRF.Protect,
		cfg.Auth.Refresh)
	authGroup.Post("/logout",
		cfg.Limiter.Limit("logout", 5, time.Minute),
		cfg.CSRF.Protect,
		cfg.Auth.Logout)
	authGroup.Post("/password",
		cfg.Limiter.Limit("password", 3, 5*time.Minute),
		cfg.CSRF.Protect,
		cfg.CookieAuth.Handle,
		auth.RequireRoles(),
		cfg.Auth.UpdatePassword)

	// reachable before any token exists, so no CSRF check
	authGroup.Get("/check",
		cfg.Limiter.Limit("check", 10, time.Minute),
		cfg.CookieAuth.Optional,
		cfg.Auth.Check)
	authGroup.Get("/csrf", cfg.Auth.CSRFToken)

	authGroup.Get("/admin",
		cfg.CookieAuth.Handle,
		auth.RequireRoles(domain.RoleAdmin),
		cfg.Auth.Admin)
}
