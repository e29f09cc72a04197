package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/classroomhub/classroom/docs"
	"github.com/classroomhub/classroom/internal/api/handler"
	"github.com/classroomhub/classroom/internal/api/middleware"
	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/core/service"
)

const metricsNamespace = "classroom"

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Sessions ports.SessionService
	SignIn   ports.SignInProvider
	Users    service.UserService
	// Checks are pinged by the readiness probe, keyed by name.
	Checks map[string]handler.Pinger
	// Registerer receives the HTTP metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	metricsMW, err := echoprometheus.MiddlewareConfig{
		Namespace:  metricsNamespace,
		Subsystem:  "http",
		Registerer: d.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}.ToMiddleware()
	if err != nil {
		return nil, err
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(metricsMW)

	// --- Health probes, metrics and docs (no session required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Session lifecycle ---
	authHandler := handler.NewAuthHandler(d.SignIn)
	sessionHandler := handler.NewSessionHandler(d.Sessions, d.SignIn)
	userHandler := handler.NewUserHandler(d.Users)

	v1 := e.Group("/v1")
	v1.GET("/auth/login", authHandler.Login)
	v1.GET("/session", sessionHandler.Get)
	v1.POST("/session", sessionHandler.Create)
	v1.POST("/session/retry", sessionHandler.Retry)
	v1.POST("/session/signout", sessionHandler.SignOut)

	signedIn := middleware.RequireSession(d.Sessions)
	v1.GET("/session/permissions/:permission", userHandler.Permission, signedIn)

	// --- Admin ---
	admin := v1.Group("/users", signedIn, middleware.RBAC(domain.RoleAdmin))
	admin.GET("", userHandler.List)
	admin.PATCH("/:id/role", userHandler.ChangeRole)

	return e, nil
}

// requestLogger emits one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
