package server

import (
	"context"
	"net/http"
	"time"

	"github.com/farmgate/farmgate/internal/auth"
	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/authorization"
	"github.com/farmgate/farmgate/internal/clock"
	"github.com/farmgate/farmgate/internal/config"
	obslogger "github.com/farmgate/farmgate/internal/observability/logger"
	obsmetrics "github.com/farmgate/farmgate/internal/observability/metrics"
	"github.com/farmgate/farmgate/internal/organization"
	"github.com/farmgate/farmgate/internal/providers/email"
	"github.com/farmgate/farmgate/internal/ratelimit"
	"github.com/farmgate/farmgate/internal/rbac"
	"github.com/farmgate/farmgate/internal/verification"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	obslogger.Module,
	obsmetrics.Module,
	clock.Module,
	email.Module,
	ratelimit.Module,
	organization.Module,
	rbac.Module,
	verification.Module,
	auth.Module,
	authorization.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	authsvc   authdomain.Service
	validator *authorization.Validator
	limiter   ratelimit.Limiter
	metrics   *obsmetrics.HTTPMetrics
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Authsvc   authdomain.Service
	Validator *authorization.Validator
	Limiter   ratelimit.Limiter
	Metrics   *obsmetrics.HTTPMetrics
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		authsvc:   p.Authsvc,
		validator: p.Validator,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
	}

	svc.registerAuthRoutes()
	svc.registerAccountRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.AuthRateLimit("register"), s.Register)
	auth.POST("/login", s.AuthRateLimit("login"), s.Login)
	auth.POST("/refresh", s.Refresh)
	auth.POST("/logout", s.AuthRequired(), s.Logout)
	auth.POST("/logout-all", s.AuthRequired(), s.LogoutAll)
	auth.POST("/forgot", s.AuthRateLimit("forgot"), s.Forgot)
	auth.POST("/reset", s.ResetPassword)
	auth.POST("/verify-email", s.VerifyEmail)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAccountRoutes() {
	account := s.engine.Group("/account", s.AuthRequired())

	account.POST("/change-password", s.ChangePassword)
	account.POST("/verification", s.SendVerification)
	account.GET("/sessions", s.ListSessions)
	account.DELETE("/sessions/:id", s.RevokeSession)
}
