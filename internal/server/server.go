// Package server runs the HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/config"
	"servicecenter/internal/domain/appointment"
	"servicecenter/internal/domain/subscription"
	"servicecenter/internal/middleware"
	"servicecenter/internal/pkg/jwt"
	"servicecenter/internal/pkg/response"
)

var Module = fx.Module("http.server",
	fx.Provide(func(cfg *config.Config) *jwt.Service {
		return jwt.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}),
	fx.Provide(NewRouter),
	fx.Invoke(run),
)

type RouterParams struct {
	fx.In

	Config        *config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	JWT           *jwt.Service
	Registry      *prometheus.Registry
	Appointments  *appointment.Handler
	Subscriptions *subscription.Handler
}

// NewRouter builds the gin engine with every route mounted under /api/v1.
func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "prod" || p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(p.Log.Named("http")))
	r.Use(middleware.CORS(p.Config.Server.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := p.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Error(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database unreachable")
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	if p.Config.Metrics.Enabled {
		r.GET(p.Config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(p.JWT))
	appointment.RegisterRoutes(v1, p.Appointments)
	subscription.RegisterRoutes(v1, p.Subscriptions)

	return r
}

func run(lc fx.Lifecycle, cfg *config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			log.Info("shutting down")
			return srv.Shutdown(ctx)
		},
	})
}
