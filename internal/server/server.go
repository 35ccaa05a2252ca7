package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/observability"
	obslogger "github.com/leadgate/leadgate/internal/observability/logger"
	obstracing "github.com/leadgate/leadgate/internal/observability/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const readinessTimeout = 2 * time.Second

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(run),
)

type Params struct {
	fx.In

	ObsConfig observability.Config
	DB        *gorm.DB
	Redis     *redis.Client `optional:"true"`
	// Registry defaults to the process-wide prometheus registry, which also
	// carries the gorm pool collectors.
	Registry *prometheus.Registry `optional:"true"`
}

// NewEngine builds the operational HTTP surface: liveness, readiness and
// prometheus metrics.
func NewEngine(p Params) (*gin.Engine, error) {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if p.Registry != nil {
		registerer, gatherer = p.Registry, p.Registry
	}
	httpMetrics, err := newHTTPMetrics(registerer)
	if err != nil {
		return nil, err
	}

	if !p.ObsConfig.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.ObsConfig.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", readiness(p.DB, p.Redis))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r, nil
}

func readiness(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		checks := gin.H{}
		ready := true

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		checks["database"] = checkStatus(err)
		ready = ready && err == nil

		if rdb != nil {
			err := rdb.Ping(ctx).Err()
			checks["redis"] = checkStatus(err)
			ready = ready && err == nil
		} else {
			checks["redis"] = "disabled"
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
	}
}

func checkStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("ops server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("ops server failed", zap.Error(err))
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
