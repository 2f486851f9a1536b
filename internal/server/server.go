package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/railzwaylabs/renewal/internal/config"
	"github.com/railzwaylabs/renewal/internal/observability"
	renewaldomain "github.com/railzwaylabs/renewal/internal/renewal/domain"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	log     *zap.Logger
	db      *gorm.DB
	metrics *observability.Metrics

	subscriptionSvc subscriptiondomain.Service
	renewalSvc      renewaldomain.Service
}

type ServerParams struct {
	fx.In

	Engine  *gin.Engine
	Config  config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Metrics *observability.Metrics `optional:"true"`

	SubscriptionSvc subscriptiondomain.Service
	RenewalSvc      renewaldomain.Service
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log.Named("http")))
	return engine
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Engine,
		cfg:             p.Config,
		log:             p.Log.Named("http.server"),
		db:              p.DB,
		metrics:         p.Metrics,
		subscriptionSvc: p.SubscriptionSvc,
		renewalSvc:      p.RenewalSvc,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/health", s.Health)
	if reg := s.metrics.Registry(); reg != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	api.POST("/renewal-quotes", s.CreateRenewalQuote)

	subscriptions := api.Group("/subscriptions")
	subscriptions.POST("", s.CreateSubscription)
	subscriptions.GET("", s.ListSubscriptions)
	subscriptions.GET("/:id", s.GetSubscriptionByID)
	subscriptions.PATCH("/:id/auto-renewal", s.UpdateAutoRenewal)
	subscriptions.POST("/:id/cancel", s.CancelSubscription)
	subscriptions.GET("/:id/renewal-quote", s.GetRenewalQuote)
	subscriptions.POST("/:id/renewals", s.CreateRenewal)
	subscriptions.GET("/:id/renewals", s.ListRenewals)
}

func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
