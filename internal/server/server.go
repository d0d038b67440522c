package server

import (
	"context"
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coresolution/billinghub/internal/authz"
	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/config"
	"github.com/coresolution/billinghub/internal/observability"
	pgconfigdomain "github.com/coresolution/billinghub/internal/pgconfig/domain"
)

type ServerParams struct {
	fx.In

	Engine   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	Log      *zap.Logger
	Config   config.Config
	Metrics  *observability.Metrics
	Enforcer *casbin.Enforcer
	Keys     *authz.KeyService

	RegistrationSvc  billingdomain.RegistrationService
	PaymentMethodSvc billingdomain.PaymentMethodService
	SubscriptionSvc  billingdomain.SubscriptionService
	PlanSvc          billingdomain.PlanService
	PgConfigSvc      pgconfigdomain.Service
}

type Server struct {
	engine   *gin.Engine
	db       *gorm.DB
	redis    *redis.Client
	log      *zap.Logger
	cfg      config.Config
	metrics  *observability.Metrics
	enforcer *casbin.Enforcer
	keys     *authz.KeyService

	registrationSvc  billingdomain.RegistrationService
	paymentMethodSvc billingdomain.PaymentMethodService
	subscriptionSvc  billingdomain.SubscriptionService
	planSvc          billingdomain.PlanService
	pgConfigSvc      pgconfigdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:           p.Engine,
		db:               p.DB,
		redis:            p.Redis,
		log:              p.Log.Named("server"),
		cfg:              p.Config,
		metrics:          p.Metrics,
		enforcer:         p.Enforcer,
		keys:             p.Keys,
		registrationSvc:  p.RegistrationSvc,
		paymentMethodSvc: p.PaymentMethodSvc,
		subscriptionSvc:  p.SubscriptionSvc,
		planSvc:          p.PlanSvc,
		pgConfigSvc:      p.PgConfigSvc,
	}
}

func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
