package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	leasedomain "github.com/smallbiznis/rentflow/internal/lease/domain"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	partydomain "github.com/smallbiznis/rentflow/internal/party/domain"
	"github.com/smallbiznis/rentflow/internal/ratelimit"
	receiptservice "github.com/smallbiznis/rentflow/internal/receipt/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	obligationSvc obligationdomain.Service
	webhookSvc    gatewaydomain.Webhook
	receiptSvc    *receiptservice.Service
	leaseRepo     leasedomain.Repository
	partyRepo     partydomain.Repository
	limiter       *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	ObligationSvc obligationdomain.Service
	WebhookSvc    gatewaydomain.Webhook
	ReceiptSvc    *receiptservice.Service
	LeaseRepo     leasedomain.Repository
	PartyRepo     partydomain.Repository
	Limiter       *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		genID:         p.GenID,
		clock:         p.Clock,
		obligationSvc: p.ObligationSvc,
		webhookSvc:    p.WebhookSvc,
		receiptSvc:    p.ReceiptSvc,
		leaseRepo:     p.LeaseRepo,
		partyRepo:     p.PartyRepo,
		limiter:       p.Limiter,
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/parties", s.HandleCreateParty)
	v1.GET("/parties/:id", s.HandleGetParty)

	v1.POST("/leases", s.HandleCreateLease)
	v1.GET("/leases/:id", s.HandleGetLease)

	v1.POST("/obligations/generate", s.HandleGenerateObligations)
	v1.GET("/obligations", s.HandleListObligations)
	v1.GET("/obligations/:id", s.HandleGetObligation)
	v1.GET("/obligations/:id/receipt", s.HandleObligationReceipt)
	v1.GET("/landlords/:id/stats", s.HandleLandlordStats)

	s.engine.POST("/webhooks/payments/:provider", s.webhookRateLimit(), s.HandlePaymentWebhook)
}
