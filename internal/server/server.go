package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/memberbill/internal/audit"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	"github.com/smallbiznis/memberbill/internal/bill"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/internal/billingcycle"
	"github.com/smallbiznis/memberbill/internal/client"
	clientdomain "github.com/smallbiznis/memberbill/internal/client/domain"
	"github.com/smallbiznis/memberbill/internal/config"
	"github.com/smallbiznis/memberbill/internal/feeschedule"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/internal/ledger"
	"github.com/smallbiznis/memberbill/internal/member"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	"github.com/smallbiznis/memberbill/internal/observability"
	obsmiddleware "github.com/smallbiznis/memberbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/memberbill/internal/observability/tracing"
	"github.com/smallbiznis/memberbill/internal/payment"
	paymentdomain "github.com/smallbiznis/memberbill/internal/payment/domain"
	"github.com/smallbiznis/memberbill/internal/providers/pdf"
	"github.com/smallbiznis/memberbill/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	ledger.Module,
	pdf.Module,
	client.Module,
	feeschedule.Module,
	bill.Module,
	member.Module,
	payment.Module,
	billingcycle.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine  *gin.Engine
	cfg     config.Config
	billing *config.BillingConfigHolder
	log     *zap.Logger

	clientSvc   clientdomain.Service
	scheduleSvc feescheduledomain.Service
	memberSvc   memberdomain.Service
	billSvc     billdomain.Service
	paymentSvc  paymentdomain.Service
	auditSvc    auditdomain.Service

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	Billing *config.BillingConfigHolder
	Log     *zap.Logger

	ClientSvc   clientdomain.Service
	ScheduleSvc feescheduledomain.Service
	MemberSvc   memberdomain.Service
	BillSvc     billdomain.Service
	PaymentSvc  paymentdomain.Service
	AuditSvc    auditdomain.Service

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		billing:     p.Billing,
		log:         p.Log.Named("http.server"),
		clientSvc:   p.ClientSvc,
		scheduleSvc: p.ScheduleSvc,
		memberSvc:   p.MemberSvc,
		billSvc:     p.BillSvc,
		paymentSvc:  p.PaymentSvc,
		auditSvc:    p.AuditSvc,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Clients --------
	api.POST("/clients", s.CreateClient)
	api.GET("/clients/:id", s.GetClientByID)
	api.POST("/clients/:id/renew", s.RenewClient)

	tenant := api.Group("", s.ClientContext())

	// -------- Fee Schedules --------
	tenant.POST("/fee-schedules", s.CreateFeeSchedule)
	tenant.GET("/fee-schedules", s.ListFeeSchedules)
	tenant.GET("/fee-schedules/:id", s.GetFeeScheduleByID)
	tenant.PATCH("/fee-schedules/:id", s.UpdateFeeSchedule)
	tenant.GET("/fee-schedules/:id/quote", s.QuoteFeeSchedule)

	// -------- Members --------
	tenant.POST("/members", s.CreateMember)
	tenant.GET("/members", s.ListMembers)
	tenant.GET("/members/:id", s.GetMemberByID)
	tenant.PATCH("/members/:id", s.UpdateMember)
	tenant.GET("/members/:id/balance", s.GetMemberBalance)
	tenant.GET("/members/:id/bills", s.ListMemberBills)

	// -------- Bills --------
	tenant.GET("/bills/:id", s.GetBillByID)
	tenant.GET("/bills/:id/receipt", s.RenderBillReceipt)
	tenant.GET("/bills/:id/payments", s.ListBillPayments)
	tenant.POST("/bills/:id/payments", s.ApplyPayment)

	tenant.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerInternalRoutes() {
	if s.cfg.IsProduction() || s.scheduler == nil {
		return
	}
	s.engine.POST("/internal/scheduler/run", s.RunScheduler)
}
