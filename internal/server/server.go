package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/warebill/internal/account"
	"github.com/smallbiznis/warebill/internal/audit"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/catalog"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/invoice"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/observability"
	obsmiddleware "github.com/smallbiznis/warebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/warebill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/warebill/internal/observability/tracing"
	"github.com/smallbiznis/warebill/internal/ratelimit"
	"github.com/smallbiznis/warebill/internal/sharetoken"
	sharetokendomain "github.com/smallbiznis/warebill/internal/sharetoken/domain"
	"github.com/smallbiznis/warebill/internal/usage"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authz.Module,
	account.Module,
	audit.Module,
	catalog.Module,
	usage.Module,
	invoice.Module,
	sharetoken.Module,
	ratelimit.Module,
	fx.Provide(
		NewEngine,
		func(r *authz.Resolver) PrincipalResolver { return r },
		NewServer,
	),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	principals PrincipalResolver
	invoiceSvc invoicedomain.Service
	usageSvc   usagedomain.Service
	catalogSvc catalogdomain.Service
	shareSvc   sharetokendomain.Service
	auditSvc   auditdomain.Service
	limiters   *ratelimit.Limiters
	metrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Principals PrincipalResolver
	InvoiceSvc invoicedomain.Service
	UsageSvc   usagedomain.Service
	CatalogSvc catalogdomain.Service
	ShareSvc   sharetokendomain.Service
	AuditSvc   auditdomain.Service
	Limiters   *ratelimit.Limiters `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	limiters := p.Limiters
	if limiters == nil {
		limiters = &ratelimit.Limiters{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        log.Named("http.server"),
		principals: p.Principals,
		invoiceSvc: p.InvoiceSvc,
		usageSvc:   p.UsageSvc,
		catalogSvc: p.CatalogSvc,
		shareSvc:   p.ShareSvc,
		auditSvc:   p.AuditSvc,
		limiters:   limiters,
		metrics:    p.Metrics,
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Invoices --------
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)
	api.POST("/invoices/:id/status", s.TransitionInvoiceStatus)
	api.GET("/invoices/:id/pdf", s.RenderInvoicePDF)
	api.POST("/invoices/:id/line-items", s.AddLineItem)
	api.POST("/invoices/:id/share-token", s.GenerateShareToken)

	api.PATCH("/line-items/:id", s.UpdateLineItem)
	api.DELETE("/line-items/:id", s.DeleteLineItem)

	// -------- Usage --------
	api.GET("/usage", s.ListUsage)
	api.GET("/usage/summary", s.UsageSummary)
	api.POST("/usage/feeds/:kind", s.FeedRateLimit(), s.RecordFeed)

	// -------- Rates --------
	api.GET("/rates/resolve", s.ResolveRate)
	api.GET("/rates/catalog", s.ListCatalog)
	api.POST("/rates/catalog", s.CreateCatalogEntry)
	api.PUT("/rates/overrides", s.UpsertOverride)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public", s.PublicInvoiceRateLimit())

	public.GET("/invoices/:token", s.GetPublicInvoice)
	public.GET("/invoices/:token/pdf", s.GetPublicInvoicePDF)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, errRouteNotFound)
	})
}

// RunHTTP serves until the fx app stops.
func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
