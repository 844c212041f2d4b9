package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/warebill/internal/account/domain"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/invoice/render"
	obsmetrics "github.com/smallbiznis/warebill/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    config.PolicySource
	Repo      domain.Repository
	UsageRepo usagedomain.Repository
	Accounts  accountdomain.Directory
	Rates     catalogdomain.ResolverFactory
	Audit     auditdomain.Service
	Renderer  *render.PDFRenderer
	Tax       domain.TaxSource    `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   config.PolicySource
	repo     domain.Repository
	usage    usagedomain.Repository
	accounts accountdomain.Directory
	rates    catalogdomain.ResolverFactory
	audit    auditdomain.Service
	renderer *render.PDFRenderer
	tax      domain.TaxSource
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) *Service {
	tax := p.Tax
	if tax == nil {
		tax = RequestedTax{}
	}
	renderer := p.Renderer
	if renderer == nil {
		renderer = render.NewPDFRenderer()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		usage:    p.UsageRepo,
		accounts: p.Accounts,
		rates:    p.Rates,
		audit:    p.Audit,
		renderer: renderer,
		tax:      tax,
		metrics:  p.Metrics,
	}
}

var (
	_ domain.Service = (*Service)(nil)
	_ domain.Reader  = (*Service)(nil)
)

// RequestedTax uses the amount on the request, or zero.
type RequestedTax struct{}

func (RequestedTax) TaxFor(_ context.Context, _ *domain.Invoice, _ []*domain.LineItem, requested *int64) (int64, error) {
	if requested == nil {
		return 0, nil
	}
	return *requested, nil
}
