package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/warebill/internal/account/domain"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	obsmetrics "github.com/smallbiznis/warebill/internal/observability/metrics"
	"github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/smallbiznis/warebill/internal/usage/pricing"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"github.com/smallbiznis/warebill/pkg/money"
	"github.com/smallbiznis/warebill/pkg/period"
	"github.com/smallbiznis/warebill/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const summaryBatchSize = 500

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   config.PolicySource
	Repo     domain.Repository
	Accounts accountdomain.Directory
	Rates    catalogdomain.ResolverFactory
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   config.PolicySource
	repo     domain.Repository
	accounts accountdomain.Directory
	rates    catalogdomain.ResolverFactory
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("usage.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		accounts: p.Accounts,
		rates:    p.Rates,
		metrics:  p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, p authz.Principal, batch domain.FeedBatch) (domain.RecordResult, error) {
	if err := validation.Struct(batch); err != nil {
		return domain.RecordResult{}, err
	}
	if batch.Len() == 0 {
		return domain.RecordResult{}, domain.ErrEmptyBatch
	}
	sc := Scope{
		ParentAccountID: p.ParentOr(batch.ParentAccountID),
		ClientAccountID: batch.ClientAccountID,
		WarehouseID:     batch.WarehouseID,
		Source:          orDefault(strings.ToLower(batch.Source), DefaultSource),
	}
	if err := p.RequireClient(authz.CapUsageWrite, sc.ParentAccountID, sc.ClientAccountID); err != nil {
		return domain.RecordResult{}, err
	}
	if err := s.accounts.ValidateScope(ctx, sc.ParentAccountID, sc.ClientAccountID, sc.WarehouseID); err != nil {
		return domain.RecordResult{}, err
	}

	rows, err := normalizeBatch(sc, batch)
	if err != nil {
		return domain.RecordResult{}, err
	}
	now := s.clock.Now()
	perKind := make(map[domain.Kind]int, len(domain.Kinds))
	for _, row := range rows {
		row.ID = s.genID.Generate()
		row.CreatedAt = now
		row.UpdatedAt = now
		perKind[row.Kind]++
	}

	var inserted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.Insert(ctx, tx, rows)
		inserted = n
		return err
	})
	if err != nil {
		s.log.Error("usage insert failed", zap.Error(err), zap.Int("rows", len(rows)))
		return domain.RecordResult{}, apperror.ErrStorageWrite.Wrap(err)
	}

	for kind, n := range perKind {
		s.metrics.RecordUsageRecorded(ctx, string(kind), n)
	}
	result := domain.RecordResult{Inserted: int(inserted), Duplicates: len(rows) - int(inserted)}
	s.log.Info("usage recorded",
		zap.String("parent_account_id", sc.ParentAccountID.String()),
		zap.String("client_account_id", sc.ClientAccountID.String()),
		zap.String("source", sc.Source),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func (s *Service) ListUsage(ctx context.Context, p authz.Principal, filter domain.UsageFilter) (pagination.Result[*domain.LedgerEntry], error) {
	q, err := s.authorizeQuery(ctx, p, filter)
	if err != nil {
		return pagination.Result[*domain.LedgerEntry]{}, err
	}
	policy := s.policy.Get()
	page := pagination.Normalize(filter.Page, filter.PageSize, policy.DefaultPageSize, policy.MaxPageSize)

	total, err := s.repo.Count(ctx, s.db, q)
	if err != nil {
		return pagination.Result[*domain.LedgerEntry]{}, err
	}
	items, err := s.repo.List(ctx, s.db, q, page)
	if err != nil {
		return pagination.Result[*domain.LedgerEntry]{}, err
	}
	return pagination.NewResult(items, total, page), nil
}

// Summary prices the whole filtered set with the same policy the invoice builder uses.
func (s *Service) Summary(ctx context.Context, p authz.Principal, filter domain.UsageFilter) (*domain.Summary, error) {
	q, err := s.authorizeQuery(ctx, p, filter)
	if err != nil {
		return nil, err
	}

	memo := catalogdomain.NewMemo(s.rates.ResolverFor(s.db))
	pricer := pricing.New(s.policy.Get(), memo)
	sum := &domain.Summary{ByKind: make(map[domain.Kind]int64, len(domain.Kinds))}

	for pageNo := 1; ; pageNo++ {
		page := pagination.Page{Page: pageNo, PageSize: summaryBatchSize}
		rows, err := s.repo.List(ctx, s.db, q, page)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			priced, err := pricer.Price(ctx, row)
			if err != nil {
				return nil, err
			}
			sum.Entries++
			switch priced.Outcome {
			case pricing.Hidden:
				sum.Hidden++
			case pricing.Unpriced:
				sum.Unpriced++
			case pricing.Billable:
				sum.ByKind[row.Kind] += priced.AmountCents
				sum.TotalCents += priced.AmountCents
				if row.Status == domain.StatusPending {
					sum.PendingCents += priced.AmountCents
				}
			}
		}
		if len(rows) < summaryBatchSize {
			break
		}
	}

	sum.TotalUSD = money.FormatUSD(sum.TotalCents)
	sum.PendingUSD = money.FormatUSD(sum.PendingCents)
	return sum, nil
}

func (s *Service) authorizeQuery(ctx context.Context, p authz.Principal, f domain.UsageFilter) (domain.Query, error) {
	q, err := BuildQuery(p, f)
	if err != nil {
		return domain.Query{}, err
	}
	if err := p.RequireClient(authz.CapUsageRead, q.ParentAccountID, q.ClientAccountID); err != nil {
		return domain.Query{}, err
	}
	if err := s.accounts.ValidateScope(ctx, q.ParentAccountID, q.ClientAccountID, q.WarehouseID); err != nil {
		return domain.Query{}, err
	}
	return q, nil
}

// BuildQuery validates a filter without touching storage.
func BuildQuery(p authz.Principal, f domain.UsageFilter) (domain.Query, error) {
	client := f.ClientAccountID
	if p.Role == authz.RoleClientViewer {
		client = p.ClientOr(client)
	}
	if client == 0 {
		return domain.Query{}, apperror.ErrMissingParameters.WithField("client_account_id")
	}
	if strings.TrimSpace(f.Start) == "" || strings.TrimSpace(f.End) == "" {
		field := "start"
		if strings.TrimSpace(f.Start) != "" {
			field = "end"
		}
		return domain.Query{}, apperror.ErrMissingParameters.WithField(field)
	}
	r, err := period.Parse(f.Start, f.End)
	if err != nil {
		if errors.Is(err, period.ErrInvertedDate) {
			return domain.Query{}, apperror.ErrInvalidDateRange.WithField("end")
		}
		return domain.Query{}, apperror.ErrInvalidDateRange
	}

	q := domain.Query{
		ParentAccountID: p.ParentOr(f.ParentAccountID),
		ClientAccountID: client,
		WarehouseID:     f.WarehouseID,
		From:            r.Start,
		Until:           r.Until(),
		Q:               strings.TrimSpace(f.Q),
	}
	if raw := strings.TrimSpace(f.Status); raw != "" {
		switch st := domain.Status(strings.ToLower(raw)); st {
		case domain.StatusPending, domain.StatusInvoiced:
			q.Status = st
		default:
			return domain.Query{}, apperror.New(apperror.CodeInvalidArgument, "status must be pending or invoiced").WithField("status")
		}
	}
	if raw := strings.TrimSpace(f.Kind); raw != "" {
		kind, ok := domain.ParseKind(raw)
		if !ok {
			return domain.Query{}, apperror.New(apperror.CodeInvalidArgument, "unknown usage kind").WithField("kind")
		}
		q.Kind = kind
	}
	return q, nil
}
