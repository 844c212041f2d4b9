package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/warebill/internal/account/domain"
	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Accounts accountdomain.Directory
	Audit    auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	accounts accountdomain.Directory
	audit    auditdomain.Service
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("catalog.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		accounts: p.Accounts,
		audit:    p.Audit,
	}
}

var _ domain.Service = (*Service)(nil)

// ResolverFor binds rate lookups to conn, usually an open transaction.
func (s *Service) ResolverFor(conn *gorm.DB) domain.Resolver {
	return &resolver{db: conn, repo: s.repo, log: s.log}
}

func (s *Service) ResolveRate(ctx context.Context, key domain.RateKey) (domain.Rate, error) {
	return s.ResolverFor(s.db).ResolveRate(ctx, key)
}

func (s *Service) Resolve(ctx context.Context, p authz.Principal, key domain.RateKey) (domain.Rate, error) {
	if key.ParentAccountID == 0 || key.ClientAccountID == 0 || key.WarehouseID == 0 || strings.TrimSpace(key.ServiceID) == "" {
		return domain.Rate{}, apperror.ErrMissingParameters
	}
	if err := p.RequireClient(authz.CapRateRead, key.ParentAccountID, key.ClientAccountID); err != nil {
		return domain.Rate{}, err
	}
	if err := s.accounts.ValidateScope(ctx, key.ParentAccountID, key.ClientAccountID, key.WarehouseID); err != nil {
		return domain.Rate{}, err
	}
	return s.ResolveRate(ctx, key)
}

func (s *Service) UpsertOverride(ctx context.Context, p authz.Principal, req domain.OverrideInput) (*domain.ServiceOverride, error) {
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := p.Require(authz.CapRateManage, req.ParentAccountID); err != nil {
		return nil, err
	}
	if err := s.accounts.ValidateScope(ctx, req.ParentAccountID, req.ClientAccountID, req.WarehouseID); err != nil {
		return nil, err
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	now := s.clock.Now()
	row := &domain.ServiceOverride{
		ID:                s.genID.Generate(),
		ParentAccountID:   req.ParentAccountID,
		ClientAccountID:   req.ClientAccountID,
		WarehouseID:       req.WarehouseID,
		ServiceID:         req.ServiceID,
		OverrideRateCents: req.OverrideRateCents,
		Visible:           visible,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	key := domain.RateKey{
		ParentAccountID: req.ParentAccountID,
		ClientAccountID: req.ClientAccountID,
		WarehouseID:     req.WarehouseID,
		ServiceID:       req.ServiceID,
	}
	var stored *domain.ServiceOverride
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertOverride(ctx, tx, row); err != nil {
			return err
		}
		// the stored row keeps its original id on update
		found, err := s.repo.FindOverride(ctx, tx, key)
		if err != nil {
			return err
		}
		stored = found
		if s.audit == nil {
			return nil
		}
		meta := map[string]any{
			"client_account_id": req.ClientAccountID.String(),
			"warehouse_id":      req.WarehouseID.String(),
			"service_id":        req.ServiceID,
			"visible":           visible,
		}
		if req.OverrideRateCents != nil {
			meta["override_rate_cents"] = *req.OverrideRateCents
		}
		return s.audit.Record(ctx, tx, p, auditdomain.Event{
			ParentAccountID: req.ParentAccountID,
			Action:          auditdomain.ActionServiceOverrideSet,
			TargetType:      "service_override",
			TargetID:        found.ID,
			Metadata:        meta,
		})
	})
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.ErrStorageWrite.Wrap(err)
	}
	s.log.Info("service override saved",
		zap.String("parent_account_id", req.ParentAccountID.String()),
		zap.String("client_account_id", req.ClientAccountID.String()),
		zap.String("service_id", req.ServiceID),
		zap.Bool("visible", visible),
	)
	return stored, nil
}

func (s *Service) CreateCatalogEntry(ctx context.Context, p authz.Principal, req domain.CatalogEntryInput) (*domain.ServiceCatalogEntry, error) {
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !p.Has(authz.CapRateManage) {
		return nil, apperror.ErrUnauthorizedTenant
	}
	if req.WarehouseID == domain.GlobalWarehouse {
		if !p.IsPlatform() {
			return nil, apperror.ErrUnauthorizedTenant
		}
	} else {
		if err := p.Require(authz.CapRateManage, req.ParentAccountID); err != nil {
			return nil, err
		}
		if err := s.requireWarehouse(ctx, req.ParentAccountID, req.WarehouseID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	entry := &domain.ServiceCatalogEntry{
		ID:               s.genID.Generate(),
		ServiceID:        req.ServiceID,
		WarehouseID:      req.WarehouseID,
		Category:         strings.TrimSpace(req.Category),
		Name:             strings.TrimSpace(req.Name),
		Unit:             strings.TrimSpace(req.Unit),
		DefaultRateCents: req.DefaultRateCents,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertEntry(ctx, s.db, entry); err != nil {
		if apperror.CodeOf(err) == apperror.CodeInvalidArgument {
			return nil, err
		}
		return nil, apperror.ErrStorageWrite.Wrap(err)
	}
	return entry, nil
}

// ListCatalog returns the effective entry per service: warehouse-scoped wins over global.
func (s *Service) ListCatalog(ctx context.Context, p authz.Principal, parentID, warehouseID snowflake.ID) ([]*domain.ServiceCatalogEntry, error) {
	if err := p.Require(authz.CapRateRead, parentID); err != nil {
		return nil, err
	}
	if warehouseID != 0 {
		if err := s.requireWarehouse(ctx, parentID, warehouseID); err != nil {
			return nil, err
		}
	}
	rows, err := s.repo.ListEntries(ctx, s.db, warehouseID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ServiceCatalogEntry, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ServiceID]; dup {
			continue
		}
		seen[row.ServiceID] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) requireWarehouse(ctx context.Context, parentID, warehouseID snowflake.ID) error {
	wh, err := s.accounts.GetWarehouse(ctx, warehouseID)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeNotFound {
			return apperror.ErrUnauthorizedTenant
		}
		return err
	}
	if wh.ParentAccountID != parentID {
		return apperror.ErrUnauthorizedTenant
	}
	return nil
}

func (s *Service) IsVisible(ctx context.Context, key domain.RateKey) (bool, error) {
	return s.ResolverFor(s.db).IsVisible(ctx, key)
}
