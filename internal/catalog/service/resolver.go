package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/warebill/internal/catalog/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type resolver struct {
	db   *gorm.DB
	repo domain.Repository
	log  *zap.Logger
}

// ResolveRate applies override, warehouse catalog, then global catalog.
func (r *resolver) ResolveRate(ctx context.Context, key domain.RateKey) (domain.Rate, error) {
	key.ServiceID = strings.TrimSpace(key.ServiceID)

	override, err := r.repo.FindOverride(ctx, r.db, key)
	if err != nil {
		return domain.Rate{}, err
	}
	if override != nil {
		if !override.Visible {
			return domain.Rate{Visible: false, Source: domain.SourceHidden}, nil
		}
		if override.OverrideRateCents != nil {
			return domain.Rate{RateCents: *override.OverrideRateCents, Visible: true, Source: domain.SourceOverride}, nil
		}
	}

	if key.WarehouseID != domain.GlobalWarehouse {
		entry, err := r.repo.FindActiveEntry(ctx, r.db, key.ServiceID, key.WarehouseID)
		if err != nil {
			return domain.Rate{}, err
		}
		if entry != nil {
			return domain.Rate{RateCents: entry.DefaultRateCents, Visible: true, Source: domain.SourceWarehouseCatalog}, nil
		}
	}

	entry, err := r.repo.FindActiveEntry(ctx, r.db, key.ServiceID, domain.GlobalWarehouse)
	if err != nil {
		return domain.Rate{}, err
	}
	if entry != nil {
		return domain.Rate{RateCents: entry.DefaultRateCents, Visible: true, Source: domain.SourceGlobalCatalog}, nil
	}

	r.log.Warn("rate not found",
		zap.String("parent_account_id", key.ParentAccountID.String()),
		zap.String("client_account_id", key.ClientAccountID.String()),
		zap.String("warehouse_id", key.WarehouseID.String()),
		zap.String("service_id", key.ServiceID),
	)
	return domain.Rate{}, domain.ErrRateNotFound
}

func (r *resolver) IsVisible(ctx context.Context, key domain.RateKey) (bool, error) {
	key.ServiceID = strings.TrimSpace(key.ServiceID)
	override, err := r.repo.FindOverride(ctx, r.db, key)
	if err != nil {
		return false, err
	}
	return override == nil || override.Visible, nil
}
