package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOverride(ctx context.Context, conn *gorm.DB, key domain.RateKey) (*domain.ServiceOverride, error) {
	var row domain.ServiceOverride
	err := conn.WithContext(ctx).
		Where("parent_account_id = ? AND client_account_id = ? AND warehouse_id = ? AND service_id = ?",
			key.ParentAccountID, key.ClientAccountID, key.WarehouseID, key.ServiceID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) FindActiveEntry(ctx context.Context, conn *gorm.DB, serviceID string, warehouseID snowflake.ID) (*domain.ServiceCatalogEntry, error) {
	var row domain.ServiceCatalogEntry
	err := conn.WithContext(ctx).
		Where("service_id = ? AND warehouse_id = ? AND active = ?", serviceID, warehouseID, true).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) UpsertOverride(ctx context.Context, conn *gorm.DB, o *domain.ServiceOverride) error {
	return conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "parent_account_id"},
			{Name: "client_account_id"},
			{Name: "warehouse_id"},
			{Name: "service_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"override_rate_cents", "visible", "updated_at"}),
	}).Create(o).Error
}

func (r *repo) InsertEntry(ctx context.Context, conn *gorm.DB, e *domain.ServiceCatalogEntry) error {
	err := conn.WithContext(ctx).Create(e).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateEntry
	}
	return err
}

// ListEntries returns active global entries plus those scoped to warehouseID.
func (r *repo) ListEntries(ctx context.Context, conn *gorm.DB, warehouseID snowflake.ID) ([]*domain.ServiceCatalogEntry, error) {
	var rows []*domain.ServiceCatalogEntry
	err := conn.WithContext(ctx).
		Where("active = ? AND warehouse_id IN ?", true, []snowflake.ID{domain.GlobalWarehouse, warehouseID}).
		Order("service_id ASC").
		Order("warehouse_id DESC").
		Find(&rows).Error
	return rows, err
}
