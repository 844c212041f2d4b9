package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/warebill/internal/account/domain"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// LockParent serializes numbering per parent. Dialects without row locks ignore the clause.
func (r *repo) LockParent(ctx context.Context, db *gorm.DB, parentID snowflake.ID) error {
	var row accountdomain.ParentAccount
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", parentID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, parentID snowflake.ID) (int64, error) {
	var next int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("COALESCE(MAX(sequence), 0) + 1").
		Where("parent_account_id = ?", parentID).
		Scan(&next).Error
	return next, err
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, inv *domain.Invoice) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(inv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return takeInvoice(db.WithContext(ctx), id)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return takeInvoice(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func takeInvoice(stmt *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := stmt.Where("id = ?", id).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Page) ([]*domain.Invoice, error) {
	var rows []*domain.Invoice
	err := filtered(db.WithContext(ctx), filter).
		Order("period_start DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&rows).Error
	return rows, err
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var total int64
	err := filtered(db.WithContext(ctx).Model(&domain.Invoice{}), filter).Count(&total).Error
	return total, err
}

func filtered(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	stmt = stmt.Where("parent_account_id = ?", filter.ParentAccountID)
	if filter.ClientAccountID != 0 {
		stmt = stmt.Where("client_account_id = ?", filter.ClientAccountID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	return stmt
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []*domain.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LineItem, error) {
	var item domain.LineItem
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*domain.LineItem, error) {
	var items []*domain.LineItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SaveItem(ctx context.Context, db *gorm.DB, item *domain.LineItem) error {
	return db.WithContext(ctx).Save(item).Error
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.LineItem{}).Error
}

func (r *repo) SumItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, int64, error) {
	var agg struct {
		Subtotal int64
		Items    int64
	}
	err := db.WithContext(ctx).
		Model(&domain.LineItem{}).
		Select("COALESCE(SUM(amount_cents), 0) AS subtotal, COUNT(*) AS items").
		Where("invoice_id = ?", invoiceID).
		Scan(&agg).Error
	return agg.Subtotal, agg.Items, err
}
