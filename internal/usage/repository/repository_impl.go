package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 200

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// refKey matches the ux_usage_ref unique index.
var refKey = []clause.Column{
	{Name: "parent_account_id"},
	{Name: "client_account_id"},
	{Name: "kind"},
	{Name: "source"},
	{Name: "ref_id"},
}

// Insert skips rows already recorded for the same client and reports how many landed.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, rows []*domain.LedgerEntry) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: refKey, DoNothing: true}).
		CreateInBatches(rows, insertBatchSize)
	return res.RowsAffected, res.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, q domain.Query, page pagination.Page) ([]*domain.LedgerEntry, error) {
	var rows []*domain.LedgerEntry
	err := scoped(db.WithContext(ctx), q).
		Order("occurred_at ASC").
		Order("kind ASC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&rows).Error
	return rows, err
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, q domain.Query) (int64, error) {
	var total int64
	err := scoped(db.WithContext(ctx).Model(&domain.LedgerEntry{}), q).Count(&total).Error
	return total, err
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, q domain.Query) ([]*domain.LedgerEntry, error) {
	q.Status = domain.StatusPending
	q.Q = ""
	var rows []*domain.LedgerEntry
	err := scoped(db.WithContext(ctx), q).
		Order("occurred_at ASC").
		Order("kind ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// MarkInvoiced only flips rows that are still pending; callers compare the count.
func (r *repo) MarkInvoiced(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("id IN ? AND status = ?", ids, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusInvoiced,
			"invoice_id": invoiceID,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

func scoped(tx *gorm.DB, q domain.Query) *gorm.DB {
	tx = tx.Where("parent_account_id = ? AND client_account_id = ?", q.ParentAccountID, q.ClientAccountID)
	if q.WarehouseID != 0 {
		tx = tx.Where("warehouse_id = ?", q.WarehouseID)
	}
	if !q.From.IsZero() {
		tx = tx.Where("occurred_at >= ?", q.From)
	}
	if !q.Until.IsZero() {
		tx = tx.Where("occurred_at < ?", q.Until)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", q.Kind)
	}
	if term := strings.TrimSpace(q.Q); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		tx = tx.Where("(LOWER(description) LIKE ? ESCAPE '!' OR LOWER(ref_id) LIKE ? ESCAPE '!')", like, like)
	}
	return tx
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
