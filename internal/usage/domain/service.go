package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"gorm.io/gorm"
)

// UsageFilter selects ledger entries. Start and End are inclusive YYYY-MM-DD dates.
type UsageFilter struct {
	ParentAccountID snowflake.ID `form:"parent_account_id" json:"parent_account_id"`
	ClientAccountID snowflake.ID `form:"client_account_id" json:"client_account_id"`
	WarehouseID     snowflake.ID `form:"warehouse_id" json:"warehouse_id"`
	Start           string       `form:"start" json:"start"`
	End             string       `form:"end" json:"end"`
	Q               string       `form:"q" json:"q"`
	Status          string       `form:"status" json:"status"`
	Kind            string       `form:"kind" json:"kind"`
	Page            int          `form:"page" json:"page"`
	PageSize        int          `form:"pageSize" json:"pageSize"`
}

// Query is a validated filter ready for the repository.
type Query struct {
	ParentAccountID snowflake.ID
	ClientAccountID snowflake.ID
	WarehouseID     snowflake.ID
	From            time.Time
	Until           time.Time
	Q               string
	Status          Status
	Kind            Kind
}

type Summary struct {
	ByKind       map[Kind]int64 `json:"by_kind"`
	TotalCents   int64          `json:"total_cents"`
	PendingCents int64          `json:"pending_cents"`
	TotalUSD     string         `json:"total_usd"`
	PendingUSD   string         `json:"pending_usd"`
	Entries      int            `json:"entries"`
	Hidden       int            `json:"hidden"`
	Unpriced     int            `json:"unpriced"`
}

type Service interface {
	Record(ctx context.Context, p authz.Principal, batch FeedBatch) (RecordResult, error)
	ListUsage(ctx context.Context, p authz.Principal, filter UsageFilter) (pagination.Result[*LedgerEntry], error)
	Summary(ctx context.Context, p authz.Principal, filter UsageFilter) (*Summary, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rows []*LedgerEntry) (int64, error)
	List(ctx context.Context, db *gorm.DB, q Query, page pagination.Page) ([]*LedgerEntry, error)
	Count(ctx context.Context, db *gorm.DB, q Query) (int64, error)
	// ListPending returns pending entries for one invoice scope. WarehouseID 0 spans warehouses.
	ListPending(ctx context.Context, db *gorm.DB, q Query) ([]*LedgerEntry, error)
	MarkInvoiced(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, at time.Time) (int64, error)
}

var (
	ErrInvalidAmount = apperror.New(apperror.CodeInvalidAmount, "amount must be a non-negative value with at most two decimal places")
	ErrEmptyBatch    = apperror.ErrMissingParameters.WithMessage("feed batch has no rows")
)
