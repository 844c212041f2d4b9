package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	ActionInvoiceCreated     = "invoice.created"
	ActionInvoiceStatus      = "invoice.status_changed"
	ActionLineItemAdded      = "invoice.line_item.added"
	ActionLineItemUpdated    = "invoice.line_item.updated"
	ActionLineItemDeleted    = "invoice.line_item.deleted"
	ActionShareTokenIssued   = "invoice.share_token.issued"
	ActionServiceOverrideSet = "rate.override.saved"
)

// Event is what a service reports; actor and request ids are filled from context.
type Event struct {
	ParentAccountID snowflake.ID
	Action          string
	TargetType      string
	TargetID        snowflake.ID
	Metadata        map[string]any
}

type ListRequest struct {
	ParentAccountID snowflake.ID `form:"parent_account_id"`
	Action          string       `form:"action"`
	TargetID        snowflake.ID `form:"target_id"`
	Page            int          `form:"page"`
	PageSize        int          `form:"pageSize"`
}

type ListFilter struct {
	ParentAccountID snowflake.ID
	Action          string
	TargetID        string
}

type Service interface {
	// Record writes through conn so the entry commits or rolls back with the caller's transaction.
	Record(ctx context.Context, conn *gorm.DB, p authz.Principal, ev Event) error
	List(ctx context.Context, p authz.Principal, req ListRequest) (pagination.Result[*AuditLog], error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Page) ([]*AuditLog, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
}
