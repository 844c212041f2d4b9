package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	ParentAccountID snowflake.ID `json:"parent_account_id"`
	ClientAccountID snowflake.ID `json:"client_account_id" validate:"required"`
	WarehouseID     snowflake.ID `json:"warehouse_id"`
	PeriodStart     string       `json:"period_start" validate:"required"`
	PeriodEnd       string       `json:"period_end" validate:"required"`
	CurrencyCode    string       `json:"currency_code" validate:"required,len=3,uppercase,alpha"`
	TaxCents        *int64       `json:"tax_cents" validate:"omitempty,gte=0"`
	Status          string       `json:"status" validate:"omitempty,oneof=draft issued"`
}

type LineItemInput struct {
	ServiceID   string          `json:"service_id"`
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	RateCents   *int64          `json:"rate_cents" validate:"required,gte=0"`
	OccurredAt  *time.Time      `json:"occurred_at"`
	AmountCents *int64          `json:"amount_cents"`
}

// LineItemPatch leaves nil fields untouched.
type LineItemPatch struct {
	Description *string          `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	RateCents   *int64           `json:"rate_cents" validate:"omitempty,gte=0"`
	OccurredAt  *time.Time       `json:"occurred_at"`
	AmountCents *int64           `json:"amount_cents"`
}

type InvoiceSummary struct {
	InvoiceID     snowflake.ID `json:"invoice_id"`
	SubtotalCents int64        `json:"subtotal_cents"`
	TaxCents      int64        `json:"tax_cents"`
	TotalCents    int64        `json:"total_cents"`
	LineItemCount int64        `json:"line_item_count"`
}

type InvoiceDetail struct {
	Invoice
	LineItems []*LineItem `json:"line_items"`
}

type InvoiceFilter struct {
	ParentAccountID snowflake.ID `form:"parent_account_id"`
	ClientAccountID snowflake.ID `form:"client_account_id"`
	Status          string       `form:"status"`
	Page            int          `form:"page"`
	PageSize        int          `form:"pageSize"`
}

type ListFilter struct {
	ParentAccountID snowflake.ID
	ClientAccountID snowflake.ID
	Status          Status
}

// PDFDocument is a rendered invoice ready to stream.
type PDFDocument struct {
	Filename string
	Content  []byte
}

// TaxSource computes tax for a freshly built invoice. The default honours the request's TaxCents.
type TaxSource interface {
	TaxFor(ctx context.Context, inv *Invoice, items []*LineItem, requested *int64) (int64, error)
}

type Service interface {
	CreateInvoice(ctx context.Context, p authz.Principal, req CreateInvoiceRequest) (snowflake.ID, error)
	GetInvoice(ctx context.Context, p authz.Principal, id snowflake.ID) (*InvoiceDetail, error)
	ListInvoices(ctx context.Context, p authz.Principal, filter InvoiceFilter) (pagination.Result[*Invoice], error)
	TransitionStatus(ctx context.Context, p authz.Principal, id snowflake.ID, to string) (*Invoice, error)

	AddLineItem(ctx context.Context, p authz.Principal, invoiceID snowflake.ID, in LineItemInput) (*InvoiceSummary, error)
	UpdateLineItem(ctx context.Context, p authz.Principal, itemID snowflake.ID, patch LineItemPatch) (*InvoiceSummary, error)
	DeleteLineItem(ctx context.Context, p authz.Principal, itemID snowflake.ID) (*InvoiceSummary, error)

	RenderPDF(ctx context.Context, p authz.Principal, id snowflake.ID) (*PDFDocument, error)
}

// Reader serves the share link path, which authorizes by token rather than principal.
type Reader interface {
	LoadDetail(ctx context.Context, id snowflake.ID) (*InvoiceDetail, error)
	RenderDetail(ctx context.Context, detail *InvoiceDetail) (*PDFDocument, error)
}

type Repository interface {
	LockParent(ctx context.Context, db *gorm.DB, parentID snowflake.ID) error
	NextSequence(ctx context.Context, db *gorm.DB, parentID snowflake.ID) (int64, error)
	// InsertIfAbsent returns false when a live invoice already holds the period key.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, inv *Invoice) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Page) ([]*Invoice, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error

	InsertItems(ctx context.Context, db *gorm.DB, items []*LineItem) error
	FindItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LineItem, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*LineItem, error)
	SaveItem(ctx context.Context, db *gorm.DB, item *LineItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// SumItems aggregates in storage so totals never drift from the rows.
	SumItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (subtotal int64, count int64, err error)
}

var (
	ErrInvoiceNotFound      = apperror.ErrNotFound.WithMessage("invoice not found")
	ErrLineItemNotFound     = apperror.ErrNotFound.WithMessage("line item not found")
	ErrInvoiceAlreadyExists = apperror.New(apperror.CodeInvoiceAlreadyExists, "an invoice already exists for this client, warehouse and period")
	ErrNoPendingUsage       = apperror.New(apperror.CodeNoPendingUsage, "no billable pending usage in this period")
	ErrInvoiceNotEditable   = apperror.New(apperror.CodeInvoiceNotEditable, "invoice is not editable in its current status")
	ErrInvalidTransition    = apperror.New(apperror.CodeInvalidStatusTransition, "status transition is not allowed")
	ErrUsageConsumed        = apperror.New(apperror.CodeUsageConsumed, "usage was invoiced concurrently, retry the request")
	ErrInvalidCurrency      = apperror.New(apperror.CodeInvalidArgument, "currency_code must be three uppercase letters").WithField("currency_code")
)
