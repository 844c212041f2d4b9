// Package domain contains persistence models for client invoices.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusOverdue   Status = "overdue"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusIssued, StatusCancelled},
	StatusIssued:  {StatusOverdue, StatusPaid, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusDraft, StatusIssued, StatusOverdue, StatusPaid, StatusCancelled:
		return s, true
	}
	return "", false
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllWarehouses as Invoice.WarehouseID means the invoice spans every warehouse of the client.
const AllWarehouses snowflake.ID = 0

// Invoice is unique per (parent, client, warehouse, period) among non-cancelled rows.
// The partial index is created by the migrations since its form differs per dialect.
type Invoice struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	ParentAccountID snowflake.ID `gorm:"not null;index:ix_invoices_scope,priority:1;uniqueIndex:ux_invoices_number,priority:1" json:"parent_account_id"`
	ClientAccountID snowflake.ID `gorm:"not null;index:ix_invoices_scope,priority:2" json:"client_account_id"`
	WarehouseID     snowflake.ID `gorm:"not null" json:"warehouse_id"`
	Sequence        int64        `gorm:"not null;uniqueIndex:ux_invoices_number,priority:2" json:"-"`
	Number          string       `gorm:"type:text;not null" json:"number"`
	PeriodStart     time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd       time.Time    `gorm:"not null" json:"period_end"`
	Status          Status       `gorm:"size:191;not null;index" json:"status"`
	CurrencyCode    string       `gorm:"type:text;not null" json:"currency_code"`
	SubtotalCents   int64        `gorm:"not null" json:"subtotal_cents"`
	TaxCents        int64        `gorm:"not null" json:"tax_cents"`
	TotalCents      int64        `gorm:"not null" json:"total_cents"`
	IssueDate       *time.Time   `json:"issue_date,omitempty"`
	DueDate         *time.Time   `json:"due_date,omitempty"`
	PaidAt          *time.Time   `json:"paid_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CreatedBy       string       `gorm:"type:text;not null" json:"created_by"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// LineItem amount equals round(quantity * rate) unless AmountOverridden is set.
type LineItem struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID        snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	LedgerEntryID    *snowflake.ID   `gorm:"index" json:"ledger_entry_id,omitempty"`
	Kind             string          `gorm:"type:text;not null" json:"kind"`
	ServiceID        string          `gorm:"type:text" json:"service_id,omitempty"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	Quantity         decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"quantity"`
	Unit             string          `gorm:"type:text" json:"unit,omitempty"`
	RateCents        int64           `gorm:"not null" json:"rate_cents"`
	AmountCents      int64           `gorm:"not null" json:"amount_cents"`
	AmountOverridden bool            `gorm:"not null" json:"amount_overridden"`
	OccurredAt       time.Time       `gorm:"not null" json:"occurred_at"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (LineItem) TableName() string { return "invoice_line_items" }

// KindManual marks line items added by hand rather than from usage.
const KindManual = "manual"
