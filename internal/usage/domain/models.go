// Package domain contains the canonical usage ledger shared by every feed.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindStorage  Kind = "storage"
	KindHandling Kind = "handling"
	KindOutbound Kind = "outbound"
	KindExtra    Kind = "extra"
)

var Kinds = []Kind{KindStorage, KindHandling, KindOutbound, KindExtra}

func ParseKind(raw string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KindStorage, KindHandling, KindOutbound, KindExtra:
		return k, true
	}
	return "", false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusInvoiced Status = "invoiced"
)

// LedgerEntry is one billable usage fact. Once invoiced it is never returned to pending.
// Replays are deduplicated per client on (kind, source, ref_id).
type LedgerEntry struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OccurredAt      time.Time       `gorm:"not null;index:ix_usage_scope,priority:4" json:"occurred_at"`
	ParentAccountID snowflake.ID    `gorm:"not null;index:ix_usage_scope,priority:1;uniqueIndex:ux_usage_ref,priority:1" json:"parent_account_id"`
	ClientAccountID snowflake.ID    `gorm:"not null;index:ix_usage_scope,priority:2;uniqueIndex:ux_usage_ref,priority:2" json:"client_account_id"`
	WarehouseID     snowflake.ID    `gorm:"not null;index:ix_usage_scope,priority:3" json:"warehouse_id"`
	Kind            Kind            `gorm:"size:191;not null;uniqueIndex:ux_usage_ref,priority:3" json:"kind"`
	Source          string          `gorm:"size:191;not null;uniqueIndex:ux_usage_ref,priority:4" json:"source"`
	RefID           string          `gorm:"size:191;not null;uniqueIndex:ux_usage_ref,priority:5" json:"ref_id"`
	ServiceID       string          `gorm:"type:text" json:"service_id,omitempty"`
	Description     string          `gorm:"type:text;not null" json:"description"`
	Quantity        decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"quantity"`
	Unit            string          `gorm:"type:text;not null" json:"unit"`
	RateCents       *int64          `json:"rate_cents,omitempty"`
	AmountCents     *int64          `json:"amount_cents,omitempty"`
	Status          Status          `gorm:"size:191;not null;index" json:"status"`
	InvoiceID       *snowflake.ID   `gorm:"index" json:"invoice_id,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (LedgerEntry) TableName() string { return "usage_ledger_entries" }
